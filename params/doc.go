// Package params holds the binding state of one kernel invocation.
//
// A State is created from a signature.Signature. Arguments are bound with
// Set (or the typed helpers SetScalar, SetHandle, SetPointer, SetLocal),
// Check gates dispatch on every argument being bound, and Capture writes a
// device-ready image of the arguments into device memory:
//
//	[ values | defined | svmBound | aux SVM pointers ]
//
// Every region starts on signature.ParamsMinAlignment. Handle arguments
// (buffers, images, samplers) are stored as resource.Handle values while
// binding and replaced by the device's representation in the image. A
// capture borrows every object it references until Release.
//
// A State is not safe for concurrent use. Clone a state to bind a second
// invocation while a capture of the first is still in flight.
package params
