// Package resource manages the host-side memory objects kernel arguments
// refer to.
//
// Buffers, images and samplers are registered in a Table and referenced by
// integer handles. A kernel argument of a handle kind stores the handle; the
// capture step looks the handle up, borrows the object for the lifetime of
// the capture and asks the device for the address it should see.
//
// # Handle Table
//
//	table := resource.NewTable()
//
//	// Insert an object, get a handle
//	h := table.Insert(buf)
//
//	// Borrow while an in-flight capture references the object
//	obj, ok := table.Borrow(h)
//	defer table.ReturnBorrow(h)
//
// Handle 0 is reserved and always invalid; it is the null memory object.
//
// # Lifetime
//
// Remove refuses to drop an object with outstanding borrows, so memory a
// device may still read is never freed underneath it. Objects implementing
// Dropper are notified when they leave the table; device buffers use this
// to return their memory to the device heap.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	table.Subscribe(observer)
//
// Events are emitted for creation, drop, borrow and borrow return.
package resource
