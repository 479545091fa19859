// Package signature describes the formal parameters of a kernel function.
//
// A Signature is built once, when a kernel function is discovered in a
// compiled program, and is shared read-only by every parameter state created
// for that function. It records, per parameter, the byte size, alignment and
// offset inside the packed values region, plus a Kind that tells the capture
// step how the bytes must be translated for a device:
//
//	Kind      Stored bytes               Captured bytes
//	──────────────────────────────────────────────────────────
//	value     raw value                  identical
//	buffer    resource handle (u64)      device address (u64)
//	image     resource handle (u64)      device descriptor address (u64)
//	sampler   resource handle (u64)      sampler word (u64)
//	local     requested size (u64)       requested size (u64)
//	pointer   raw address (u64)          identical (residency checked if SVM)
//
// Value parameters are typed with WIT types, so their layout follows the
// Canonical ABI rules.
//
// The Signature also precomputes the BlockLayout a parameter state uses for
// its single storage block, and that a capture image uses on the device.
package signature
