package kernelrt

import (
	"context"

	"github.com/wippyai/kernel-runtime/resource"
)

// Memory is a device's addressable memory, as seen from the host.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of device memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates scratch in device memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// Device is the accelerator a capture is prepared for.
type Device interface {
	// Name identifies the device; memory objects record the name of the
	// device they were allocated on.
	Name() string

	Memory() Memory
	Allocator() Allocator

	// Translate returns the value a kernel on this device receives for obj:
	// a device address for buffers and images, the packed word for samplers.
	Translate(obj resource.Object) (uint64, error)

	// SVMResident reports whether ptr lies in shared virtual memory this
	// device can dereference.
	SVMResident(ptr uint64) bool
}

// EntryPoint is a compiled kernel entry on one device.
type EntryPoint interface {
	Symbol() string
	Device() string

	// Call runs the entry with the device address of a captured image.
	Call(ctx context.Context, image uint32) error
}
