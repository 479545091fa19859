// Package device holds the pieces every device implementation shares: a
// first-fit heap over a linear address space and Base, which tracks the
// buffers, images and shared virtual memory allocated on one device and
// translates memory objects into the words a kernel receives.
//
// Concrete devices (device/wasm, device/host) supply the memory and embed
// Base.
package device
