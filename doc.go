// Package kernelrt is the argument-marshaling core of a compute-kernel
// runtime.
//
// It takes a kernel function's declared parameter list, collects the
// argument bindings for one invocation, validates that every argument is
// bound, and produces a compact, aligned image ("capture") that a dispatch
// layer hands to a device.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	kernelrt/            Root package with Memory, Allocator and Device interfaces
//	├── signature/       Immutable parameter descriptors and block layout
//	├── params/          Per-invocation binding state, capture and release
//	├── kernel/          Kernel handles and the programs that own them
//	├── resource/        Handle table for buffers, images and samplers
//	├── device/          Device heap and residency bookkeeping
//	│   ├── wasm/        Device backed by wazero linear memory
//	│   └── host/        Device backed by an mmap'd host arena
//	├── manifest/        YAML/JSON kernel declarations
//	├── errors/          Structured error types
//	└── cmd/kargs/       Inspection and dry-run CLI
//
// # Quick Start
//
//	dev, err := wasm.New(ctx, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close(ctx)
//
//	prog, err := manifest.MustLoad("saxpy.yaml").NewProgram(dev)
//	k, err := prog.NewKernel("saxpy")
//	defer k.Close()
//
//	p := k.Parameters()
//	_ = p.SetScalar(0, uint32(1024))
//	_ = p.SetScalar(1, float32(2))
//	_ = p.SetHandle(2, prog.Objects().Insert(x))
//	_ = p.SetHandle(3, prog.Objects().Insert(y))
//
//	c, err := p.Capture(dev)
//	// hand c.Addr()/c.Size() to the dispatcher
//	defer p.Release(c, dev)
//
// # Thread Safety
//
// A parameter state is filled by one goroutine at a time. Distinct states
// share no mutable data and may be filled and captured concurrently. To
// dispatch the same kernel again while a capture is in flight, Clone the
// kernel and bind the clone.
//
// # Memory Model
//
// A parameter state keeps values, defined flags and SVM flags in one
// allocation whose regions each start on a 16-byte boundary. A capture
// writes the same layout, with translated handles and the auxiliary SVM
// pointer table appended, into device memory.
package kernelrt
