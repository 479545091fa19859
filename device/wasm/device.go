package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/device"
	"github.com/wippyai/kernel-runtime/errors"
)

const (
	// DefaultName is the device name used when Config.Name is empty.
	DefaultName = "wasm"

	// DefaultMemoryLimitPages bounds linear memory growth (1 GiB).
	DefaultMemoryLimitPages = 16384

	defaultHeapBase = 16
	heapBaseGlobal  = "__heap_base"
	cabiRealloc     = "cabi_realloc"
	noAliasSuffix   = ".noalias"
)

// memoryModule is a minimal module exporting one page of memory.
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // "memory"
	0x02, 0x00, // kind: memory, index 0
}

// Config holds configuration for device creation
type Config struct {
	// Name identifies the device. Defaults to "wasm".
	Name string

	// Module is the compiled kernel program. Its exported functions are
	// the device's entry points. Nil uses a module that only exports
	// memory.
	Module []byte

	// MemoryExport names the exported memory. Defaults to "memory".
	MemoryExport string

	// MemoryLimitPages sets the maximum memory in pages (64KB each).
	// 0 means DefaultMemoryLimitPages.
	MemoryLimitPages uint32

	// GuestAllocator allocates device scratch through the module's
	// cabi_realloc export instead of the host-managed heap.
	GuestAllocator bool
}

// Device is a kernelrt.Device whose memory is a wazero module's linear
// memory.
type Device struct {
	*device.Base
	runtime wazero.Runtime
	module  api.Module
	mem     *Memory
	mu      sync.Mutex
	closed  bool
}

var _ kernelrt.Device = (*Device)(nil)

// New compiles and instantiates cfg.Module in a fresh wazero runtime.
func New(ctx context.Context, cfg *Config) (*Device, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	exportName := cfg.MemoryExport
	if exportName == "" {
		exportName = "memory"
	}
	limit := cfg.MemoryLimitPages
	if limit == 0 {
		limit = DefaultMemoryLimitPages
	}
	bin := cfg.Module
	if bin == nil {
		bin = memoryModule
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(limit))

	compiled, err := runtime.CompileModule(ctx, bin)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseDevice, errors.KindInvalidData, err, "compile module")
	}

	mod, err := runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, errors.Wrap(errors.PhaseDevice, errors.KindInvalidData, err, "instantiate module")
	}

	mem := WrapMemory(mod.ExportedMemory(exportName))
	if mem == nil {
		_ = runtime.Close(ctx)
		return nil, errors.NotFound(errors.PhaseDevice, "memory export", exportName)
	}

	var alloc kernelrt.Allocator
	if cfg.GuestAllocator {
		fn := mod.ExportedFunction(cabiRealloc)
		if fn == nil {
			_ = runtime.Close(ctx)
			return nil, errors.NotFound(errors.PhaseDevice, "allocator export", cabiRealloc)
		}
		alloc = &GuestAllocator{Ctx: ctx, Fn: fn, Mem: mem}
	} else {
		alloc = device.NewHeap(heapBase(mod), mem.Size(), mem.grow(limit))
	}

	Logger().Debug("wasm device created",
		zap.String("name", name),
		zap.Uint32("memory", mem.Size()),
		zap.Bool("guest_allocator", cfg.GuestAllocator))

	return &Device{
		Base:    device.NewBase(name, mem, alloc),
		runtime: runtime,
		module:  mod,
		mem:     mem,
	}, nil
}

// heapBase places the host heap after the module's static data when the
// module reports where that ends.
func heapBase(mod api.Module) uint32 {
	if g := mod.ExportedGlobal(heapBaseGlobal); g != nil {
		if base := uint32(g.Get()); base > defaultHeapBase {
			return base
		}
	}
	return defaultHeapBase
}

// Module returns the instantiated kernel module.
func (d *Device) Module() api.Module { return d.module }

// EntryPoint resolves symbol to an exported function. With noAlias set
// it prefers the symbol's ".noalias" variant and falls back to the plain
// export.
func (d *Device) EntryPoint(dev kernelrt.Device, symbol string, noAlias bool) (kernelrt.EntryPoint, error) {
	if dev != nil && dev.Name() != d.Name() {
		return nil, errors.New(errors.PhaseProgram, errors.KindNotFound).
			Path(symbol).
			Detail("program is loaded on device %q, not %q", d.Name(), dev.Name()).
			Build()
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, errors.Unsupported(errors.PhaseProgram, "device is closed")
	}

	if noAlias {
		if fn := d.module.ExportedFunction(symbol + noAliasSuffix); fn != nil {
			return &Entry{fn: fn, mem: d.mem, symbol: symbol, device: d.Name(), noAlias: true}, nil
		}
	}
	fn := d.module.ExportedFunction(symbol)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseProgram, "entry point", symbol)
	}
	return &Entry{fn: fn, mem: d.mem, symbol: symbol, device: d.Name()}, nil
}

// Close drops every live object and closes the runtime.
func (d *Device) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	if _, ok := d.Allocator().(*device.Heap); ok {
		d.Reset()
	}
	d.Detach()
	if err := d.runtime.Close(ctx); err != nil {
		return fmt.Errorf("close runtime: %w", err)
	}
	return nil
}

// Entry is an exported kernel function.
type Entry struct {
	fn      api.Function
	mem     *Memory
	symbol  string
	device  string
	noAlias bool
}

var _ kernelrt.EntryPoint = (*Entry)(nil)

func (e *Entry) Symbol() string         { return e.symbol }
func (e *Entry) Device() string         { return e.device }
func (e *Entry) Function() api.Function { return e.fn }

// NoAlias reports whether the entry is the no-alias variant.
func (e *Entry) NoAlias() bool { return e.noAlias }

// Call invokes the function with the image address as its only argument.
// Guest code may grow memory, so host access to the device memory waits
// until the call returns.
func (e *Entry) Call(ctx context.Context, image uint32) error {
	e.mem.mu.Lock()
	_, err := e.fn.Call(ctx, uint64(image))
	e.mem.mu.Unlock()
	if err != nil {
		return fmt.Errorf("call %s: %w", e.symbol, err)
	}
	return nil
}
