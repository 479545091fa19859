package host

import (
	"context"
	"sync"

	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/device"
	"github.com/wippyai/kernel-runtime/errors"
)

const (
	// DefaultName is the device name used when Config.Name is empty.
	DefaultName = "host"

	// DefaultArenaSize is the arena size used when Config.ArenaSize is 0.
	DefaultArenaSize = 16 << 20

	arenaBase     = 16
	noAliasSuffix = ".noalias"
)

// Func is a kernel implemented in Go. It receives the device memory and
// the address of the captured argument image.
type Func func(ctx context.Context, mem kernelrt.Memory, image uint32) error

// Config holds configuration for device creation
type Config struct {
	// Name identifies the device. Defaults to "host".
	Name string

	// ArenaSize is the size of the device memory arena in bytes.
	ArenaSize uint32

	// FineGrainSystem reports that kernels may dereference any host
	// address, so SVM pointers skip residency checks during capture.
	FineGrainSystem bool
}

// Device is a kernelrt.Device whose memory is an anonymous mapping in the
// host process. The arena does not grow.
type Device struct {
	*device.Base
	arena     []byte
	kernels   map[string]Func
	mu        sync.RWMutex
	closed    bool
	fineGrain bool
}

var _ kernelrt.Device = (*Device)(nil)

// New maps the device arena.
func New(cfg *Config) (*Device, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	name := cfg.Name
	if name == "" {
		name = DefaultName
	}
	size := cfg.ArenaSize
	if size == 0 {
		size = DefaultArenaSize
	}
	if size <= arenaBase {
		return nil, errors.InvalidInput(errors.PhaseDevice, "arena too small")
	}

	arena, err := mapArena(int(size))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDevice, errors.KindAllocation, err, "map arena")
	}

	mem := device.Bytes(arena)
	Logger().Debug("host device created",
		zap.String("name", name),
		zap.Uint32("arena", size))

	return &Device{
		Base:      device.NewBase(name, mem, device.NewHeap(arenaBase, size, nil)),
		arena:     arena,
		kernels:   make(map[string]Func),
		fineGrain: cfg.FineGrainSystem,
	}, nil
}

// FineGrainSystem reports whether the device was configured for
// fine-grain system SVM.
func (d *Device) FineGrainSystem() bool { return d.fineGrain }

// Register makes fn callable as symbol.
func (d *Device) Register(symbol string, fn Func) {
	d.mu.Lock()
	d.kernels[symbol] = fn
	d.mu.Unlock()
}

// EntryPoint resolves symbol to a registered Func. With noAlias set it
// prefers a Func registered as symbol+".noalias".
func (d *Device) EntryPoint(dev kernelrt.Device, symbol string, noAlias bool) (kernelrt.EntryPoint, error) {
	if dev != nil && dev.Name() != d.Name() {
		return nil, errors.New(errors.PhaseProgram, errors.KindNotFound).
			Path(symbol).
			Detail("program is loaded on device %q, not %q", d.Name(), dev.Name()).
			Build()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, errors.Unsupported(errors.PhaseProgram, "device is closed")
	}
	if noAlias {
		if fn, ok := d.kernels[symbol+noAliasSuffix]; ok {
			return &Entry{fn: fn, dev: d, symbol: symbol, device: d.Name(), noAlias: true}, nil
		}
	}
	fn, ok := d.kernels[symbol]
	if !ok {
		return nil, errors.NotFound(errors.PhaseProgram, "entry point", symbol)
	}
	return &Entry{fn: fn, dev: d, symbol: symbol, device: d.Name()}, nil
}

// Close drops every live object and unmaps the arena. Afterwards the
// device's memory and allocator fail with an unsupported error. Close must
// not run concurrently with other use of the device.
func (d *Device) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.Reset()
	d.Detach()
	return unmapArena(d.arena)
}

// Entry is a registered Go kernel.
type Entry struct {
	fn      Func
	dev     *Device
	symbol  string
	device  string
	noAlias bool
}

var _ kernelrt.EntryPoint = (*Entry)(nil)

func (e *Entry) Symbol() string { return e.symbol }
func (e *Entry) Device() string { return e.device }

// NoAlias reports whether the entry is the no-alias variant.
func (e *Entry) NoAlias() bool { return e.noAlias }

func (e *Entry) Call(ctx context.Context, image uint32) error {
	return e.fn(ctx, e.dev.Memory(), image)
}
