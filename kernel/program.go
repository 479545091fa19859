package kernel

import (
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/params"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// EntryResolver finds the compiled entry of a kernel symbol on a device.
// With noAlias set it should prefer a variant compiled under the
// assumption that pointer arguments do not alias.
type EntryResolver interface {
	EntryPoint(dev kernelrt.Device, symbol string, noAlias bool) (kernelrt.EntryPoint, error)
}

// Program is a set of kernel symbols sharing one entry resolver and one
// memory-object table.
type Program struct {
	resolver EntryResolver
	objects  *resource.Table
	events   *objectLog
	symbols  map[string]*signature.Signature
	name     string
	mu       sync.Mutex
	refs     atomic.Int32
	closed   bool
}

// NewProgram creates a program. resolver may be nil when no entry points
// are needed.
func NewProgram(name string, resolver EntryResolver, symbols map[string]*signature.Signature) *Program {
	syms := make(map[string]*signature.Signature, len(symbols))
	for k, v := range symbols {
		syms[k] = v
	}
	p := &Program{
		resolver: resolver,
		objects:  resource.NewTable(),
		events:   &objectLog{program: name},
		symbols:  syms,
		name:     name,
	}
	p.objects.Subscribe(p.events)
	return p
}

func (p *Program) Name() string { return p.name }

// Objects returns the table kernel handle arguments are resolved in.
func (p *Program) Objects() *resource.Table { return p.objects }

// Symbols returns the kernel names in sorted order.
func (p *Program) Symbols() []string {
	names := make([]string, 0, len(p.symbols))
	for name := range p.symbols {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Signature returns the signature of a kernel symbol.
func (p *Program) Signature(symbol string) (*signature.Signature, bool) {
	sig, ok := p.symbols[symbol]
	return sig, ok
}

// Refs returns the number of live kernels.
func (p *Program) Refs() int { return int(p.refs.Load()) }

// Retain adds a reference. It fails once the program is closed.
func (p *Program) Retain() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.Unsupported(errors.PhaseProgram, "program "+p.name+" is closed")
	}
	p.refs.Add(1)
	return nil
}

// Release drops a reference taken by Retain.
func (p *Program) Release() {
	if n := p.refs.Add(-1); n < 0 {
		p.refs.Add(1)
		Logger().Warn("program released more often than retained", zap.String("program", p.name))
	}
}

// NewKernel creates a kernel for symbol with a fresh parameter state.
func (p *Program) NewKernel(symbol string) (*Kernel, error) {
	sig, ok := p.symbols[symbol]
	if !ok {
		return nil, errors.NotFound(errors.PhaseProgram, "kernel", symbol)
	}
	if err := p.Retain(); err != nil {
		return nil, err
	}

	Logger().Debug("kernel created",
		zap.String("program", p.name),
		zap.String("kernel", symbol),
		zap.Int("params", sig.NumParameters()))

	return &Kernel{
		program: p,
		sig:     sig,
		params:  params.New(sig, params.WithObjects(p.objects), params.WithName(symbol)),
		name:    symbol,
	}, nil
}

// EntryPoint resolves symbol on dev through the program's resolver.
func (p *Program) EntryPoint(dev kernelrt.Device, symbol string, noAlias bool) (kernelrt.EntryPoint, error) {
	if p.resolver == nil {
		return nil, errors.Unsupported(errors.PhaseProgram, "program "+p.name+" has no entry resolver")
	}
	return p.resolver.EntryPoint(dev, symbol, noAlias)
}

// Close drops every memory object in the program's table. It fails while
// kernels created from the program are still open.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	if n := p.refs.Load(); n > 0 {
		return errors.New(errors.PhaseProgram, errors.KindInUse).
			Path(p.name).
			Value(int(n)).
			Detail("%d kernel(s) still reference the program", n).
			Build()
	}
	p.closed = true
	p.objects.Unsubscribe(p.events)
	return p.objects.Close()
}

// objectLog reports object table events at debug level.
type objectLog struct {
	program string
}

func (l *objectLog) OnResourceEvent(e resource.Event) {
	fields := []zap.Field{
		zap.String("program", l.program),
		zap.Stringer("event", e.Type),
		zap.Uint32("handle", uint32(e.Handle)),
	}
	if e.Value != nil {
		fields = append(fields, zap.Stringer("object", e.Value.ObjectType()))
	}
	Logger().Debug("object event", fields...)
}
