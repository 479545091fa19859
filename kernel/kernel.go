package kernel

import (
	"sync/atomic"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/params"
	"github.com/wippyai/kernel-runtime/signature"
)

// Kernel is one invocable kernel: a program reference, the signature of
// its symbol and the parameter state being bound.
type Kernel struct {
	program *Program
	sig     *signature.Signature
	params  *params.State
	name    string
	closed  atomic.Bool
}

func (k *Kernel) Program() *Program               { return k.program }
func (k *Kernel) Signature() *signature.Signature { return k.sig }
func (k *Kernel) Parameters() *params.State       { return k.params }
func (k *Kernel) Name() string                    { return k.name }

// DeviceEntryPoint resolves the kernel's entry on dev.
func (k *Kernel) DeviceEntryPoint(dev kernelrt.Device, noAlias bool) (kernelrt.EntryPoint, error) {
	return k.program.EntryPoint(dev, k.name, noAlias)
}

// Clone returns a kernel with a copy of the current bindings, for binding
// the next invocation while a capture of this one is in flight.
func (k *Kernel) Clone() (*Kernel, error) {
	if err := k.program.Retain(); err != nil {
		return nil, err
	}
	return &Kernel{
		program: k.program,
		sig:     k.sig,
		params:  k.params.Clone(),
		name:    k.name,
	}, nil
}

// Close drops the kernel's program reference. It fails while captures of
// the kernel's arguments are outstanding.
func (k *Kernel) Close() error {
	if n := k.params.Outstanding(); n > 0 {
		return errors.New(errors.PhaseProgram, errors.KindInUse).
			Path(k.name).
			Value(n).
			Detail("%d capture(s) not released", n).
			Build()
	}
	if k.closed.CompareAndSwap(false, true) {
		k.program.Release()
	}
	return nil
}
