package params

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/internal/layout"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// FineGrain caches whether a device and kernel accept arbitrary host
// pointers as SVM arguments.
type FineGrain uint8

const (
	FineGrainDefault FineGrain = iota
	FineGrainUnsupported
	FineGrainSupported
)

func (f FineGrain) String() string {
	switch f {
	case FineGrainDefault:
		return "default"
	case FineGrainUnsupported:
		return "unsupported"
	case FineGrainSupported:
		return "supported"
	}
	return fmt.Sprintf("fine_grain(%d)", uint8(f))
}

// FineGrainer is implemented by devices that can report fine-grain system
// SVM support.
type FineGrainer interface {
	FineGrainSystem() bool
}

// Option configures a State.
type Option func(*State)

// WithObjects sets the table handle arguments are resolved in.
func WithObjects(t *resource.Table) Option {
	return func(s *State) { s.objects = t }
}

// WithName sets the kernel name used in error paths.
func WithName(name string) Option {
	return func(s *State) { s.name = name }
}

// State is the binding state of one kernel invocation.
type State struct {
	sig         *signature.Signature
	objects     *resource.Table
	outstanding map[uuid.UUID]*Capture
	name        string
	block       []byte
	values      []byte
	defined     []bool
	svmBound    []bool
	execSvmPtrs []uint64
	validated   bool
	fineGrain   FineGrain
}

// New allocates zeroed binding storage laid out by sig.Layout().
func New(sig *signature.Signature, opts ...Option) *State {
	bl := sig.Layout()
	block := layout.AlignedBytes(int(bl.Size), signature.ParamsMinAlignment)

	s := &State{
		sig:         sig,
		outstanding: make(map[uuid.UUID]*Capture),
		block:       block,
		values:      block[bl.Values.Offset:bl.Values.End():bl.Values.End()],
		defined:     layout.BoolView(block, bl.Defined),
		svmBound:    layout.BoolView(block, bl.SvmBound),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signature returns the signature the state was built from.
func (s *State) Signature() *signature.Signature { return s.sig }

// Objects returns the handle table, or nil.
func (s *State) Objects() *resource.Table { return s.objects }

func (s *State) path(index int) []string {
	p := make([]string, 0, 2)
	if s.name != "" {
		p = append(p, s.name)
	}
	if index >= 0 && index < s.sig.NumParameters() {
		if name := s.sig.At(index).Name; name != "" {
			p = append(p, name)
		}
	}
	return p
}

func (s *State) mustIndex(index int) {
	if index < 0 || index >= len(s.defined) {
		panic(errors.OutOfBounds(errors.PhaseBind, s.path(-1), index, len(s.defined)))
	}
}

// Set binds argument index to value. For local parameters size is the
// requested scratch size and value must be nil. svm marks a buffer or
// pointer argument whose bytes are a shared virtual memory address.
func (s *State) Set(index int, size int, value []byte, svm bool) error {
	if index < 0 || index >= len(s.defined) {
		return errors.OutOfBounds(errors.PhaseBind, s.path(-1), index, len(s.defined))
	}
	d := s.sig.At(index)

	if svm && d.Kind != signature.KindBuffer && d.Kind != signature.KindPointer {
		return s.invalid(index, d, "%s argument cannot be bound to an SVM pointer", d.Kind)
	}

	if d.Kind == signature.KindLocal {
		if value != nil {
			return s.invalid(index, d, "local argument takes a size, not a value")
		}
		if size <= 0 {
			return s.invalid(index, d, "local argument size must be positive, got %d", size)
		}
		binary.LittleEndian.PutUint64(s.values[d.Offset:], uint64(size))
	} else {
		if size != int(d.Size) {
			err := errors.SizeMismatch(s.path(index), index, size, int(d.Size))
			err.WitType = d.TypeName()
			return err
		}
		if len(value) != size {
			return s.invalid(index, d, "value has %d bytes, size is %d", len(value), size)
		}
		copy(s.values[d.Offset:d.Offset+d.Size], value)
	}

	s.defined[index] = true
	s.svmBound[index] = svm
	s.validated = false
	return nil
}

func (s *State) invalid(index int, d signature.Descriptor, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseBind, errors.KindInvalidInput).
		Path(s.path(index)...).
		Param(index).
		WitType(d.TypeName()).
		Detail(format, args...).
		Build()
}

// Reset unbinds argument index. The stored bytes are left in place.
func (s *State) Reset(index int) {
	s.mustIndex(index)
	s.defined[index] = false
	s.svmBound[index] = false
	s.validated = false
}

// Test reports whether argument index is bound.
func (s *State) Test(index int) bool {
	s.mustIndex(index)
	return s.defined[index]
}

// IsSvm reports whether argument index is bound to an SVM pointer.
func (s *State) IsSvm(index int) bool {
	s.mustIndex(index)
	return s.svmBound[index]
}

// Check reports whether every argument is bound. The result is cached
// until the next Set or Reset.
func (s *State) Check() bool {
	if s.validated {
		return true
	}
	for _, ok := range s.defined {
		if !ok {
			return false
		}
	}
	s.validated = true
	return true
}

// Missing returns the indices of unbound arguments.
func (s *State) Missing() []int {
	var missing []int
	for i, ok := range s.defined {
		if !ok {
			missing = append(missing, i)
		}
	}
	return missing
}

// LocalMemSize returns the scratch bytes requested by bound local
// arguments, each rounded up to minAlign.
func (s *State) LocalMemSize(minAlign uint32) uint64 {
	if minAlign == 0 {
		minAlign = 1
	}
	var total uint64
	for i := range s.defined {
		d := s.sig.At(i)
		if d.Kind != signature.KindLocal || !s.defined[i] {
			continue
		}
		size := binary.LittleEndian.Uint64(s.values[d.Offset:])
		total += (size + uint64(minAlign) - 1) &^ (uint64(minAlign) - 1)
	}
	return total
}

// AddSvmPtr replaces the auxiliary SVM pointer list.
func (s *State) AddSvmPtr(ptrs []uint64) {
	s.execSvmPtrs = append(s.execSvmPtrs[:0], ptrs...)
}

// NumberOfSvmPtr returns the length of the auxiliary SVM pointer list.
func (s *State) NumberOfSvmPtr() int { return len(s.execSvmPtrs) }

// SvmPtrs returns a copy of the auxiliary SVM pointer list.
func (s *State) SvmPtrs() []uint64 {
	out := make([]uint64, len(s.execSvmPtrs))
	copy(out, s.execSvmPtrs)
	return out
}

// ExecInfoOffset is the offset of the auxiliary SVM pointer table in a
// capture image.
func (s *State) ExecInfoOffset() uint32 { return s.sig.Layout().ExecInfoOffset() }

func (s *State) SetFineGrainSupport(f FineGrain) { s.fineGrain = f }
func (s *State) FineGrainSupport() FineGrain     { return s.fineGrain }

// ResolveFineGrain fills an unset fine-grain flag from dev when the device
// reports it, and returns the cached value.
func (s *State) ResolveFineGrain(dev any) FineGrain {
	if s.fineGrain == FineGrainDefault {
		if fg, ok := dev.(FineGrainer); ok {
			if fg.FineGrainSystem() {
				s.fineGrain = FineGrainSupported
			} else {
				s.fineGrain = FineGrainUnsupported
			}
		}
	}
	return s.fineGrain
}

// Values returns a copy of the packed argument bytes.
func (s *State) Values() []byte {
	out := make([]byte, len(s.values))
	copy(out, s.values)
	return out
}

// Outstanding returns the number of captures not yet released.
func (s *State) Outstanding() int { return len(s.outstanding) }

// Clone returns an independent state with the same bindings. Outstanding
// captures are not carried over.
func (s *State) Clone() *State {
	c := New(s.sig, WithObjects(s.objects), WithName(s.name))
	copy(c.block, s.block)
	c.execSvmPtrs = s.SvmPtrs()
	c.validated = s.validated
	c.fineGrain = s.fineGrain
	return c
}
