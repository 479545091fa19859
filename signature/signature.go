package signature

import (
	"fmt"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/internal/layout"
)

const (
	// ParamsMinAlignment is the boundary every region of a parameter block
	// and of a capture image starts on.
	ParamsMinAlignment = 16

	// SlotSize is the width of handle, local and pointer arguments.
	SlotSize = 8

	maxValueAlign = 8
)

// Region is one aligned span of a parameter block.
type Region = layout.Region

// Param is the declaration of one formal parameter.
type Param struct {
	// Type is the WIT type of a value parameter. When nil, Size and Align
	// describe an opaque value.
	Type   wit.Type
	Name   string
	Size   uint32
	Align  uint32
	Kind   Kind
	Access Access
}

// Descriptor is the resolved layout of one formal parameter.
type Descriptor struct {
	Type   wit.Type
	Name   string
	Size   uint32
	Align  uint32
	Offset uint32
	Kind   Kind
	Access Access
}

// TypeName returns the WIT type name of a value parameter, or the kind name.
func (d Descriptor) TypeName() string {
	if d.Type != nil {
		return layout.TypeName(d.Type)
	}
	return d.Kind.String()
}

// BlockLayout places the values, defined and svmBound regions of a
// parameter block. Every region starts on ParamsMinAlignment.
type BlockLayout struct {
	Values   Region
	Defined  Region
	SvmBound Region
	Size     uint32
}

// ExecInfoOffset is where a capture image stores the auxiliary SVM pointer
// table, right after the block regions.
func (b BlockLayout) ExecInfoOffset() uint32 {
	return b.Size
}

// CaptureSize is the size of a capture image carrying n auxiliary SVM pointers.
func (b BlockLayout) CaptureSize(n int) uint32 {
	return layout.AlignTo(b.Size+uint32(n)*SlotSize, ParamsMinAlignment)
}

// Signature is the immutable description of a kernel's formal parameters.
type Signature struct {
	byName     map[string]int
	attributes string
	params     []Descriptor
	layout     BlockLayout
	paramsSize uint32
	align      uint32
}

// New resolves the layout of params and returns the signature.
func New(params []Param, attributes string) (*Signature, error) {
	s := &Signature{
		params:     make([]Descriptor, len(params)),
		byName:     make(map[string]int, len(params)),
		attributes: attributes,
		align:      1,
	}

	offset := uint32(0)
	for i, p := range params {
		size, align, err := resolve(p)
		if err != nil {
			return nil, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
				Path(p.Name).
				Param(i).
				Cause(err).
				Detail("resolve parameter layout").
				Build()
		}
		if p.Name != "" {
			if prev, dup := s.byName[p.Name]; dup {
				return nil, errors.New(errors.PhaseLayout, errors.KindInvalidInput).
					Path(p.Name).
					Param(i).
					Detail("duplicate parameter name (first declared at %d)", prev).
					Build()
			}
			s.byName[p.Name] = i
		}

		offset = layout.AlignTo(offset, align)
		s.params[i] = Descriptor{
			Type:   p.Type,
			Name:   p.Name,
			Size:   size,
			Align:  align,
			Offset: offset,
			Kind:   p.Kind,
			Access: p.Access,
		}
		offset += size
		if align > s.align {
			s.align = align
		}
	}

	s.paramsSize = layout.AlignTo(offset, s.align)

	n := uint32(len(params))
	regions, total := layout.Plan(ParamsMinAlignment, s.paramsSize, n, n)
	s.layout = BlockLayout{
		Values:   regions[0],
		Defined:  regions[1],
		SvmBound: regions[2],
		Size:     total,
	}
	return s, nil
}

// FromWIT builds a value-only signature from a WIT parameter list.
func FromWIT(names []string, types []wit.Type, attributes string) (*Signature, error) {
	if len(names) != len(types) {
		return nil, errors.InvalidInput(errors.PhaseLayout,
			fmt.Sprintf("%d names for %d types", len(names), len(types)))
	}
	params := make([]Param, len(types))
	for i, t := range types {
		params[i] = Param{Name: names[i], Kind: KindValue, Type: t}
	}
	return New(params, attributes)
}

func resolve(p Param) (size, align uint32, err error) {
	switch p.Kind {
	case KindBuffer, KindImage, KindSampler, KindLocal, KindPointer:
		if p.Type != nil || p.Size != 0 {
			return 0, 0, fmt.Errorf("%s parameter cannot declare a value type or size", p.Kind)
		}
		return SlotSize, SlotSize, nil
	case KindValue:
	default:
		return 0, 0, fmt.Errorf("unknown parameter kind %d", p.Kind)
	}

	if p.Type != nil {
		info := layout.Calc(p.Type)
		align = info.Align
		if p.Align != 0 {
			if p.Align < align {
				return 0, 0, fmt.Errorf("alignment %d below natural alignment %d of %s",
					p.Align, align, layout.TypeName(p.Type))
			}
			align = p.Align
		}
		if !layout.IsPow2(align) {
			return 0, 0, fmt.Errorf("alignment %d is not a power of two", align)
		}
		return info.Size, align, nil
	}

	align = p.Align
	if align == 0 {
		align = layout.NaturalAlign(p.Size, maxValueAlign)
	}
	if !layout.IsPow2(align) {
		return 0, 0, fmt.Errorf("alignment %d is not a power of two", align)
	}
	return p.Size, align, nil
}

// NumParameters returns the number of formal parameters.
func (s *Signature) NumParameters() int { return len(s.params) }

// At returns the descriptor at index. An index out of range is a contract
// violation and panics with an *errors.Error.
func (s *Signature) At(index int) Descriptor {
	if index < 0 || index >= len(s.params) {
		panic(errors.OutOfBounds(errors.PhaseLayout, nil, index, len(s.params)))
	}
	return s.params[index]
}

// Params returns a copy of all descriptors.
func (s *Signature) Params() []Descriptor {
	out := make([]Descriptor, len(s.params))
	copy(out, s.params)
	return out
}

// Lookup returns the index of the parameter with the given name.
func (s *Signature) Lookup(name string) (int, bool) {
	i, ok := s.byName[name]
	return i, ok
}

// ParamsSize returns the size in bytes of the packed values region.
func (s *Signature) ParamsSize() uint32 { return s.paramsSize }

// Align returns the largest parameter alignment.
func (s *Signature) Align() uint32 { return s.align }

// Attributes returns the kernel attribute text.
func (s *Signature) Attributes() string { return s.attributes }

// Layout returns the block layout for parameter storage.
func (s *Signature) Layout() BlockLayout { return s.layout }

// HasHandles reports whether any parameter needs device translation.
func (s *Signature) HasHandles() bool {
	for _, p := range s.params {
		if p.Kind.IsHandle() {
			return true
		}
	}
	return false
}
