package layout

import (
	"sync"

	"go.bytecodealliance.org/wit"
)

// Info describes how a value type is stored.
type Info struct {
	FieldOffs map[string]uint32
	Size      uint32
	Align     uint32
}

// Calculator computes layouts and memoizes type definitions.
// It is safe for concurrent use.
type Calculator struct {
	cache map[*wit.TypeDef]Info
	mu    sync.Mutex
}

func NewCalculator() *Calculator {
	return &Calculator{
		cache: make(map[*wit.TypeDef]Info),
	}
}

var shared = NewCalculator()

// Calc computes the layout of t with a process-wide calculator.
func Calc(t wit.Type) Info {
	return shared.Calculate(t)
}

func (c *Calculator) Calculate(t wit.Type) Info {
	switch typ := t.(type) {
	case wit.U8, wit.S8, wit.Bool:
		return Info{Size: 1, Align: 1}
	case wit.U16, wit.S16:
		return Info{Size: 2, Align: 2}
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Info{Size: 4, Align: 4}
	case wit.U64, wit.S64, wit.F64:
		return Info{Size: 8, Align: 8}
	case wit.String:
		return Info{Size: 8, Align: 4} // [ptr: u32, len: u32]
	case *wit.TypeDef:
		return c.calculateTypeDef(typ)
	default:
		return Info{Size: 0, Align: 1}
	}
}

func (c *Calculator) calculateTypeDef(t *wit.TypeDef) Info {
	c.mu.Lock()
	cached, ok := c.cache[t]
	c.mu.Unlock()
	if ok {
		return cached
	}

	var info Info

	switch kind := t.Kind.(type) {
	case *wit.Record:
		info = c.calculateRecord(kind)
	case *wit.Variant:
		info = c.calculateVariant(kind)
	case *wit.Enum:
		size := DiscriminantSize(len(kind.Cases))
		info = Info{Size: size, Align: size}
	case *wit.List:
		info = Info{Size: 8, Align: 4}
	case *wit.Option:
		info = c.calculateTagged(c.Calculate(kind.Type))
	case *wit.Result:
		info = c.calculateResult(kind)
	case *wit.Tuple:
		info = c.calculateSequence(kind.Types)
	case *wit.Flags:
		info = calculateFlags(len(kind.Flags))
	case wit.Type:
		info = c.Calculate(kind)
	default:
		info = Info{Size: 0, Align: 1}
	}

	c.mu.Lock()
	c.cache[t] = info
	c.mu.Unlock()
	return info
}

func (c *Calculator) calculateRecord(r *wit.Record) Info {
	if len(r.Fields) == 0 {
		return Info{Size: 0, Align: 1}
	}

	fieldOffs := make(map[string]uint32, len(r.Fields))
	types := make([]wit.Type, len(r.Fields))
	for i, field := range r.Fields {
		types[i] = field.Type
	}

	info := c.calculateSequence(types)
	offset := uint32(0)
	for _, field := range r.Fields {
		fieldLayout := c.Calculate(field.Type)
		offset = AlignTo(offset, fieldLayout.Align)
		fieldOffs[field.Name] = offset
		offset += fieldLayout.Size
	}
	info.FieldOffs = fieldOffs
	return info
}

// calculateSequence lays out members back to back with natural padding.
func (c *Calculator) calculateSequence(types []wit.Type) Info {
	if len(types) == 0 {
		return Info{Size: 0, Align: 1}
	}

	maxAlign := uint32(1)
	offset := uint32(0)

	for _, typ := range types {
		elem := c.Calculate(typ)
		offset = AlignTo(offset, elem.Align)
		if elem.Align > maxAlign {
			maxAlign = elem.Align
		}
		offset += elem.Size
	}

	return Info{
		Size:  AlignTo(offset, maxAlign),
		Align: maxAlign,
	}
}

func (c *Calculator) calculateVariant(v *wit.Variant) Info {
	if len(v.Cases) == 0 {
		return Info{Size: 0, Align: 1}
	}

	discSize := DiscriminantSize(len(v.Cases))

	maxAlign := discSize
	maxSize := uint32(0)

	for _, cs := range v.Cases {
		if cs.Type == nil {
			continue
		}
		caseLayout := c.Calculate(cs.Type)
		if caseLayout.Align > maxAlign {
			maxAlign = caseLayout.Align
		}
		if caseLayout.Size > maxSize {
			maxSize = caseLayout.Size
		}
	}

	payloadOffset := AlignTo(discSize, maxAlign)
	return Info{
		Size:  AlignTo(payloadOffset+maxSize, maxAlign),
		Align: maxAlign,
	}
}

// calculateTagged lays out a one-byte tag followed by payload.
func (c *Calculator) calculateTagged(payload Info) Info {
	align := payload.Align
	if align < 1 {
		align = 1
	}
	payloadOffset := AlignTo(1, align)
	return Info{
		Size:  AlignTo(payloadOffset+payload.Size, align),
		Align: align,
	}
}

func (c *Calculator) calculateResult(r *wit.Result) Info {
	payload := Info{Size: 0, Align: 1}
	for _, t := range []wit.Type{r.OK, r.Err} {
		if t == nil {
			continue
		}
		l := c.Calculate(t)
		if l.Align > payload.Align {
			payload.Align = l.Align
		}
		if l.Size > payload.Size {
			payload.Size = l.Size
		}
	}
	return c.calculateTagged(payload)
}

func calculateFlags(numFlags int) Info {
	switch {
	case numFlags == 0:
		return Info{Size: 0, Align: 1}
	case numFlags <= 8:
		return Info{Size: 1, Align: 1}
	case numFlags <= 16:
		return Info{Size: 2, Align: 2}
	case numFlags <= 32:
		return Info{Size: 4, Align: 4}
	case numFlags <= 64:
		return Info{Size: 8, Align: 8}
	}
	// >64 flags: one u32 per 32 flags
	numU32s := (numFlags + 31) / 32
	return Info{Size: uint32(numU32s * 4), Align: 4}
}
