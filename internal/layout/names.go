package layout

import (
	"fmt"

	"go.bytecodealliance.org/wit"
)

var primitives = map[string]wit.Type{
	"bool":   wit.Bool{},
	"u8":     wit.U8{},
	"s8":     wit.S8{},
	"u16":    wit.U16{},
	"s16":    wit.S16{},
	"u32":    wit.U32{},
	"s32":    wit.S32{},
	"u64":    wit.U64{},
	"s64":    wit.S64{},
	"f32":    wit.F32{},
	"f64":    wit.F64{},
	"char":   wit.Char{},
	"string": wit.String{},
}

// ParsePrimitive maps a WIT primitive type name to its type.
func ParsePrimitive(name string) (wit.Type, bool) {
	t, ok := primitives[name]
	return t, ok
}

// TypeName returns a short WIT-style name for t.
func TypeName(t wit.Type) string {
	switch typ := t.(type) {
	case nil:
		return ""
	case wit.Bool:
		return "bool"
	case wit.U8:
		return "u8"
	case wit.S8:
		return "s8"
	case wit.U16:
		return "u16"
	case wit.S16:
		return "s16"
	case wit.U32:
		return "u32"
	case wit.S32:
		return "s32"
	case wit.U64:
		return "u64"
	case wit.S64:
		return "s64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		switch typ.Kind.(type) {
		case *wit.Record:
			return "record"
		case *wit.Variant:
			return "variant"
		case *wit.Enum:
			return "enum"
		case *wit.List:
			return "list"
		case *wit.Option:
			return "option"
		case *wit.Result:
			return "result"
		case *wit.Tuple:
			return "tuple"
		case *wit.Flags:
			return "flags"
		}
		return "typedef"
	}
	return fmt.Sprintf("%T", t)
}
