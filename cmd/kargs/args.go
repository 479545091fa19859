package main

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// binding is one --arg after it has been matched to a parameter.
type binding struct {
	raw   string
	index int
}

// parseBindings matches "name=value" or "index=value" arguments to
// parameters of sig.
func parseBindings(sig *signature.Signature, args []string) ([]binding, error) {
	out := make([]binding, 0, len(args))
	for _, a := range args {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("argument %q is not name=value", a)
		}
		index, found := sig.Lookup(key)
		if !found {
			n, err := strconv.Atoi(key)
			if err != nil || n < 0 || n >= sig.NumParameters() {
				return nil, fmt.Errorf("no parameter %q", key)
			}
			index = n
		}
		out = append(out, binding{raw: value, index: index})
	}
	return out, nil
}

// encodeValue converts the text of a value argument to its bytes.
func encodeValue(d signature.Descriptor, text string) ([]byte, error) {
	if d.Type == nil {
		s := strings.TrimPrefix(strings.TrimPrefix(text, "0x"), "0X")
		b, err := hex.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%s: opaque values are hex: %w", d.Name, err)
		}
		if len(b) != int(d.Size) {
			return nil, fmt.Errorf("%s: %d bytes given, size is %d", d.Name, len(b), d.Size)
		}
		return b, nil
	}

	le := binary.LittleEndian
	switch name := d.TypeName(); name {
	case "bool":
		v, err := strconv.ParseBool(text)
		if err != nil {
			return nil, err
		}
		if v {
			return []byte{1}, nil
		}
		return []byte{0}, nil
	case "u8", "u16", "u32", "u64":
		bits, _ := strconv.Atoi(name[1:])
		v, err := strconv.ParseUint(text, 0, bits)
		if err != nil {
			return nil, err
		}
		return le.AppendUint64(nil, v)[:bits/8], nil
	case "s8", "s16", "s32", "s64":
		bits, _ := strconv.Atoi(name[1:])
		v, err := strconv.ParseInt(text, 0, bits)
		if err != nil {
			return nil, err
		}
		return le.AppendUint64(nil, uint64(v))[:bits/8], nil
	case "f32":
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return nil, err
		}
		return le.AppendUint32(nil, math.Float32bits(float32(v))), nil
	case "f64":
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, err
		}
		return le.AppendUint64(nil, math.Float64bits(v)), nil
	case "char":
		r, size := utf8.DecodeRuneInString(text)
		if r == utf8.RuneError || size != len(text) {
			return nil, fmt.Errorf("%s: char takes exactly one character", d.Name)
		}
		return le.AppendUint32(nil, uint32(r)), nil
	default:
		return nil, fmt.Errorf("%s: values of type %s cannot be given on the command line", d.Name, name)
	}
}

// parseSVM recognizes "svm:<size>".
func parseSVM(text string) (uint32, bool, error) {
	rest, ok := strings.CutPrefix(text, "svm:")
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(rest, 0, 32)
	if err != nil {
		return 0, true, fmt.Errorf("svm size %q: %w", rest, err)
	}
	return uint32(n), true, nil
}

// parseImage recognizes "<width>x<height>[:<channels>]".
func parseImage(text string) (w, h uint32, format resource.ImageFormat, err error) {
	format = resource.ImageFormat{Channels: 4, ChannelSize: 1}
	dims, ch, hasCh := strings.Cut(text, ":")
	ws, hs, ok := strings.Cut(dims, "x")
	if !ok {
		return 0, 0, format, fmt.Errorf("image %q is not WIDTHxHEIGHT", text)
	}
	wv, err := strconv.ParseUint(ws, 10, 32)
	if err != nil {
		return 0, 0, format, err
	}
	hv, err := strconv.ParseUint(hs, 10, 32)
	if err != nil {
		return 0, 0, format, err
	}
	if hasCh {
		c, err := strconv.ParseUint(ch, 10, 8)
		if err != nil || c == 0 || c > 4 {
			return 0, 0, format, fmt.Errorf("image channels %q must be 1-4", ch)
		}
		format.Channels = uint8(c)
	}
	return uint32(wv), uint32(hv), format, nil
}

// parseSampler recognizes a comma list of: normalized, none, clamp_to_edge,
// clamp, repeat, mirrored_repeat, nearest, linear.
func parseSampler(text string) (*resource.Sampler, error) {
	s := &resource.Sampler{}
	if text == "" || text == "default" {
		return s, nil
	}
	for _, tok := range strings.Split(text, ",") {
		switch strings.TrimSpace(tok) {
		case "normalized":
			s.Normalized = true
		case "none":
			s.Addressing = resource.AddressNone
		case "clamp_to_edge":
			s.Addressing = resource.AddressClampToEdge
		case "clamp":
			s.Addressing = resource.AddressClamp
		case "repeat":
			s.Addressing = resource.AddressRepeat
		case "mirrored_repeat":
			s.Addressing = resource.AddressMirroredRepeat
		case "nearest":
			s.Filter = resource.FilterNearest
		case "linear":
			s.Filter = resource.FilterLinear
		default:
			return nil, fmt.Errorf("unknown sampler option %q", tok)
		}
	}
	return s, nil
}
