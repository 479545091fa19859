package params

import (
	"encoding/binary"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// SetScalar binds a fixed-size Go value (bool, sized integers, floats or
// arrays and structs of them) in little-endian form.
func (s *State) SetScalar(index int, v any) error {
	b, err := binary.Append(nil, binary.LittleEndian, v)
	if err != nil {
		return errors.New(errors.PhaseBind, errors.KindInvalidInput).
			Path(s.path(index)...).
			Param(index).
			Cause(err).
			Detail("encode %T", v).
			Build()
	}
	return s.Set(index, len(b), b, false)
}

// SetHandle binds a buffer, image or sampler argument to a table handle.
// Handle 0 binds a null buffer.
func (s *State) SetHandle(index int, h resource.Handle) error {
	if err := s.expectKind(index, signature.KindBuffer, signature.KindImage, signature.KindSampler); err != nil {
		return err
	}
	return s.Set(index, signature.SlotSize, binary.LittleEndian.AppendUint64(nil, uint64(h)), false)
}

// SetPointer binds a raw address. svm marks it as a shared virtual memory
// pointer; buffer arguments accept only SVM pointers.
func (s *State) SetPointer(index int, ptr uint64, svm bool) error {
	if err := s.expectKind(index, signature.KindPointer, signature.KindBuffer); err != nil {
		return err
	}
	if !svm && s.sig.At(index).Kind == signature.KindBuffer {
		return s.invalid(index, s.sig.At(index), "buffer argument takes a handle or an SVM pointer")
	}
	return s.Set(index, signature.SlotSize, binary.LittleEndian.AppendUint64(nil, ptr), svm)
}

// SetLocal requests size bytes of work-group local memory.
func (s *State) SetLocal(index int, size uint32) error {
	return s.Set(index, int(size), nil, false)
}

func (s *State) expectKind(index int, kinds ...signature.Kind) error {
	if index < 0 || index >= s.sig.NumParameters() {
		return errors.OutOfBounds(errors.PhaseBind, s.path(-1), index, s.sig.NumParameters())
	}
	d := s.sig.At(index)
	for _, k := range kinds {
		if d.Kind == k {
			return nil
		}
	}
	return s.invalid(index, d, "%s argument cannot be bound this way", d.Kind)
}
