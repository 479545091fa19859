package params

import (
	"encoding/binary"
	stderrors "errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// Capture is a device-resident image of a State's arguments.
type Capture struct {
	layout   signature.BlockLayout
	device   string
	borrowed []resource.Handle
	ID       uuid.UUID
	addr     uint32
	size     uint32
	numSvm   int
}

// Addr returns the device address of the image.
func (c *Capture) Addr() uint32 { return c.addr }

// Size returns the image size in bytes.
func (c *Capture) Size() uint32 { return c.size }

// Device returns the name of the device the image lives on.
func (c *Capture) Device() string { return c.device }

// Layout returns the region layout of the image.
func (c *Capture) Layout() signature.BlockLayout { return c.layout }

// NumberOfSvmPtr returns the length of the image's auxiliary SVM table.
func (c *Capture) NumberOfSvmPtr() int { return c.numSvm }

// Borrowed returns the handles the capture holds borrows on.
func (c *Capture) Borrowed() []resource.Handle {
	out := make([]resource.Handle, len(c.borrowed))
	copy(out, c.borrowed)
	return out
}

// Capture translates the bound arguments for dev and writes the image into
// dev's memory. The state must pass Check. Objects referenced by handle are
// borrowed until Release. On failure nothing stays borrowed or allocated.
func (s *State) Capture(dev kernelrt.Device) (*Capture, error) {
	if !s.Check() {
		return nil, errors.Incomplete(errors.PhaseCapture, s.name, s.Missing())
	}

	fineGrain := s.ResolveFineGrain(dev)
	bl := s.sig.Layout()
	size := bl.CaptureSize(len(s.execSvmPtrs))

	img := make([]byte, size)
	copy(img, s.block)

	c := &Capture{
		layout: bl,
		device: dev.Name(),
		ID:     uuid.New(),
		size:   size,
		numSvm: len(s.execSvmPtrs),
	}

	for i := range s.defined {
		d := s.sig.At(i)
		slot := img[bl.Values.Offset+d.Offset:]

		switch {
		case s.svmBound[i]:
			ptr := binary.LittleEndian.Uint64(slot)
			if ptr != 0 && fineGrain != FineGrainSupported && !dev.SVMResident(ptr) {
				s.returnBorrows(c.borrowed)
				return nil, errors.New(errors.PhaseCapture, errors.KindNotResident).
					Path(s.path(i)...).
					Param(i).
					Value(ptr).
					Detail("pointer %#x is not in shared virtual memory of device %q", ptr, dev.Name()).
					Build()
			}

		case d.Kind.IsHandle():
			h := resource.Handle(binary.LittleEndian.Uint64(slot))
			if h == 0 && d.Kind == signature.KindBuffer {
				continue
			}
			word, err := s.translate(dev, i, d, h)
			if err != nil {
				s.returnBorrows(c.borrowed)
				return nil, err
			}
			c.borrowed = append(c.borrowed, h)
			binary.LittleEndian.PutUint64(slot, word)
		}
	}

	table := img[bl.ExecInfoOffset():]
	for j, ptr := range s.execSvmPtrs {
		if ptr != 0 && fineGrain != FineGrainSupported && !dev.SVMResident(ptr) {
			s.returnBorrows(c.borrowed)
			return nil, errors.New(errors.PhaseCapture, errors.KindNotResident).
				Path(s.path(-1)...).
				Value(ptr).
				Detail("auxiliary SVM pointer %d (%#x) is not resident on device %q", j, ptr, dev.Name()).
				Build()
		}
		binary.LittleEndian.PutUint64(table[j*signature.SlotSize:], ptr)
	}

	addr, err := dev.Allocator().Alloc(size, signature.ParamsMinAlignment)
	if err != nil {
		s.returnBorrows(c.borrowed)
		return nil, errors.New(errors.PhaseCapture, errors.KindAllocation).
			Path(s.path(-1)...).
			Cause(err).
			Detail("allocate %d-byte capture on device %q", size, dev.Name()).
			Build()
	}
	if err := dev.Memory().Write(addr, img); err != nil {
		dev.Allocator().Free(addr, size, signature.ParamsMinAlignment)
		s.returnBorrows(c.borrowed)
		return nil, errors.New(errors.PhaseCapture, errors.KindAllocation).
			Path(s.path(-1)...).
			Cause(err).
			Detail("write capture image").
			Build()
	}
	c.addr = addr

	s.outstanding[c.ID] = c
	Logger().Debug("arguments captured",
		zap.String("kernel", s.name),
		zap.String("device", c.device),
		zap.Stringer("capture", c.ID),
		zap.Uint32("addr", addr),
		zap.Uint32("size", size),
		zap.Int("borrowed", len(c.borrowed)))
	return c, nil
}

func (s *State) translate(dev kernelrt.Device, index int, d signature.Descriptor, h resource.Handle) (uint64, error) {
	fail := func(kind errors.Kind, cause error, format string, args ...any) error {
		return errors.New(errors.PhaseCapture, kind).
			Path(s.path(index)...).
			Param(index).
			WitType(d.TypeName()).
			Value(h).
			Cause(cause).
			Detail(format, args...).
			Build()
	}

	if s.objects == nil {
		return 0, fail(errors.KindTranslation, nil, "no object table to resolve handle %d", h)
	}
	obj, ok := s.objects.Borrow(h)
	if !ok {
		return 0, fail(errors.KindTranslation, nil, "invalid %s handle %d", d.Kind, h)
	}
	if want := objectType(d.Kind); obj.ObjectType() != want {
		s.objects.ReturnBorrow(h)
		return 0, fail(errors.KindTranslation, nil, "handle %d is a %s, want %s", h, obj.ObjectType(), want)
	}

	word, err := dev.Translate(obj)
	if err != nil {
		s.objects.ReturnBorrow(h)
		kind := errors.KindTranslation
		var e *errors.Error
		if stderrors.As(err, &e) && e.Kind == errors.KindNotResident {
			kind = errors.KindNotResident
		}
		return 0, fail(kind, err, "%s handle %d on device %q", d.Kind, h, dev.Name())
	}
	return word, nil
}

func objectType(k signature.Kind) resource.ObjectType {
	switch k {
	case signature.KindImage:
		return resource.TypeImage
	case signature.KindSampler:
		return resource.TypeSampler
	}
	return resource.TypeBuffer
}

func (s *State) returnBorrows(handles []resource.Handle) {
	for _, h := range handles {
		if !s.objects.ReturnBorrow(h) {
			Logger().Warn("borrow already returned",
				zap.String("kernel", s.name),
				zap.Uint32("handle", uint32(h)))
		}
	}
}

func (s *State) lookup(c *Capture) (*Capture, error) {
	if c == nil {
		return nil, errors.NoCapture(s.name, "<nil>")
	}
	own, ok := s.outstanding[c.ID]
	if !ok || own != c {
		return nil, errors.NoCapture(s.name, c.ID.String())
	}
	return own, nil
}

// Release returns the capture's borrows and frees its device memory. A
// capture can be released once, on the device it was taken on.
func (s *State) Release(c *Capture, dev kernelrt.Device) error {
	c, err := s.lookup(c)
	if err != nil {
		return err
	}
	if dev.Name() != c.device {
		return errors.New(errors.PhaseRelease, errors.KindInvalidInput).
			Path(s.path(-1)...).
			Detail("capture %s was taken on device %q, not %q", c.ID, c.device, dev.Name()).
			Build()
	}

	delete(s.outstanding, c.ID)
	s.returnBorrows(c.borrowed)
	dev.Allocator().Free(c.addr, c.size, signature.ParamsMinAlignment)

	Logger().Debug("capture released",
		zap.String("kernel", s.name),
		zap.String("device", c.device),
		zap.Stringer("capture", c.ID))
	return nil
}

// BoundToSvmPointer reports whether argument index was bound to an SVM
// pointer when c was taken. The flag is read from the image in device
// memory.
func (s *State) BoundToSvmPointer(dev kernelrt.Device, c *Capture, index int) (bool, error) {
	c, err := s.lookup(c)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= s.sig.NumParameters() {
		return false, errors.OutOfBounds(errors.PhaseCapture, s.path(-1), index, s.sig.NumParameters())
	}
	if dev.Name() != c.device {
		return false, errors.New(errors.PhaseCapture, errors.KindInvalidInput).
			Path(s.path(index)...).
			Param(index).
			Detail("capture %s was taken on device %q, not %q", c.ID, c.device, dev.Name()).
			Build()
	}

	v, err := dev.Memory().ReadU8(c.addr + c.layout.SvmBound.Offset + uint32(index))
	if err != nil {
		return false, errors.New(errors.PhaseCapture, errors.KindTranslation).
			Path(s.path(index)...).
			Param(index).
			Cause(err).
			Detail("read captured SVM flag").
			Build()
	}
	return v != 0, nil
}
