package resource

import (
	"sync"
	"sync/atomic"
)

// Buffer is a linear allocation in a device's memory.
type Buffer struct {
	release func()
	Device  string
	Addr    uint32
	Size    uint32
	SVM     bool
	once    sync.Once
	freed   atomic.Bool
}

// NewBuffer describes size bytes at addr on the named device. release is
// run once when the buffer is dropped.
func NewBuffer(device string, addr, size uint32, release func()) *Buffer {
	return &Buffer{Device: device, Addr: addr, Size: size, release: release}
}

func (b *Buffer) ObjectType() ObjectType { return TypeBuffer }

// Drop returns the buffer's memory to its device.
func (b *Buffer) Drop() {
	b.once.Do(func() {
		b.freed.Store(true)
		if b.release != nil {
			b.release()
		}
	})
}

// Freed reports whether the buffer has been dropped.
func (b *Buffer) Freed() bool { return b.freed.Load() }

// Contains reports whether addr falls inside the buffer.
func (b *Buffer) Contains(addr uint64) bool {
	return addr >= uint64(b.Addr) && addr < uint64(b.Addr)+uint64(b.Size)
}

// ImageFormat is the channel layout of an image.
type ImageFormat struct {
	Channels    uint8
	ChannelSize uint8
}

// PixelSize returns the bytes per pixel.
func (f ImageFormat) PixelSize() uint32 {
	return uint32(f.Channels) * uint32(f.ChannelSize)
}

// Image is a 2D image whose pixels live in a device buffer. Desc is the
// device address of its descriptor record.
type Image struct {
	Data     *Buffer
	Format   ImageFormat
	Width    uint32
	Height   uint32
	RowPitch uint32
	Desc     uint32
	descFree func()
	once     sync.Once
}

// NewImage describes an image backed by data with its descriptor at desc.
// descFree is run once when the image is dropped, after data is dropped.
func NewImage(data *Buffer, format ImageFormat, width, height, desc uint32, descFree func()) *Image {
	return &Image{
		Data:     data,
		Format:   format,
		Width:    width,
		Height:   height,
		RowPitch: width * format.PixelSize(),
		Desc:     desc,
		descFree: descFree,
	}
}

func (i *Image) ObjectType() ObjectType { return TypeImage }

// Drop frees the pixel buffer and the descriptor.
func (i *Image) Drop() {
	i.once.Do(func() {
		if i.Data != nil {
			i.Data.Drop()
		}
		if i.descFree != nil {
			i.descFree()
		}
	})
}

// Freed reports whether the image's storage has been dropped.
func (i *Image) Freed() bool {
	return i.Data == nil || i.Data.Freed()
}

// AddressMode selects out-of-range coordinate handling for a sampler.
type AddressMode uint8

const (
	AddressNone AddressMode = iota
	AddressClampToEdge
	AddressClamp
	AddressRepeat
	AddressMirroredRepeat
)

// FilterMode selects texel filtering for a sampler.
type FilterMode uint8

const (
	FilterNearest FilterMode = iota
	FilterLinear
)

// Sampler describes how a kernel reads images.
type Sampler struct {
	Normalized bool
	Addressing AddressMode
	Filter     FilterMode
}

func (s *Sampler) ObjectType() ObjectType { return TypeSampler }

// Bits packs the sampler into the word a device receives:
// bit 0 normalized coordinates, bits 1-3 addressing, bits 4-5 filter.
func (s *Sampler) Bits() uint32 {
	var v uint32
	if s.Normalized {
		v |= 1
	}
	v |= uint32(s.Addressing&0x7) << 1
	v |= uint32(s.Filter&0x3) << 4
	return v
}
