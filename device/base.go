package device

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/resource"
)

const (
	// BufferAlign is the alignment of every buffer allocation.
	BufferAlign = 64

	// ImageDescSize is the size of the descriptor record written for
	// each image: data address (8), width, height, row pitch (4 each),
	// channel count and channel size (1 each), padding.
	ImageDescSize  = 32
	imageDescAlign = 16
)

// Base implements the bookkeeping half of kernelrt.Device over a memory
// and an allocator.
type Base struct {
	mem     kernelrt.Memory
	heap    kernelrt.Allocator
	buffers map[*resource.Buffer]struct{}
	images  map[*resource.Image]struct{}
	name    string
	mu      sync.RWMutex
}

// NewBase creates the shared state for a device named name. heap is
// usually a *Heap; devices that delegate allocation to guest code pass
// their own allocator.
func NewBase(name string, mem kernelrt.Memory, heap kernelrt.Allocator) *Base {
	return &Base{
		mem:     mem,
		heap:    heap,
		buffers: make(map[*resource.Buffer]struct{}),
		images:  make(map[*resource.Image]struct{}),
		name:    name,
	}
}

func (b *Base) Name() string { return b.name }

func (b *Base) Memory() kernelrt.Memory {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mem
}

func (b *Base) Allocator() kernelrt.Allocator {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.heap
}

// Heap returns the device heap, or nil when allocation is delegated.
func (b *Base) Heap() *Heap {
	h, _ := b.Allocator().(*Heap)
	return h
}

// AllocBuffer allocates a device buffer of size bytes.
func (b *Base) AllocBuffer(size uint32) (*resource.Buffer, error) {
	return b.alloc(size, false)
}

// AllocSVM allocates a shared virtual memory region. Its address may be
// bound directly to pointer parameters.
func (b *Base) AllocSVM(size uint32) (*resource.Buffer, error) {
	return b.alloc(size, true)
}

func (b *Base) alloc(size uint32, svm bool) (*resource.Buffer, error) {
	heap := b.Allocator()
	addr, err := heap.Alloc(size, BufferAlign)
	if err != nil {
		return nil, err
	}

	var buf *resource.Buffer
	buf = resource.NewBuffer(b.name, addr, size, func() {
		b.mu.Lock()
		delete(b.buffers, buf)
		b.mu.Unlock()
		heap.Free(addr, size, BufferAlign)
	})
	buf.SVM = svm

	b.mu.Lock()
	b.buffers[buf] = struct{}{}
	b.mu.Unlock()

	Logger().Debug("buffer allocated",
		zap.String("device", b.name),
		zap.Uint32("addr", addr),
		zap.Uint32("size", size),
		zap.Bool("svm", svm))
	return buf, nil
}

// NewImage allocates pixel storage and a descriptor record for a
// width x height image.
func (b *Base) NewImage(format resource.ImageFormat, width, height uint32) (*resource.Image, error) {
	if format.PixelSize() == 0 || width == 0 || height == 0 {
		return nil, errors.InvalidInput(errors.PhaseDevice,
			fmt.Sprintf("invalid image %dx%d with %d-byte pixels", width, height, format.PixelSize()))
	}
	size := uint64(width) * uint64(height) * uint64(format.PixelSize())
	if size > uint64(^uint32(0)) {
		return nil, errors.AllocationFailed(errors.PhaseDevice, ^uint32(0), BufferAlign)
	}

	data, err := b.AllocBuffer(uint32(size))
	if err != nil {
		return nil, err
	}

	heap := b.Allocator()
	desc, err := heap.Alloc(ImageDescSize, imageDescAlign)
	if err != nil {
		data.Drop()
		return nil, err
	}

	var img *resource.Image
	img = resource.NewImage(data, format, width, height, desc, func() {
		b.mu.Lock()
		delete(b.images, img)
		b.mu.Unlock()
		heap.Free(desc, ImageDescSize, imageDescAlign)
	})

	if err := b.writeImageDesc(img); err != nil {
		img.Drop()
		return nil, err
	}

	b.mu.Lock()
	b.images[img] = struct{}{}
	b.mu.Unlock()
	return img, nil
}

func (b *Base) writeImageDesc(img *resource.Image) error {
	var rec [ImageDescSize]byte
	binary.LittleEndian.PutUint64(rec[0:], uint64(img.Data.Addr))
	binary.LittleEndian.PutUint32(rec[8:], img.Width)
	binary.LittleEndian.PutUint32(rec[12:], img.Height)
	binary.LittleEndian.PutUint32(rec[16:], img.RowPitch)
	rec[20] = img.Format.Channels
	rec[21] = img.Format.ChannelSize
	return b.Memory().Write(img.Desc, rec[:])
}

// WriteBuffer copies data into buf starting at offset.
func (b *Base) WriteBuffer(buf *resource.Buffer, offset uint32, data []byte) error {
	if err := b.checkOwned(buf); err != nil {
		return err
	}
	if uint64(offset)+uint64(len(data)) > uint64(buf.Size) {
		return errors.InvalidInput(errors.PhaseDevice,
			fmt.Sprintf("write of %d bytes at %d exceeds buffer size %d", len(data), offset, buf.Size))
	}
	return b.Memory().Write(buf.Addr+offset, data)
}

// ReadBuffer returns a copy of buf's contents.
func (b *Base) ReadBuffer(buf *resource.Buffer) ([]byte, error) {
	if err := b.checkOwned(buf); err != nil {
		return nil, err
	}
	return b.Memory().Read(buf.Addr, buf.Size)
}

func (b *Base) checkOwned(buf *resource.Buffer) error {
	if buf.Device != b.name {
		return errors.NotResident(errors.PhaseDevice, nil, errors.NoParam,
			fmt.Sprintf("buffer belongs to device %q, not %q", buf.Device, b.name))
	}
	b.mu.RLock()
	_, live := b.buffers[buf]
	b.mu.RUnlock()
	if !live || buf.Freed() {
		return errors.NotResident(errors.PhaseDevice, nil, errors.NoParam, "buffer has been freed")
	}
	return nil
}

// Translate returns the word a kernel on this device receives for obj.
func (b *Base) Translate(obj resource.Object) (uint64, error) {
	switch o := obj.(type) {
	case *resource.Buffer:
		if err := b.checkOwned(o); err != nil {
			return 0, err
		}
		return uint64(o.Addr), nil

	case *resource.Image:
		if o.Data == nil || o.Data.Device != b.name {
			return 0, errors.NotResident(errors.PhaseDevice, nil, errors.NoParam,
				fmt.Sprintf("image is not allocated on device %q", b.name))
		}
		b.mu.RLock()
		_, live := b.images[o]
		b.mu.RUnlock()
		if !live || o.Freed() {
			return 0, errors.NotResident(errors.PhaseDevice, nil, errors.NoParam, "image has been freed")
		}
		return uint64(o.Desc), nil

	case *resource.Sampler:
		return uint64(o.Bits()), nil

	case nil:
		return 0, errors.New(errors.PhaseDevice, errors.KindTranslation).
			Detail("nil memory object").
			Build()
	}

	return 0, errors.New(errors.PhaseDevice, errors.KindTranslation).
		Detail("cannot translate %T", obj).
		Build()
}

// SVMResident reports whether ptr lies in a live SVM allocation of this
// device.
func (b *Base) SVMResident(ptr uint64) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for buf := range b.buffers {
		if buf.SVM && !buf.Freed() && buf.Contains(ptr) {
			return true
		}
	}
	return false
}

// Live returns the number of live buffers and images.
func (b *Base) Live() (buffers, images int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.buffers), len(b.images)
}

// Reset drops every buffer and image still allocated on the device.
func (b *Base) Reset() {
	b.mu.Lock()
	imgs := make([]*resource.Image, 0, len(b.images))
	for img := range b.images {
		imgs = append(imgs, img)
	}
	bufs := make([]*resource.Buffer, 0, len(b.buffers))
	for buf := range b.buffers {
		bufs = append(bufs, buf)
	}
	b.mu.Unlock()

	for _, img := range imgs {
		img.Drop()
	}
	for _, buf := range bufs {
		buf.Drop()
	}
	if n := len(imgs) + len(bufs); n > 0 {
		Logger().Debug("device reset dropped live objects",
			zap.String("device", b.name),
			zap.Int("count", n))
	}
}

// Detach replaces the device memory and allocator with ones that fail
// with an unsupported error. Devices call it on Close, before releasing
// the backing storage.
func (b *Base) Detach() {
	b.mu.Lock()
	b.mem = closedMemory{}
	b.heap = closedMemory{}
	b.mu.Unlock()
}
