package device

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/internal/layout"
)

// GrowFunc extends a heap's address space by at least need bytes and
// returns the new limit.
type GrowFunc func(need uint32) (limit uint32, ok bool)

type span struct {
	addr uint32
	size uint32
}

func (s span) end() uint64 { return uint64(s.addr) + uint64(s.size) }

// Heap is a first-fit allocator over a linear device address space
// [base, limit). Freed spans are coalesced with their neighbours.
// It is safe for concurrent use.
type Heap struct {
	grow  GrowFunc
	live  map[uint32]uint32
	free  []span // sorted by addr, never adjacent
	mu    sync.Mutex
	limit uint32
	inUse uint32
}

// NewHeap manages [base, limit). grow may be nil for a fixed arena.
func NewHeap(base, limit uint32, grow GrowFunc) *Heap {
	h := &Heap{
		grow:  grow,
		live:  make(map[uint32]uint32),
		limit: limit,
	}
	if limit > base {
		h.free = []span{{addr: base, size: limit - base}}
	}
	return h
}

// Alloc reserves size bytes aligned to align.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	if !layout.IsPow2(align) {
		return 0, errors.InvalidInput(errors.PhaseDevice, fmt.Sprintf("alignment %d is not a power of two", align))
	}
	if size == 0 {
		size = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if addr, ok := h.take(size, align); ok {
		return addr, nil
	}

	if h.grow != nil {
		if limit, ok := h.grow(size + align); ok && limit > h.limit {
			h.insert(span{addr: h.limit, size: limit - h.limit})
			h.limit = limit
			if addr, ok := h.take(size, align); ok {
				return addr, nil
			}
		}
	}

	return 0, errors.AllocationFailed(errors.PhaseDevice, size, align)
}

func (h *Heap) take(size, align uint32) (uint32, bool) {
	for i, s := range h.free {
		start := uint64(layout.AlignTo(s.addr, align))
		if start < uint64(s.addr) || start+uint64(size) > s.end() {
			continue
		}

		var rest []span
		if uint32(start) > s.addr {
			rest = append(rest, span{addr: s.addr, size: uint32(start) - s.addr})
		}
		if tail := s.end() - (start + uint64(size)); tail > 0 {
			rest = append(rest, span{addr: uint32(start) + size, size: uint32(tail)})
		}
		h.free = slices.Replace(h.free, i, i+1, rest...)

		h.live[uint32(start)] = size
		h.inUse += size
		return uint32(start), true
	}
	return 0, false
}

// Free returns an allocation. Unknown pointers are ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	actual, ok := h.live[ptr]
	if !ok {
		Logger().Warn("free of unknown device pointer",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size))
		return
	}
	if size != 0 && size != actual {
		Logger().Debug("free size differs from allocation",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Uint32("allocated", actual))
	}

	delete(h.live, ptr)
	h.inUse -= actual
	h.insert(span{addr: ptr, size: actual})
}

// insert adds s to the free list and merges it with adjacent spans.
func (h *Heap) insert(s span) {
	i, _ := slices.BinarySearchFunc(h.free, s.addr, func(e span, addr uint32) int {
		switch {
		case e.addr < addr:
			return -1
		case e.addr > addr:
			return 1
		}
		return 0
	})
	h.free = slices.Insert(h.free, i, s)

	if i+1 < len(h.free) && h.free[i].end() == uint64(h.free[i+1].addr) {
		h.free[i].size += h.free[i+1].size
		h.free = slices.Delete(h.free, i+1, i+2)
	}
	if i > 0 && h.free[i-1].end() == uint64(h.free[i].addr) {
		h.free[i-1].size += h.free[i].size
		h.free = slices.Delete(h.free, i, i+1)
	}
}

// InUse returns the number of allocated bytes.
func (h *Heap) InUse() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}

// Live returns the number of outstanding allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Limit returns the end of the managed address space.
func (h *Heap) Limit() uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.limit
}
