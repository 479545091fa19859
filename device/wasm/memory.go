package wasm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/device"
)

const pageSize = 65536

// Memory adapts a wazero linear memory to kernelrt.Memory. Growing the
// memory reallocates its backing slice, so growth and guest calls hold mu
// exclusively while host reads and writes share it.
type Memory struct {
	Mem api.Memory
	mu  sync.RWMutex
}

// WrapMemory wraps mem, returning nil for a nil memory.
func WrapMemory(mem api.Memory) *Memory {
	if mem == nil {
		return nil
	}
	return &Memory{Mem: mem}
}

var _ kernelrt.Memory = (*Memory)(nil)

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.Mem.Size()
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.Mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.Mem.Write(offset, data) {
		return fmt.Errorf("memory write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.Mem.ReadByte(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.Mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.Mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read out of bounds: offset=%d", offset)
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.Mem.WriteByte(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.Mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.Mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write out of bounds: offset=%d", offset)
	}
	return nil
}

// grow returns a device.GrowFunc that adds whole pages, staying within
// maxPages.
func (m *Memory) grow(maxPages uint32) device.GrowFunc {
	return func(need uint32) (uint32, bool) {
		m.mu.Lock()
		defer m.mu.Unlock()

		pages := (uint64(need) + pageSize - 1) / pageSize
		current := uint64(m.Mem.Size()) / pageSize
		if current+pages > uint64(maxPages) {
			Logger().Debug("memory grow refused",
				zap.Uint64("pages", pages),
				zap.Uint64("current", current),
				zap.Uint32("max", maxPages))
			return 0, false
		}
		if _, ok := m.Mem.Grow(uint32(pages)); !ok {
			return 0, false
		}
		return m.Mem.Size(), true
	}
}

// GuestAllocator allocates device scratch through the module's own
// cabi_realloc export.
type GuestAllocator struct {
	Ctx context.Context
	Fn  api.Function

	// Mem is locked exclusively around each call when set.
	Mem *Memory
}

func (a *GuestAllocator) lock() func() {
	if a.Mem == nil {
		return func() {}
	}
	a.Mem.mu.Lock()
	return a.Mem.mu.Unlock
}

// Alloc calls realloc(0, 0, align, size).
func (a *GuestAllocator) Alloc(size, align uint32) (uint32, error) {
	unlock := a.lock()
	results, err := a.Fn.Call(a.Ctx, 0, 0, uint64(align), uint64(size))
	unlock()
	if err != nil {
		return 0, fmt.Errorf("allocation failed: %w", err)
	}
	if len(results) == 0 {
		return 0, fmt.Errorf("allocation returned no result")
	}
	if results[0] == 0 {
		return 0, fmt.Errorf("allocation of %d bytes returned null", size)
	}
	return uint32(results[0]), nil
}

// Free calls realloc(ptr, size, align, 0).
func (a *GuestAllocator) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	unlock := a.lock()
	_, err := a.Fn.Call(a.Ctx, uint64(ptr), uint64(size), uint64(align), 0)
	unlock()
	if err != nil {
		Logger().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}
