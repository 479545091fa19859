package device

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/kernel-runtime/errors"
)

func TestHeap_AllocAligned(t *testing.T) {
	h := NewHeap(16, 4096, nil)

	tests := []struct {
		size  uint32
		align uint32
	}{
		{1, 1},
		{7, 8},
		{100, 64},
		{16, 16},
		{3, 256},
	}

	for _, tt := range tests {
		ptr, err := h.Alloc(tt.size, tt.align)
		if err != nil {
			t.Fatalf("Alloc(%d, %d) failed: %v", tt.size, tt.align, err)
		}
		if ptr == 0 {
			t.Fatalf("Alloc(%d, %d) returned null pointer", tt.size, tt.align)
		}
		if ptr%tt.align != 0 {
			t.Errorf("Alloc(%d, %d) = %d, not aligned", tt.size, tt.align, ptr)
		}
	}

	if h.Live() != len(tests) {
		t.Errorf("Live() = %d, want %d", h.Live(), len(tests))
	}
}

func TestHeap_NoOverlap(t *testing.T) {
	h := NewHeap(16, 1<<16, nil)

	type alloc struct{ ptr, size uint32 }
	var allocs []alloc
	for i := uint32(1); i <= 32; i++ {
		size := i * 13
		ptr, err := h.Alloc(size, 8)
		if err != nil {
			t.Fatalf("Alloc(%d) failed: %v", size, err)
		}
		allocs = append(allocs, alloc{ptr, size})
	}

	for i, a := range allocs {
		for j, b := range allocs {
			if i == j {
				continue
			}
			if a.ptr < b.ptr+b.size && b.ptr < a.ptr+a.size {
				t.Fatalf("allocations %d [%d,%d) and %d [%d,%d) overlap",
					i, a.ptr, a.ptr+a.size, j, b.ptr, b.ptr+b.size)
			}
		}
	}
}

func TestHeap_FreeCoalesces(t *testing.T) {
	h := NewHeap(0, 300, nil)

	a, _ := h.Alloc(100, 1)
	b, _ := h.Alloc(100, 1)
	c, _ := h.Alloc(100, 1)

	if _, err := h.Alloc(1, 1); err == nil {
		t.Fatal("expected exhausted heap")
	}

	h.Free(a, 100, 1)
	h.Free(c, 100, 1)
	h.Free(b, 100, 1)

	if h.InUse() != 0 {
		t.Errorf("InUse() = %d, want 0", h.InUse())
	}

	ptr, err := h.Alloc(300, 1)
	if err != nil {
		t.Fatalf("whole-arena Alloc after coalescing failed: %v", err)
	}
	if ptr != 0 {
		t.Errorf("ptr = %d, want 0", ptr)
	}
}

func TestHeap_ReusesFreedSpan(t *testing.T) {
	h := NewHeap(16, 1024, nil)

	a, _ := h.Alloc(64, 16)
	_, _ = h.Alloc(64, 16)
	h.Free(a, 64, 16)

	again, err := h.Alloc(64, 16)
	if err != nil {
		t.Fatalf("Alloc failed: %v", err)
	}
	if again != a {
		t.Errorf("first-fit returned %d, want reused %d", again, a)
	}
}

func TestHeap_Exhausted(t *testing.T) {
	h := NewHeap(16, 128, nil)

	_, err := h.Alloc(1024, 16)
	if err == nil {
		t.Fatal("expected allocation error")
	}

	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindAllocation {
		t.Errorf("error = %v, want allocation error", err)
	}
}

func TestHeap_Grow(t *testing.T) {
	limit := uint32(128)
	grows := 0
	h := NewHeap(16, limit, func(need uint32) (uint32, bool) {
		grows++
		limit += need + 256
		return limit, true
	})

	ptr, err := h.Alloc(512, 16)
	if err != nil {
		t.Fatalf("Alloc with grow failed: %v", err)
	}
	if grows != 1 {
		t.Errorf("grow called %d times, want 1", grows)
	}
	if ptr+512 > h.Limit() {
		t.Errorf("allocation [%d,%d) exceeds limit %d", ptr, ptr+512, h.Limit())
	}
}

func TestHeap_GrowRefused(t *testing.T) {
	h := NewHeap(16, 128, func(uint32) (uint32, bool) { return 0, false })

	if _, err := h.Alloc(512, 16); err == nil {
		t.Fatal("expected allocation error when grow is refused")
	}
}

func TestHeap_BadAlignment(t *testing.T) {
	h := NewHeap(16, 1024, nil)

	_, err := h.Alloc(8, 3)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Errorf("error = %v, want invalid input", err)
	}
}

func TestHeap_FreeUnknownIgnored(t *testing.T) {
	h := NewHeap(16, 1024, nil)

	ptr, _ := h.Alloc(32, 16)
	h.Free(ptr+4, 32, 16)
	h.Free(ptr, 32, 16)
	h.Free(ptr, 32, 16)

	if h.Live() != 0 || h.InUse() != 0 {
		t.Errorf("Live() = %d InUse() = %d, want 0/0", h.Live(), h.InUse())
	}
}
