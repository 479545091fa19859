package resource

import (
	"errors"
	"sync"
	"testing"
)

func TestLocalBackend_Basic(t *testing.T) {
	b := NewLocalBackend()
	buf := NewBuffer("dev", 64, 128, nil)

	h, err := b.Create(buf)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	got, ok := b.Get(h)
	if !ok || got != buf {
		t.Fatalf("Get = %v, %v", got, ok)
	}

	dropped, err := b.Drop(h)
	if err != nil || dropped != buf {
		t.Fatalf("Drop = %v, %v", dropped, err)
	}

	if _, ok := b.Get(h); ok {
		t.Fatal("Get should fail after Drop")
	}
}

func TestLocalBackend_Borrow(t *testing.T) {
	b := NewLocalBackend()
	h, _ := b.Create(&Sampler{})

	if _, ok := b.Borrow(h); !ok {
		t.Fatal("Borrow failed")
	}

	if _, err := b.Drop(h); !errors.Is(err, ErrOutstandingBorrow) {
		t.Fatalf("Drop with borrow: got %v, want ErrOutstandingBorrow", err)
	}

	if !b.ReturnBorrow(h) {
		t.Fatal("ReturnBorrow failed")
	}
	if b.ReturnBorrow(h) {
		t.Fatal("ReturnBorrow without borrow should fail")
	}

	if _, err := b.Drop(h); err != nil {
		t.Fatalf("Drop should succeed after returning borrow: %v", err)
	}
}

func TestLocalBackend_MultipleBorrows(t *testing.T) {
	b := NewLocalBackend()
	h, _ := b.Create(&Sampler{})

	for i := 0; i < 5; i++ {
		if _, ok := b.Borrow(h); !ok {
			t.Fatalf("Borrow %d failed", i)
		}
	}
	if b.BorrowCount(h) != 5 {
		t.Fatalf("BorrowCount = %d, want 5", b.BorrowCount(h))
	}

	for i := 0; i < 5; i++ {
		if !b.ReturnBorrow(h) {
			t.Fatalf("ReturnBorrow %d failed", i)
		}
	}

	if _, err := b.Drop(h); err != nil {
		t.Fatalf("Drop should succeed after returning all borrows: %v", err)
	}
}

func TestLocalBackend_HandleReuse(t *testing.T) {
	b := NewLocalBackend()

	h1, _ := b.Create(&Sampler{})
	h2, _ := b.Create(&Sampler{})
	h3, _ := b.Create(&Sampler{})

	_, _ = b.Drop(h2)

	h4, _ := b.Create(&Sampler{Filter: FilterLinear})
	if h4 != h2 {
		t.Errorf("expected freed slot %d to be reused, got %d", h2, h4)
	}

	for _, h := range []Handle{h1, h3, h4} {
		if _, ok := b.Get(h); !ok {
			t.Fatalf("handle %d should be valid", h)
		}
	}
}

func TestLocalBackend_Close(t *testing.T) {
	b := NewLocalBackend()

	released := 0
	_, _ = b.Create(NewBuffer("dev", 0, 16, func() { released++ }))
	_, _ = b.Create(NewBuffer("dev", 16, 16, func() { released++ }))

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if released != 2 {
		t.Fatalf("expected 2 releases on Close, got %d", released)
	}

	if _, err := b.Create(&Sampler{}); !errors.Is(err, ErrClosed) {
		t.Fatal("Expected ErrClosed after Close")
	}
}

func TestLocalBackend_Concurrent(t *testing.T) {
	b := NewLocalBackend()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			h, _ := b.Create(NewBuffer("dev", uint32(id)*16, 16, nil))
			b.Borrow(h)
			b.ReturnBorrow(h)
			_, _ = b.Drop(h)
		}(i)
	}

	wg.Wait()

	if b.Len() != 0 {
		t.Fatalf("Len = %d after concurrent create/drop, want 0", b.Len())
	}
}

func TestLocalBackend_InvalidHandle(t *testing.T) {
	b := NewLocalBackend()

	if _, ok := b.Get(0); ok {
		t.Error("handle 0 must be invalid")
	}
	if _, ok := b.Borrow(99); ok {
		t.Error("Borrow of unknown handle should fail")
	}
	if _, err := b.Drop(99); !errors.Is(err, ErrInvalidHandle) {
		t.Errorf("Drop of unknown handle: got %v", err)
	}
}
