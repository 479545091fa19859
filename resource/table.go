package resource

import (
	"sync"
)

// Table maps handles to memory objects with observer support.
type Table struct {
	backend   *LocalBackend
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTable creates a new table with a LocalBackend.
func NewTable() *Table {
	return &Table{
		backend: NewLocalBackend(),
	}
}

// Insert adds an object and returns its handle, or 0 once the table is closed.
func (t *Table) Insert(value Object) Handle {
	t.closeMu.RLock()
	if t.closed {
		t.closeMu.RUnlock()
		return 0
	}
	t.closeMu.RUnlock()

	handle, err := t.backend.Create(value)
	if err != nil {
		return 0
	}

	t.notify(Event{Type: EventCreated, Handle: handle, Value: value})
	return handle
}

// Get retrieves an object by handle.
func (t *Table) Get(handle Handle) (Object, bool) {
	return t.backend.Get(handle)
}

// Borrow pins an object so it cannot be removed until ReturnBorrow.
func (t *Table) Borrow(handle Handle) (Object, bool) {
	value, ok := t.backend.Borrow(handle)
	if !ok {
		return nil, false
	}
	t.notify(Event{Type: EventBorrowed, Handle: handle, Value: value})
	return value, true
}

// ReturnBorrow releases one pin taken by Borrow.
func (t *Table) ReturnBorrow(handle Handle) bool {
	if !t.backend.ReturnBorrow(handle) {
		return false
	}
	value, _ := t.backend.Get(handle)
	t.notify(Event{Type: EventBorrowReturned, Handle: handle, Value: value})
	return true
}

// Borrowed reports the outstanding borrows of a handle.
func (t *Table) Borrowed(handle Handle) uint32 {
	return t.backend.BorrowCount(handle)
}

// Remove drops an object, running its destructor. It fails while the
// object is borrowed.
func (t *Table) Remove(handle Handle) (Object, error) {
	value, err := t.backend.Drop(handle)
	if err != nil {
		return nil, err
	}

	if d, ok := value.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{Type: EventDropped, Handle: handle, Value: value})
	return value, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	return t.backend.Len()
}

// Close releases all objects and stops accepting inserts.
func (t *Table) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	return t.backend.Close()
}

func (t *Table) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
