package resource

import "fmt"

// Handle is an opaque reference to an object in a table.
// Handle 0 is reserved and always invalid.
type Handle uint32

// ObjectType identifies the class of a memory object.
type ObjectType uint8

const (
	TypeBuffer ObjectType = iota + 1
	TypeImage
	TypeSampler
)

func (t ObjectType) String() string {
	switch t {
	case TypeBuffer:
		return "buffer"
	case TypeImage:
		return "image"
	case TypeSampler:
		return "sampler"
	}
	return fmt.Sprintf("object(%d)", uint8(t))
}

// Object is a host-side memory object that kernels can reference.
type Object interface {
	ObjectType() ObjectType
}

// Event types for lifecycle notifications.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
	EventBorrowed
	EventBorrowReturned
)

var eventNames = [...]string{
	EventCreated:        "created",
	EventDropped:        "dropped",
	EventBorrowed:       "borrowed",
	EventBorrowReturned: "borrow_returned",
}

func (t EventType) String() string {
	if int(t) < len(eventNames) {
		return eventNames[t]
	}
	return "unknown"
}

// Event represents a lifecycle event.
type Event struct {
	Value  Object
	Handle Handle
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend provides the underlying storage mechanism for objects.
type Backend interface {
	// Create stores an object and returns a handle.
	Create(value Object) (Handle, error)

	// Get retrieves an object by handle.
	Get(handle Handle) (Object, bool)

	// Drop removes an object. It fails if the handle is invalid or has
	// outstanding borrows.
	Drop(handle Handle) (Object, error)

	// Borrow increments the borrow count for a handle.
	Borrow(handle Handle) (Object, bool)

	// ReturnBorrow decrements the borrow count for a handle.
	ReturnBorrow(handle Handle) bool

	// Close releases all objects held by the backend.
	Close() error
}

// Dropper is optionally implemented by objects that need cleanup when they
// leave a table.
type Dropper interface {
	Drop()
}
