package signature

import "fmt"

// Kind tags how a parameter's bytes are interpreted.
type Kind uint8

const (
	KindValue Kind = iota
	KindBuffer
	KindImage
	KindSampler
	KindLocal
	KindPointer
)

var kindNames = [...]string{
	KindValue:   "value",
	KindBuffer:  "buffer",
	KindImage:   "image",
	KindSampler: "sampler",
	KindLocal:   "local",
	KindPointer: "pointer",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsHandle reports whether arguments of this kind are resource handles that
// a device must translate during capture.
func (k Kind) IsHandle() bool {
	return k == KindBuffer || k == KindImage || k == KindSampler
}

// ParseKind returns the Kind with the given name.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown parameter kind %q", s)
}

// Access is the access qualifier of a memory-object parameter.
type Access uint8

const (
	AccessReadWrite Access = iota
	AccessReadOnly
	AccessWriteOnly
)

var accessNames = [...]string{
	AccessReadWrite: "read_write",
	AccessReadOnly:  "read_only",
	AccessWriteOnly: "write_only",
}

func (a Access) String() string {
	if int(a) < len(accessNames) {
		return accessNames[a]
	}
	return fmt.Sprintf("access(%d)", uint8(a))
}

// ParseAccess returns the Access with the given name. An empty name is
// read_write.
func ParseAccess(s string) (Access, error) {
	if s == "" {
		return AccessReadWrite, nil
	}
	for a, name := range accessNames {
		if name == s {
			return Access(a), nil
		}
	}
	return 0, fmt.Errorf("unknown access qualifier %q", s)
}
