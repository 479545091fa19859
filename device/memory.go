package device

import (
	"encoding/binary"
	"fmt"

	"github.com/wippyai/kernel-runtime/errors"
)

// Bytes is device memory backed by a host byte slice.
// Multi-byte values are little-endian.
type Bytes []byte

func (m Bytes) bounds(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m)) {
		return errors.New(errors.PhaseDevice, errors.KindOutOfBounds).
			Detail("access [%d, %d) exceeds memory size %d", offset, uint64(offset)+uint64(length), len(m)).
			Build()
	}
	return nil
}

func (m Bytes) Size() uint32 { return uint32(len(m)) }

func (m Bytes) Read(offset, length uint32) ([]byte, error) {
	if err := m.bounds(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m[offset:])
	return out, nil
}

func (m Bytes) Write(offset uint32, data []byte) error {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("write of %d bytes exceeds address space", len(data))
	}
	if err := m.bounds(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m[offset:], data)
	return nil
}

func (m Bytes) ReadU8(offset uint32) (uint8, error) {
	if err := m.bounds(offset, 1); err != nil {
		return 0, err
	}
	return m[offset], nil
}

func (m Bytes) ReadU32(offset uint32) (uint32, error) {
	if err := m.bounds(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m[offset:]), nil
}

func (m Bytes) ReadU64(offset uint32) (uint64, error) {
	if err := m.bounds(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m[offset:]), nil
}

func (m Bytes) WriteU8(offset uint32, value uint8) error {
	if err := m.bounds(offset, 1); err != nil {
		return err
	}
	m[offset] = value
	return nil
}

func (m Bytes) WriteU32(offset uint32, value uint32) error {
	if err := m.bounds(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m[offset:], value)
	return nil
}

func (m Bytes) WriteU64(offset uint32, value uint64) error {
	if err := m.bounds(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m[offset:], value)
	return nil
}

// closedMemory stands in for the memory and allocator of a closed device.
type closedMemory struct{}

func errClosed() error { return errors.Unsupported(errors.PhaseDevice, "device is closed") }

func (closedMemory) Read(uint32, uint32) ([]byte, error) { return nil, errClosed() }
func (closedMemory) Write(uint32, []byte) error          { return errClosed() }
func (closedMemory) ReadU8(uint32) (uint8, error)        { return 0, errClosed() }
func (closedMemory) ReadU32(uint32) (uint32, error)      { return 0, errClosed() }
func (closedMemory) ReadU64(uint32) (uint64, error)      { return 0, errClosed() }
func (closedMemory) WriteU8(uint32, uint8) error         { return errClosed() }
func (closedMemory) WriteU32(uint32, uint32) error       { return errClosed() }
func (closedMemory) WriteU64(uint32, uint64) error       { return errClosed() }
func (closedMemory) Size() uint32                        { return 0 }

func (closedMemory) Alloc(uint32, uint32) (uint32, error) { return 0, errClosed() }
func (closedMemory) Free(uint32, uint32, uint32)          {}
