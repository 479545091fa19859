package layout

import "unsafe"

// AlignTo rounds offset up to the next multiple of align.
// align must be zero or a power of two.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// IsPow2 reports whether v is a non-zero power of two.
func IsPow2(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

// NaturalAlign returns the alignment of an opaque value of the given size:
// the largest power of two dividing size, capped at max.
func NaturalAlign(size, max uint32) uint32 {
	if size == 0 {
		return 1
	}
	align := size & -size
	if align > max {
		return max
	}
	return align
}

// DiscriminantSize returns the byte width of a variant discriminant.
func DiscriminantSize(numCases int) uint32 {
	if numCases <= 256 {
		return 1
	} else if numCases <= 65536 {
		return 2
	}
	return 4
}

// Region is one aligned span inside a planned block.
type Region struct {
	Offset uint32
	Size   uint32
}

// End returns the first byte past the region.
func (r Region) End() uint32 { return r.Offset + r.Size }

// Plan lays out regions of the given sizes back to back, starting every
// region on an align boundary. It returns the regions and the total block
// size rounded up to align.
func Plan(align uint32, sizes ...uint32) ([]Region, uint32) {
	regions := make([]Region, len(sizes))
	offset := uint32(0)
	for i, size := range sizes {
		offset = AlignTo(offset, align)
		regions[i] = Region{Offset: offset, Size: size}
		offset += size
	}
	return regions, AlignTo(offset, align)
}

// AlignedBytes allocates a zeroed byte slice whose first element is
// aligned to align, which must be a power of two.
func AlignedBytes(size int, align uintptr) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+int(align)-1)

	offset := uintptr(0)
	if mod := uintptr(unsafe.Pointer(&buf[0])) & (align - 1); mod != 0 {
		offset = align - mod
	}
	return buf[offset : offset+uintptr(size) : offset+uintptr(size)]
}

// BoolView returns r of block as a []bool sharing block's memory. The
// region must only hold 0 or 1 bytes.
func BoolView(block []byte, r Region) []bool {
	if r.Size == 0 {
		return []bool{}
	}
	return unsafe.Slice((*bool)(unsafe.Pointer(&block[r.Offset])), int(r.Size))
}
