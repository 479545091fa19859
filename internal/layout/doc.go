// Package layout computes sizes, alignments and offsets for kernel argument
// storage.
//
// Value parameters are described with WIT types and follow the Canonical ABI
// layout rules:
//   - Primitives: size equals alignment (u8=1, u32=4, u64=8, etc.)
//   - Records and tuples: fields laid out sequentially with padding
//   - Variants, options and results: discriminant followed by the largest payload
//   - Lists/Strings: (pointer, length) pair
//
// Region planning packs a sequence of regions into one block, each region
// starting on a fixed boundary.
//
// This package is internal to the runtime.
package layout
