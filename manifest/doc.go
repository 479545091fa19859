// Package manifest reads program manifests: YAML or JSON documents that
// declare a program's kernels and their formal parameters.
//
//	program: blas
//	kernels:
//	  - name: saxpy
//	    attributes: "reqd_work_group_size(64,1,1)"
//	    params:
//	      - {name: n, kind: value, type: u32}
//	      - {name: a, kind: value, type: f32}
//	      - {name: x, kind: buffer, access: read_only}
//	      - {name: y, kind: buffer}
//	      - {name: tmp, kind: local}
//
// Value parameters name a WIT primitive type (bool, u8 ... s64, f32, f64,
// char, string) or use type "size" with an explicit byte size and an
// optional alignment. Kind defaults to value.
package manifest
