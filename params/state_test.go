package params

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"
	"testing"
	"unsafe"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/signature"
)

func mustSig(t *testing.T, params ...signature.Param) *signature.Signature {
	t.Helper()
	sig, err := signature.New(params, "")
	if err != nil {
		t.Fatalf("signature.New failed: %v", err)
	}
	return sig
}

func u32(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func u64(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }

func scenarioSig(t *testing.T) *signature.Signature {
	return mustSig(t,
		signature.Param{Name: "a", Kind: signature.KindValue, Size: 4},
		signature.Param{Name: "b", Kind: signature.KindValue, Size: 8, Align: 4},
	)
}

func TestNew_Fresh(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
		signature.Param{Name: "x", Kind: signature.KindBuffer},
		signature.Param{Name: "tmp", Kind: signature.KindLocal},
	)
	s := New(sig)

	if s.Check() {
		t.Error("Check() = true for fresh state")
	}
	for i := 0; i < sig.NumParameters(); i++ {
		if s.Test(i) {
			t.Errorf("Test(%d) = true for fresh state", i)
		}
	}
	for i, b := range s.Values() {
		if b != 0 {
			t.Fatalf("values[%d] = %d, want zero", i, b)
		}
	}
	if len(s.Missing()) != 3 {
		t.Errorf("Missing() = %v, want 3 entries", s.Missing())
	}
}

func TestNew_RegionsAligned(t *testing.T) {
	s := New(mustSig(t,
		signature.Param{Kind: signature.KindValue, Size: 3},
		signature.Param{Kind: signature.KindValue, Size: 1},
		signature.Param{Kind: signature.KindValue, Size: 2},
	))

	addrs := map[string]uintptr{
		"values":   uintptr(unsafe.Pointer(&s.values[0])),
		"defined":  uintptr(unsafe.Pointer(&s.defined[0])),
		"svmBound": uintptr(unsafe.Pointer(&s.svmBound[0])),
	}
	for name, addr := range addrs {
		if addr%signature.ParamsMinAlignment != 0 {
			t.Errorf("%s region at %#x is not %d-aligned", name, addr, signature.ParamsMinAlignment)
		}
	}
}

func TestNew_Empty(t *testing.T) {
	s := New(mustSig(t))

	if !s.Check() {
		t.Error("Check() = false for a kernel without parameters")
	}
	if s.LocalMemSize(16) != 0 {
		t.Error("LocalMemSize != 0 for a kernel without parameters")
	}
}

func TestSet_TestReset(t *testing.T) {
	s := New(scenarioSig(t))

	if err := s.Set(0, 4, u32(7), false); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Test(0) {
		t.Fatal("Test(0) = false after Set")
	}
	if err := s.Set(1, 8, u64(9), false); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !s.Check() {
		t.Fatal("Check() = false with every argument bound")
	}

	s.Reset(0)
	if s.Test(0) {
		t.Error("Test(0) = true after Reset")
	}
	if s.Check() {
		t.Error("Check() = true after Reset")
	}
	if v := binary.LittleEndian.Uint32(s.Values()[0:]); v != 7 {
		t.Errorf("Reset changed stored bytes: %d", v)
	}
}

func TestCheck_EveryIndexReset(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Kind: signature.KindValue, Size: 4},
		signature.Param{Kind: signature.KindValue, Size: 2},
		signature.Param{Kind: signature.KindValue, Size: 1},
	)

	for reset := 0; reset < sig.NumParameters(); reset++ {
		s := New(sig)
		for i := 0; i < sig.NumParameters(); i++ {
			d := sig.At(i)
			if err := s.Set(i, int(d.Size), make([]byte, d.Size), false); err != nil {
				t.Fatalf("Set(%d) failed: %v", i, err)
			}
		}
		if !s.Check() {
			t.Fatal("Check() = false with every argument bound")
		}
		s.Reset(reset)
		if s.Check() {
			t.Errorf("Check() = true after Reset(%d)", reset)
		}
		if m := s.Missing(); len(m) != 1 || m[0] != reset {
			t.Errorf("Missing() = %v, want [%d]", m, reset)
		}
	}
}

func TestSet_SizeMismatch(t *testing.T) {
	s := New(scenarioSig(t))

	tests := []struct {
		name   string
		before bool
	}{
		{"unbound stays unbound", false},
		{"bound stays bound", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.Reset(0)
			if tt.before {
				if err := s.Set(0, 4, u32(1), false); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}

			err := s.Set(0, 8, u64(2), false)
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != errors.KindSizeMismatch {
				t.Fatalf("error = %v, want size mismatch", err)
			}
			if e.Param != 0 || !e.Contract() {
				t.Errorf("Param = %d Contract = %v", e.Param, e.Contract())
			}
			if s.Test(0) != tt.before {
				t.Errorf("Test(0) = %v, want %v", s.Test(0), tt.before)
			}
			if tt.before {
				if v := binary.LittleEndian.Uint32(s.Values()); v != 1 {
					t.Errorf("failed Set changed value to %d", v)
				}
			}
		})
	}
}

func TestSet_Errors(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
		signature.Param{Name: "tmp", Kind: signature.KindLocal},
		signature.Param{Name: "img", Kind: signature.KindImage},
	)

	tests := []struct {
		name  string
		index int
		size  int
		value []byte
		svm   bool
		kind  errors.Kind
	}{
		{"negative index", -1, 4, u32(0), false, errors.KindOutOfBounds},
		{"index past end", 3, 4, u32(0), false, errors.KindOutOfBounds},
		{"short value", 0, 4, []byte{1, 2}, false, errors.KindInvalidInput},
		{"value marked svm", 0, 4, u32(0), true, errors.KindInvalidInput},
		{"local with value", 1, 8, u64(64), false, errors.KindInvalidInput},
		{"local zero size", 1, 0, nil, false, errors.KindInvalidInput},
		{"image marked svm", 2, 8, u64(1), true, errors.KindInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(sig, WithName("k"))
			err := s.Set(tt.index, tt.size, tt.value, tt.svm)
			var e *errors.Error
			if !stderrors.As(err, &e) || e.Kind != tt.kind {
				t.Fatalf("error = %v, want %s", err, tt.kind)
			}
			if e.Phase != errors.PhaseBind {
				t.Errorf("Phase = %s, want bind", e.Phase)
			}
			if len(e.Path) == 0 || e.Path[0] != "k" {
				t.Errorf("Path = %v, want kernel name first", e.Path)
			}
		})
	}
}

func TestSet_ZeroSize(t *testing.T) {
	s := New(mustSig(t,
		signature.Param{Name: "empty", Kind: signature.KindValue, Type: &wit.TypeDef{Kind: &wit.Record{}}},
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
	))

	if err := s.Set(0, 0, nil, false); err != nil {
		t.Fatalf("Set of zero-size argument failed: %v", err)
	}
	if !s.Test(0) {
		t.Error("zero-size argument not marked defined")
	}
	for _, b := range s.Values() {
		if b != 0 {
			t.Fatal("zero-size Set wrote bytes")
		}
	}
}

func TestIndexPanics(t *testing.T) {
	s := New(scenarioSig(t))

	tests := []struct {
		name string
		fn   func()
	}{
		{"Test", func() { s.Test(2) }},
		{"Reset", func() { s.Reset(-1) }},
		{"IsSvm", func() { s.IsSvm(5) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				r := recover()
				e, ok := r.(*errors.Error)
				if !ok || e.Kind != errors.KindOutOfBounds {
					t.Errorf("recovered %v, want out-of-bounds *errors.Error", r)
				}
			}()
			tt.fn()
		})
	}
}

func TestLocalMemSize(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Name: "a", Kind: signature.KindLocal},
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
		signature.Param{Name: "b", Kind: signature.KindLocal},
		signature.Param{Name: "c", Kind: signature.KindLocal},
	)
	s := New(sig)

	_ = s.SetLocal(0, 100)
	_ = s.SetScalar(1, uint32(4096))
	_ = s.SetLocal(2, 16)

	tests := []struct {
		minAlign uint32
		want     uint64
	}{
		{0, 116},
		{1, 116},
		{16, 112 + 16},
		{64, 128 + 64},
	}
	for _, tt := range tests {
		if got := s.LocalMemSize(tt.minAlign); got != tt.want {
			t.Errorf("LocalMemSize(%d) = %d, want %d", tt.minAlign, got, tt.want)
		}
	}

	s.Reset(0)
	if got := s.LocalMemSize(1); got != 16 {
		t.Errorf("LocalMemSize after Reset = %d, want 16", got)
	}
}

func TestScenario_NoLocals(t *testing.T) {
	s := New(scenarioSig(t))

	_ = s.Set(0, 4, u32(0xaabbccdd), false)
	if s.Check() {
		t.Fatal("Check() = true with one argument bound")
	}
	_ = s.Set(1, 8, u64(0x1122334455667788), false)
	if !s.Check() {
		t.Fatal("Check() = false with both arguments bound")
	}
	if s.LocalMemSize(16) != 0 {
		t.Errorf("LocalMemSize = %d, want 0", s.LocalMemSize(16))
	}
}

func TestSetScalar(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Name: "flag", Kind: signature.KindValue, Type: wit.Bool{}},
		signature.Param{Name: "a", Kind: signature.KindValue, Type: wit.F32{}},
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.S64{}},
		signature.Param{Name: "v", Kind: signature.KindValue, Size: 8},
	)
	s := New(sig)

	if err := s.SetScalar(0, true); err != nil {
		t.Fatalf("SetScalar(bool) failed: %v", err)
	}
	if err := s.SetScalar(1, float32(2.5)); err != nil {
		t.Fatalf("SetScalar(f32) failed: %v", err)
	}
	if err := s.SetScalar(2, int64(-3)); err != nil {
		t.Fatalf("SetScalar(s64) failed: %v", err)
	}
	if err := s.SetScalar(3, [2]uint32{1, 2}); err != nil {
		t.Fatalf("SetScalar(array) failed: %v", err)
	}

	var e *errors.Error
	if err := s.SetScalar(1, float64(2.5)); !stderrors.As(err, &e) || e.Kind != errors.KindSizeMismatch {
		t.Errorf("SetScalar(f64 into f32) error = %v, want size mismatch", err)
	}
	if err := s.SetScalar(1, "text"); !stderrors.As(err, &e) || e.Kind != errors.KindInvalidInput {
		t.Errorf("SetScalar(string) error = %v, want invalid input", err)
	}

	vals := s.Values()
	if vals[sig.At(0).Offset] != 1 {
		t.Error("bool not stored as 1")
	}
	want := u32(1)
	want = append(want, u32(2)...)
	off := sig.At(3).Offset
	if !bytes.Equal(vals[off:off+8], want) {
		t.Errorf("array bytes = %x, want %x", vals[off:off+8], want)
	}
}

func TestSetHandleAndPointer(t *testing.T) {
	sig := mustSig(t,
		signature.Param{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
		signature.Param{Name: "x", Kind: signature.KindBuffer},
		signature.Param{Name: "p", Kind: signature.KindPointer},
	)
	s := New(sig)

	if err := s.SetHandle(0, 1); err == nil {
		t.Error("SetHandle on a value argument should fail")
	}
	if err := s.SetHandle(1, 5); err != nil {
		t.Fatalf("SetHandle failed: %v", err)
	}
	if err := s.SetPointer(1, 0x1000, false); err == nil {
		t.Error("non-SVM pointer into a buffer argument should fail")
	}
	if err := s.SetPointer(1, 0x1000, true); err != nil {
		t.Fatalf("SetPointer(svm) on buffer failed: %v", err)
	}
	if !s.IsSvm(1) {
		t.Error("IsSvm(1) = false after SVM bind")
	}
	if err := s.SetPointer(2, 0x2000, false); err != nil {
		t.Fatalf("SetPointer failed: %v", err)
	}
	if s.IsSvm(2) {
		t.Error("IsSvm(2) = true after plain pointer bind")
	}
	if err := s.SetHandle(7, 1); err == nil {
		t.Error("SetHandle past the end should fail")
	}
}

func TestSvmPtrs(t *testing.T) {
	s := New(scenarioSig(t))

	s.AddSvmPtr([]uint64{1, 2, 3})
	if s.NumberOfSvmPtr() != 3 {
		t.Fatalf("NumberOfSvmPtr() = %d, want 3", s.NumberOfSvmPtr())
	}
	s.AddSvmPtr([]uint64{9})
	if s.NumberOfSvmPtr() != 1 || s.SvmPtrs()[0] != 9 {
		t.Errorf("AddSvmPtr did not replace the list: %v", s.SvmPtrs())
	}
	s.AddSvmPtr(nil)
	if s.NumberOfSvmPtr() != 0 {
		t.Errorf("NumberOfSvmPtr() = %d after clearing", s.NumberOfSvmPtr())
	}
}

func TestFineGrain(t *testing.T) {
	s := New(scenarioSig(t))

	if s.FineGrainSupport() != FineGrainDefault {
		t.Errorf("default = %s", s.FineGrainSupport())
	}
	s.SetFineGrainSupport(FineGrainSupported)
	if s.FineGrainSupport() != FineGrainSupported {
		t.Errorf("FineGrainSupport() = %s", s.FineGrainSupport())
	}
	if s.ResolveFineGrain(fineGrainDevice(false)) != FineGrainSupported {
		t.Error("ResolveFineGrain overrode an explicit setting")
	}

	s.SetFineGrainSupport(FineGrainDefault)
	if s.ResolveFineGrain(struct{}{}) != FineGrainDefault {
		t.Error("ResolveFineGrain changed flag for a device that does not report it")
	}
	if s.ResolveFineGrain(fineGrainDevice(false)) != FineGrainUnsupported {
		t.Error("ResolveFineGrain did not cache unsupported")
	}
}

type fineGrainDevice bool

func (f fineGrainDevice) FineGrainSystem() bool { return bool(f) }

func TestIndependentStates(t *testing.T) {
	sig := scenarioSig(t)
	a := New(sig)
	b := New(sig)

	_ = a.Set(0, 4, u32(42), false)
	if b.Test(0) {
		t.Error("Set on one state is visible in another")
	}
	if binary.LittleEndian.Uint32(b.Values()) != 0 {
		t.Error("values shared between states")
	}
}

func TestClone(t *testing.T) {
	s := New(scenarioSig(t), WithName("k"))
	_ = s.Set(0, 4, u32(1), false)
	_ = s.Set(1, 8, u64(2), false)
	s.AddSvmPtr([]uint64{0x40})
	s.SetFineGrainSupport(FineGrainSupported)

	c := s.Clone()
	if !c.Check() || c.NumberOfSvmPtr() != 1 || c.FineGrainSupport() != FineGrainSupported {
		t.Fatal("clone lost bindings")
	}

	c.Reset(0)
	_ = c.Set(1, 8, u64(3), false)
	if !s.Test(0) {
		t.Error("Reset on clone affected original")
	}
	if v := binary.LittleEndian.Uint64(s.Values()[4:]); v != 2 {
		t.Errorf("original value = %d after clone Set, want 2", v)
	}
}
