package kernel

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"math"
	"testing"

	"go.bytecodealliance.org/wit"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/device/host"
	"github.com/wippyai/kernel-runtime/device/wasm"
	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

// kernelWASM exports one page of memory and a no-op (i32) -> () function
// as both "saxpy" and "saxpy.noalias".
var kernelWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x01, 0x05, 0x01, 0x60, 0x01, 0x7f, 0x00, // type section: (i32) -> ()
	0x03, 0x02, 0x01, 0x00, // function section: 1 func of type 0
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x22, 0x03, // export section: 34 bytes, 3 exports
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // "memory" memory 0
	0x05, 0x73, 0x61, 0x78, 0x70, 0x79, 0x00, 0x00, // "saxpy" func 0
	0x0d, 0x73, 0x61, 0x78, 0x70, 0x79, 0x2e, 0x6e, 0x6f, 0x61, 0x6c, 0x69, 0x61, 0x73, 0x00, 0x00, // "saxpy.noalias" func 0
	0x0a, 0x04, 0x01, 0x02, 0x00, 0x0b, // code section: empty body
}

func saxpySig(t *testing.T) *signature.Signature {
	t.Helper()
	sig, err := signature.New([]signature.Param{
		{Name: "n", Kind: signature.KindValue, Type: wit.U32{}},
		{Name: "a", Kind: signature.KindValue, Type: wit.F32{}},
		{Name: "x", Kind: signature.KindBuffer, Access: signature.AccessReadOnly},
		{Name: "y", Kind: signature.KindBuffer},
	}, "")
	if err != nil {
		t.Fatalf("signature.New failed: %v", err)
	}
	return sig
}

// saxpy computes y = a*x + y from a captured argument image.
func saxpy(sig *signature.Signature) host.Func {
	return func(_ context.Context, mem kernelrt.Memory, image uint32) error {
		n, err := mem.ReadU32(image + sig.At(0).Offset)
		if err != nil {
			return err
		}
		abits, _ := mem.ReadU32(image + sig.At(1).Offset)
		x, _ := mem.ReadU64(image + sig.At(2).Offset)
		y, _ := mem.ReadU64(image + sig.At(3).Offset)
		a := math.Float32frombits(abits)

		for i := uint32(0); i < n; i++ {
			xv, err := mem.ReadU32(uint32(x) + 4*i)
			if err != nil {
				return err
			}
			yv, _ := mem.ReadU32(uint32(y) + 4*i)
			r := a*math.Float32frombits(xv) + math.Float32frombits(yv)
			if err := mem.WriteU32(uint32(y)+4*i, math.Float32bits(r)); err != nil {
				return err
			}
		}
		return nil
	}
}

func f32s(vs ...float32) []byte {
	out := make([]byte, 0, 4*len(vs))
	for _, v := range vs {
		out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
	}
	return out
}

func TestKernel_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dev, err := host.New(&host.Config{ArenaSize: 1 << 16})
	if err != nil {
		t.Fatalf("host.New failed: %v", err)
	}
	defer dev.Close()

	sig := saxpySig(t)
	dev.Register("saxpy", saxpy(sig))

	prog := NewProgram("blas", dev, map[string]*signature.Signature{"saxpy": sig})
	k, err := prog.NewKernel("saxpy")
	if err != nil {
		t.Fatalf("NewKernel failed: %v", err)
	}

	x, _ := dev.AllocBuffer(16)
	y, _ := dev.AllocBuffer(16)
	_ = dev.WriteBuffer(x, 0, f32s(1, 2, 3, 4))
	_ = dev.WriteBuffer(y, 0, f32s(10, 20, 30, 40))

	p := k.Parameters()
	_ = p.SetScalar(0, uint32(4))
	_ = p.SetScalar(1, float32(2))
	_ = p.SetHandle(2, prog.Objects().Insert(x))
	_ = p.SetHandle(3, prog.Objects().Insert(y))

	c, err := p.Capture(dev)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}

	ep, err := k.DeviceEntryPoint(dev, false)
	if err != nil {
		t.Fatalf("DeviceEntryPoint failed: %v", err)
	}
	if err := ep.Call(ctx, c.Addr()); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if err := k.Close(); err == nil {
		t.Error("Close with an outstanding capture should fail")
	}
	if err := p.Release(c, dev); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	got, _ := dev.ReadBuffer(y)
	want := f32s(12, 24, 36, 48)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("y = %x, want %x", got, want)
		}
	}

	if err := k.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := prog.Close(); err != nil {
		t.Fatalf("program Close failed: %v", err)
	}
	if bufs, _ := dev.Live(); bufs != 0 {
		t.Errorf("live buffers = %d after program Close, want 0", bufs)
	}
}

func TestProgram_NewKernel(t *testing.T) {
	sig := saxpySig(t)
	prog := NewProgram("blas", nil, map[string]*signature.Signature{"saxpy": sig, "axpby": sig})

	if syms := prog.Symbols(); len(syms) != 2 || syms[0] != "axpby" || syms[1] != "saxpy" {
		t.Errorf("Symbols() = %v", syms)
	}

	k, err := prog.NewKernel("saxpy")
	if err != nil {
		t.Fatalf("NewKernel failed: %v", err)
	}
	if k.Name() != "saxpy" || k.Signature() != sig || k.Program() != prog {
		t.Error("kernel accessors do not match")
	}
	if k.Parameters().Signature() != sig || k.Parameters().Objects() != prog.Objects() {
		t.Error("parameter state not wired to program")
	}

	_, err = prog.NewKernel("gemm")
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("error = %v, want not found", err)
	}
}

func TestProgram_RefCounting(t *testing.T) {
	prog := NewProgram("blas", nil, map[string]*signature.Signature{"saxpy": saxpySig(t)})

	a, _ := prog.NewKernel("saxpy")
	b, _ := prog.NewKernel("saxpy")
	c, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone failed: %v", err)
	}
	if prog.Refs() != 3 {
		t.Fatalf("Refs() = %d, want 3", prog.Refs())
	}

	var e *errors.Error
	if err := prog.Close(); !stderrors.As(err, &e) || e.Kind != errors.KindInUse {
		t.Fatalf("Close error = %v, want in use", err)
	}

	_ = a.Close()
	_ = a.Close()
	_ = b.Close()
	if prog.Refs() != 1 {
		t.Errorf("Refs() = %d, want 1 (double Close must not over-release)", prog.Refs())
	}
	_ = c.Close()

	if err := prog.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := prog.NewKernel("saxpy"); err == nil {
		t.Error("NewKernel on a closed program should fail")
	}
}

func TestKernel_CloneIndependent(t *testing.T) {
	prog := NewProgram("blas", nil, map[string]*signature.Signature{"saxpy": saxpySig(t)})
	k, _ := prog.NewKernel("saxpy")
	defer k.Close()

	_ = k.Parameters().SetScalar(0, uint32(8))
	c, _ := k.Clone()
	defer c.Close()

	if !c.Parameters().Test(0) {
		t.Error("clone lost binding")
	}
	c.Parameters().Reset(0)
	if !k.Parameters().Test(0) {
		t.Error("Reset on clone reached original")
	}
}

func TestKernel_NoResolver(t *testing.T) {
	prog := NewProgram("blas", nil, map[string]*signature.Signature{"saxpy": saxpySig(t)})
	k, _ := prog.NewKernel("saxpy")
	defer k.Close()

	_, err := k.DeviceEntryPoint(nil, false)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindUnsupported {
		t.Errorf("error = %v, want unsupported", err)
	}
}

// countingResolver records every resolution.
type countingResolver struct {
	EntryResolver
	calls int
}

func (r *countingResolver) EntryPoint(dev kernelrt.Device, symbol string, noAlias bool) (kernelrt.EntryPoint, error) {
	r.calls++
	return r.EntryResolver.EntryPoint(dev, symbol, noAlias)
}

func TestKernel_DeviceEntryPointWasm(t *testing.T) {
	ctx := context.Background()
	dev, err := wasm.New(ctx, &wasm.Config{Module: kernelWASM})
	if err != nil {
		t.Fatalf("wasm.New failed: %v", err)
	}
	defer dev.Close(ctx)

	resolver := &countingResolver{EntryResolver: dev}
	prog := NewProgram("blas", resolver, map[string]*signature.Signature{"saxpy": saxpySig(t)})
	k, _ := prog.NewKernel("saxpy")
	defer k.Close()

	plain, err := k.DeviceEntryPoint(dev, false)
	if err != nil {
		t.Fatalf("DeviceEntryPoint failed: %v", err)
	}
	noAlias, err := k.DeviceEntryPoint(dev, true)
	if err != nil {
		t.Fatalf("DeviceEntryPoint(noAlias) failed: %v", err)
	}

	if plain.(*wasm.Entry).NoAlias() || !noAlias.(*wasm.Entry).NoAlias() {
		t.Error("noAlias preference not forwarded")
	}
	if _, err := k.DeviceEntryPoint(dev, false); err != nil {
		t.Fatalf("DeviceEntryPoint failed: %v", err)
	}
	if resolver.calls != 3 {
		t.Errorf("resolver called %d times, want 3 (no caching)", resolver.calls)
	}

	p := k.Parameters()
	_ = p.SetScalar(0, uint32(0))
	_ = p.SetScalar(1, float32(1))
	_ = p.SetHandle(2, 0)
	_ = p.SetHandle(3, 0)

	c, err := p.Capture(dev)
	if err != nil {
		t.Fatalf("Capture failed: %v", err)
	}
	if err := noAlias.Call(ctx, c.Addr()); err != nil {
		t.Errorf("Call failed: %v", err)
	}
	if err := p.Release(c, dev); err != nil {
		t.Errorf("Release failed: %v", err)
	}
}

func TestProgram_LogsObjectEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(zap.NewNop()) })

	prog := NewProgram("blas", nil, map[string]*signature.Signature{"saxpy": saxpySig(t)})
	h := prog.Objects().Insert(&resource.Sampler{})
	if _, ok := prog.Objects().Borrow(h); !ok {
		t.Fatal("Borrow failed")
	}
	prog.Objects().ReturnBorrow(h)
	if _, err := prog.Objects().Remove(h); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	want := []string{"created", "borrowed", "borrow_returned", "dropped"}
	entries := logs.FilterMessage("object event").All()
	if len(entries) != len(want) {
		t.Fatalf("got %d object events, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		fields := e.ContextMap()
		if fields["event"] != want[i] {
			t.Errorf("event %d = %v, want %s", i, fields["event"], want[i])
		}
		if fields["program"] != "blas" || fields["object"] != "sampler" {
			t.Errorf("event %d fields = %v", i, fields)
		}
	}

	if err := prog.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	prog.Objects().Insert(&resource.Sampler{})
	if n := logs.FilterMessage("object event").Len(); n != len(want) {
		t.Errorf("events after Close = %d, want %d", n, len(want))
	}
}
