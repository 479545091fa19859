package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	kernelrt "github.com/wippyai/kernel-runtime"
	"github.com/wippyai/kernel-runtime/device/host"
	"github.com/wippyai/kernel-runtime/device/wasm"
	"github.com/wippyai/kernel-runtime/kernel"
	"github.com/wippyai/kernel-runtime/manifest"
	"github.com/wippyai/kernel-runtime/params"
	"github.com/wippyai/kernel-runtime/resource"
	"github.com/wippyai/kernel-runtime/signature"
)

const auxSvmSize = 64

type captureOptions struct {
	device           string
	module           string
	kernel           string
	args             []string
	arenaSize        int64
	memoryLimitPages int64
	aux              int64
	fineGrain        bool
	call             bool
	noAlias          bool
	asJSON           bool
}

// target is a device the capture command can allocate on.
type target interface {
	kernelrt.Device
	kernel.EntryResolver
	AllocBuffer(size uint32) (*resource.Buffer, error)
	AllocSVM(size uint32) (*resource.Buffer, error)
	NewImage(format resource.ImageFormat, width, height uint32) (*resource.Image, error)
}

type captureReport struct {
	Kernel   string   `json:"kernel"`
	Device   string   `json:"device"`
	ID       string   `json:"id"`
	Image    string   `json:"image"`
	Svm      []bool   `json:"svm"`
	Borrowed []uint32 `json:"borrowed"`
	Addr     uint32   `json:"addr"`
	Size     uint32   `json:"size"`
	Local    uint64   `json:"local_mem"`
	AuxSvm   int      `json:"aux_svm"`
	Called   bool     `json:"called"`
}

func captureCmd() *cli.Command {
	opts := captureOptions{device: "wasm"}

	return &cli.Command{
		Name:      "capture",
		Usage:     "Bind arguments to a kernel, capture them on a device and dump the image",
		ArgsUsage: "<manifest>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "kernel to bind", Required: true, Destination: &opts.kernel},
			&cli.StringSliceFlag{
				Name:    "arg",
				Aliases: []string{"a"},
				Usage: "NAME=VALUE or INDEX=VALUE. Values are numbers for scalars, hex for opaque values, " +
					"a size, svm:SIZE or null for buffers, WxH[:CHANNELS] for images, sampler options, " +
					"a size for local memory and svm:SIZE or an address for pointers",
				Destination: &opts.args,
			},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Value: "wasm", Usage: "device to capture on (wasm, host)", Destination: &opts.device},
			&cli.StringFlag{Name: "module", Usage: "wasm module providing the kernel entry points", Destination: &opts.module},
			&cli.Int64Flag{Name: "arena-size", Usage: "host device arena size in bytes", Destination: &opts.arenaSize},
			&cli.Int64Flag{Name: "memory-limit-pages", Usage: "wasm device memory limit in 64KiB pages", Destination: &opts.memoryLimitPages},
			&cli.BoolFlag{Name: "fine-grain", Usage: "treat the device as supporting fine-grain system SVM", Destination: &opts.fineGrain},
			&cli.Int64Flag{Name: "aux", Usage: "number of auxiliary SVM allocations to attach", Destination: &opts.aux},
			&cli.BoolFlag{Name: "call", Usage: "run the kernel entry point on the captured image", Destination: &opts.call},
			&cli.BoolFlag{Name: "noalias", Usage: "prefer the no-alias entry point when calling", Destination: &opts.noAlias},
			&cli.BoolFlag{Name: "json", Usage: "print JSON", Destination: &opts.asJSON},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("capture takes exactly one manifest path")
			}
			applyCaptureConfig(c, LoadConfig(configFile), &opts)

			m, err := manifest.Load(c.Args().First())
			if err != nil {
				return err
			}
			return runCapture(ctx, m, opts)
		},
	}
}

// uint32Flag checks that a size flag fits the device's 32-bit address space.
func uint32Flag(name string, v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, fmt.Errorf("--%s %d is out of range [0, %d]", name, v, uint32(math.MaxUint32))
	}
	return uint32(v), nil
}

func openTarget(ctx context.Context, opts captureOptions) (target, func(), error) {
	switch opts.device {
	case "wasm":
		pages, err := uint32Flag("memory-limit-pages", opts.memoryLimitPages)
		if err != nil {
			return nil, nil, err
		}
		cfg := &wasm.Config{MemoryLimitPages: pages}
		if opts.module != "" {
			mod, err := os.ReadFile(opts.module)
			if err != nil {
				return nil, nil, err
			}
			cfg.Module = mod
		}
		d, err := wasm.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close(ctx) }, nil
	case "host":
		size, err := uint32Flag("arena-size", opts.arenaSize)
		if err != nil {
			return nil, nil, err
		}
		d, err := host.New(&host.Config{ArenaSize: size, FineGrainSystem: opts.fineGrain})
		if err != nil {
			return nil, nil, err
		}
		return d, func() { _ = d.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown device %q (want wasm or host)", opts.device)
}

func runCapture(ctx context.Context, m *manifest.Manifest, opts captureOptions) error {
	dev, closeDev, err := openTarget(ctx, opts)
	if err != nil {
		return err
	}
	defer closeDev()

	prog, err := m.NewProgram(dev)
	if err != nil {
		return err
	}
	defer func() { _ = prog.Close() }()

	k, err := prog.NewKernel(opts.kernel)
	if err != nil {
		return err
	}
	defer func() { _ = k.Close() }()

	p := k.Parameters()
	if opts.fineGrain {
		p.SetFineGrainSupport(params.FineGrainSupported)
	}

	bindings, err := parseBindings(k.Signature(), opts.args)
	if err != nil {
		return err
	}
	for _, b := range bindings {
		if err := bindArg(dev, prog.Objects(), p, b); err != nil {
			return err
		}
	}

	if opts.aux > 0 {
		ptrs := make([]uint64, 0, opts.aux)
		for range opts.aux {
			buf, err := dev.AllocSVM(auxSvmSize)
			if err != nil {
				return err
			}
			ptrs = append(ptrs, uint64(buf.Addr))
		}
		p.AddSvmPtr(ptrs)
	}

	if !p.Check() {
		return fmt.Errorf("kernel %s: parameters %v are not bound", k.Name(), p.Missing())
	}

	capture, err := p.Capture(dev)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Release(capture, dev); err != nil {
			logger.Warn("release failed", zap.Error(err))
		}
	}()
	logger.Debug("captured",
		zap.String("kernel", k.Name()),
		zap.String("device", dev.Name()),
		zap.Uint32("addr", capture.Addr()),
		zap.Uint32("size", capture.Size()))

	report, err := buildReport(dev, k, capture)
	if err != nil {
		return err
	}

	if opts.call {
		ep, err := k.DeviceEntryPoint(dev, opts.noAlias)
		if err != nil {
			return err
		}
		if err := ep.Call(ctx, capture.Addr()); err != nil {
			return err
		}
		report.Called = true
	}

	if opts.asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}
	printReport(newStyles(useColor(colorMode)), report)
	return nil
}

func buildReport(dev target, k *kernel.Kernel, c *params.Capture) (captureReport, error) {
	p := k.Parameters()
	image, err := dev.Memory().Read(c.Addr(), c.Size())
	if err != nil {
		return captureReport{}, err
	}

	r := captureReport{
		Kernel: k.Name(),
		Device: c.Device(),
		ID:     c.ID.String(),
		Image:  hex.EncodeToString(image),
		Addr:   c.Addr(),
		Size:   c.Size(),
		Local:  p.LocalMemSize(signature.ParamsMinAlignment),
		AuxSvm: c.NumberOfSvmPtr(),
	}
	for i := range k.Signature().NumParameters() {
		svm, err := p.BoundToSvmPointer(dev, c, i)
		if err != nil {
			return captureReport{}, err
		}
		r.Svm = append(r.Svm, svm)
	}
	for _, h := range c.Borrowed() {
		r.Borrowed = append(r.Borrowed, uint32(h))
	}
	return r, nil
}

func printReport(st styles, r captureReport) {
	fmt.Println(st.title.Render("capture " + r.Kernel))
	fmt.Println(st.field("id", "%s", r.ID))
	fmt.Println(st.field("device", "%s", r.Device))
	fmt.Println(st.field("image", "0x%08x (%d bytes)", r.Addr, r.Size))
	fmt.Println(st.field("borrowed", "%v", r.Borrowed))
	fmt.Println(st.field("svm bound", "%v", r.Svm))
	fmt.Println(st.field("aux svm", "%d", r.AuxSvm))
	fmt.Println(st.field("local mem", "%d", r.Local))
	if r.Called {
		fmt.Println(st.field("called", "%s", strconv.FormatBool(r.Called)))
	}
	raw, _ := hex.DecodeString(r.Image)
	fmt.Print(hex.Dump(raw))
}

// bindArg allocates whatever object the argument names on dev and binds it.
func bindArg(dev target, objects *resource.Table, p *params.State, b binding) error {
	d := p.Signature().At(b.index)
	switch d.Kind {
	case signature.KindValue:
		v, err := encodeValue(d, b.raw)
		if err != nil {
			return err
		}
		return p.Set(b.index, len(v), v, false)

	case signature.KindBuffer:
		if b.raw == "null" {
			return p.SetHandle(b.index, 0)
		}
		n, svm, err := parseSVM(b.raw)
		if err != nil {
			return err
		}
		if svm {
			buf, err := dev.AllocSVM(n)
			if err != nil {
				return err
			}
			return p.SetPointer(b.index, uint64(buf.Addr), true)
		}
		size, err := strconv.ParseUint(b.raw, 0, 32)
		if err != nil {
			return fmt.Errorf("%s: buffer size %q: %w", d.Name, b.raw, err)
		}
		buf, err := dev.AllocBuffer(uint32(size))
		if err != nil {
			return err
		}
		return p.SetHandle(b.index, objects.Insert(buf))

	case signature.KindImage:
		w, h, format, err := parseImage(b.raw)
		if err != nil {
			return err
		}
		img, err := dev.NewImage(format, w, h)
		if err != nil {
			return err
		}
		return p.SetHandle(b.index, objects.Insert(img))

	case signature.KindSampler:
		s, err := parseSampler(b.raw)
		if err != nil {
			return err
		}
		return p.SetHandle(b.index, objects.Insert(s))

	case signature.KindLocal:
		size, err := strconv.ParseUint(b.raw, 0, 32)
		if err != nil {
			return fmt.Errorf("%s: local size %q: %w", d.Name, b.raw, err)
		}
		return p.SetLocal(b.index, uint32(size))

	case signature.KindPointer:
		n, svm, err := parseSVM(b.raw)
		if err != nil {
			return err
		}
		if svm {
			buf, err := dev.AllocSVM(n)
			if err != nil {
				return err
			}
			return p.SetPointer(b.index, uint64(buf.Addr), true)
		}
		ptr, err := strconv.ParseUint(b.raw, 0, 64)
		if err != nil {
			return fmt.Errorf("%s: pointer %q: %w", d.Name, b.raw, err)
		}
		return p.SetPointer(b.index, ptr, false)
	}
	return fmt.Errorf("%s: unsupported parameter kind %s", d.Name, d.Kind)
}
