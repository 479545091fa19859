package main

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/wippyai/kernel-runtime/manifest"
	"github.com/wippyai/kernel-runtime/signature"
)

type paramReport struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Type   string `json:"type,omitempty"`
	Access string `json:"access,omitempty"`
	Size   uint32 `json:"size"`
	Align  uint32 `json:"align"`
	Offset uint32 `json:"offset"`
}

type regionReport struct {
	Offset uint32 `json:"offset"`
	Size   uint32 `json:"size"`
}

type kernelReport struct {
	Name       string         `json:"name"`
	Attributes string         `json:"attributes,omitempty"`
	Params     []paramReport  `json:"params"`
	Regions    []regionReport `json:"regions"`
	ParamsSize uint32         `json:"params_size"`
	Align      uint32         `json:"align"`
	BlockSize  uint32         `json:"block_size"`
}

func reportKernel(name string, sig *signature.Signature) kernelReport {
	bl := sig.Layout()
	r := kernelReport{
		Name:       name,
		Attributes: sig.Attributes(),
		ParamsSize: sig.ParamsSize(),
		Align:      sig.Align(),
		BlockSize:  bl.Size,
	}
	for _, reg := range []signature.Region{bl.Values, bl.Defined, bl.SvmBound} {
		r.Regions = append(r.Regions, regionReport{Offset: reg.Offset, Size: reg.Size})
	}
	for _, d := range sig.Params() {
		p := paramReport{
			Name:   d.Name,
			Kind:   d.Kind.String(),
			Size:   d.Size,
			Align:  d.Align,
			Offset: d.Offset,
		}
		if d.Kind == signature.KindValue {
			p.Type = d.TypeName()
		}
		if d.Kind == signature.KindBuffer || d.Kind == signature.KindImage {
			p.Access = d.Access.String()
		}
		r.Params = append(r.Params, p)
	}
	return r
}

func inspectCmd() *cli.Command {
	var (
		asJSON     bool
		kernelName string
	)

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the parameter layout of each kernel in a manifest",
		ArgsUsage: "<manifest>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of tables", Destination: &asJSON},
			&cli.StringFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "only show this kernel", Destination: &kernelName},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return fmt.Errorf("inspect takes exactly one manifest path")
			}
			m, err := manifest.Load(c.Args().First())
			if err != nil {
				return err
			}
			sigs, err := m.Signatures()
			if err != nil {
				return err
			}

			var reports []kernelReport
			for _, k := range m.Kernels {
				if kernelName != "" && k.Name != kernelName {
					continue
				}
				reports = append(reports, reportKernel(k.Name, sigs[k.Name]))
			}
			if kernelName != "" && len(reports) == 0 {
				return fmt.Errorf("kernel %q not found in %s", kernelName, c.Args().First())
			}

			if asJSON {
				out, err := json.MarshalIndent(reports, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(out))
				return nil
			}

			st := newStyles(useColor(colorMode))
			fmt.Println(st.title.Render("program " + m.Program))
			for _, r := range reports {
				sig := sigs[r.Name]
				fmt.Println()
				fmt.Println(st.title.Render(r.Name))
				if r.Attributes != "" {
					fmt.Println(st.field("attributes", "%s", r.Attributes))
				}
				fmt.Println(st.paramTable(sig))
				fmt.Println(st.field("params size", "%d (align %d)", r.ParamsSize, r.Align))
				fmt.Println(st.field("block", "values %d+%d, defined %d+%d, svm %d+%d, total %d",
					r.Regions[0].Offset, r.Regions[0].Size,
					r.Regions[1].Offset, r.Regions[1].Size,
					r.Regions[2].Offset, r.Regions[2].Size,
					r.BlockSize))
			}
			return nil
		},
	}
}
