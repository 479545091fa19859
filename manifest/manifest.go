package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/kernel-runtime/errors"
	"github.com/wippyai/kernel-runtime/internal/layout"
	"github.com/wippyai/kernel-runtime/kernel"
	"github.com/wippyai/kernel-runtime/signature"
)

// Format is the encoding of a manifest document.
type Format uint8

const (
	FormatYAML Format = iota
	FormatJSON
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "yaml"
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return 0, errors.Unsupported(errors.PhaseManifest, fmt.Sprintf("manifest extension %q", filepath.Ext(path)))
}

const sizedType = "size"

// Manifest declares the kernels of one program.
type Manifest struct {
	Program string   `yaml:"program" json:"program"`
	Kernels []Kernel `yaml:"kernels" json:"kernels"`
}

// Kernel declares one kernel symbol.
type Kernel struct {
	Name       string  `yaml:"name" json:"name"`
	Attributes string  `yaml:"attributes,omitempty" json:"attributes,omitempty"`
	Params     []Param `yaml:"params" json:"params"`
}

// Param declares one formal parameter.
type Param struct {
	Name   string `yaml:"name" json:"name"`
	Kind   string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Access string `yaml:"access,omitempty" json:"access,omitempty"`
	Size   uint32 `yaml:"size,omitempty" json:"size,omitempty"`
	Align  uint32 `yaml:"align,omitempty" json:"align,omitempty"`
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &m)
	default:
		err = yaml.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindInvalidData, err, "decode "+format.String()+" manifest")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads a manifest file, choosing the format by extension.
func Load(path string) (*Manifest, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseManifest, errors.KindNotFound, err, "read manifest")
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, err
	}
	if m.Program == "" {
		m.Program = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Manifest {
	m, err := Load(path)
	if err != nil {
		panic(err)
	}
	return m
}

// Marshal encodes the manifest.
func (m *Manifest) Marshal(format Format) ([]byte, error) {
	if format == FormatJSON {
		return json.MarshalIndent(m, "", "  ")
	}
	return yaml.Marshal(m)
}

// Validate checks that kernel names are unique and every parameter
// resolves to a layout.
func (m *Manifest) Validate() error {
	seen := make(map[string]bool, len(m.Kernels))
	for _, k := range m.Kernels {
		if k.Name == "" {
			return errors.InvalidData(errors.PhaseManifest, nil, "kernel without a name")
		}
		if seen[k.Name] {
			return errors.InvalidData(errors.PhaseManifest, []string{k.Name}, "duplicate kernel")
		}
		seen[k.Name] = true
		if _, err := k.Signature(); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the kernel declaration with the given name.
func (m *Manifest) Lookup(name string) (Kernel, bool) {
	for _, k := range m.Kernels {
		if k.Name == name {
			return k, true
		}
	}
	return Kernel{}, false
}

// Signatures builds the signature of every kernel.
func (m *Manifest) Signatures() (map[string]*signature.Signature, error) {
	sigs := make(map[string]*signature.Signature, len(m.Kernels))
	for _, k := range m.Kernels {
		sig, err := k.Signature()
		if err != nil {
			return nil, err
		}
		sigs[k.Name] = sig
	}
	return sigs, nil
}

// NewProgram creates a program holding every kernel of the manifest.
func (m *Manifest) NewProgram(resolver kernel.EntryResolver) (*kernel.Program, error) {
	sigs, err := m.Signatures()
	if err != nil {
		return nil, err
	}
	return kernel.NewProgram(m.Program, resolver, sigs), nil
}

// Signature builds the kernel's signature.
func (k Kernel) Signature() (*signature.Signature, error) {
	params := make([]signature.Param, len(k.Params))
	for i, p := range k.Params {
		sp, err := p.resolve()
		if err != nil {
			return nil, errors.New(errors.PhaseManifest, errors.KindInvalidData).
				Path(k.Name, p.Name).
				Param(i).
				Cause(err).
				Detail("invalid parameter").
				Build()
		}
		params[i] = sp
	}

	sig, err := signature.New(params, k.Attributes)
	if err != nil {
		return nil, errors.New(errors.PhaseManifest, errors.KindInvalidData).
			Path(k.Name).
			Cause(err).
			Detail("invalid signature").
			Build()
	}
	return sig, nil
}

func (p Param) resolve() (signature.Param, error) {
	kindName := p.Kind
	if kindName == "" {
		kindName = signature.KindValue.String()
	}
	kind, err := signature.ParseKind(kindName)
	if err != nil {
		return signature.Param{}, err
	}
	access, err := signature.ParseAccess(p.Access)
	if err != nil {
		return signature.Param{}, err
	}

	sp := signature.Param{Name: p.Name, Kind: kind, Access: access, Align: p.Align}
	if kind != signature.KindValue {
		if p.Type != "" || p.Size != 0 || p.Align != 0 {
			return signature.Param{}, fmt.Errorf("%s parameter takes no type, size or align", kind)
		}
		if access != signature.AccessReadWrite && kind != signature.KindBuffer && kind != signature.KindImage {
			return signature.Param{}, fmt.Errorf("%s parameter takes no access qualifier", kind)
		}
		return sp, nil
	}

	if p.Access != "" {
		return signature.Param{}, fmt.Errorf("value parameter takes no access qualifier")
	}

	switch p.Type {
	case sizedType, "":
		if p.Type == "" && p.Size == 0 {
			return signature.Param{}, fmt.Errorf("value parameter needs a type or a size")
		}
		sp.Size = p.Size
	default:
		t, ok := layout.ParsePrimitive(p.Type)
		if !ok {
			return signature.Param{}, fmt.Errorf("unknown value type %q", p.Type)
		}
		if p.Size != 0 {
			return signature.Param{}, fmt.Errorf("typed parameter %q cannot set size", p.Type)
		}
		sp.Type = t
	}
	return sp, nil
}

// FromSignature describes a signature as a manifest kernel.
func FromSignature(name string, sig *signature.Signature) Kernel {
	k := Kernel{Name: name, Attributes: sig.Attributes()}
	for _, d := range sig.Params() {
		p := Param{Name: d.Name}
		if d.Kind != signature.KindValue {
			p.Kind = d.Kind.String()
			if d.Access != signature.AccessReadWrite {
				p.Access = d.Access.String()
			}
		} else if d.Type != nil {
			p.Type = d.TypeName()
		} else {
			p.Type = sizedType
			p.Size = d.Size
			p.Align = d.Align
		}
		k.Params = append(k.Params, p)
	}
	return k
}
