package proxy

import (
	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
	"github.com/carved4/go-dllproxy/pkg/symbols"
)

// DllMainFile is the name of the optional loader entry point stub.
const DllMainFile = "dll_main.cc"

// Artifact is one generated file, named relative to the output directory.
type Artifact struct {
	Name string
	Body []byte
}

// Header declares <prefix>::<prefix>_initialize::initialize().
func Header(l *Layout) (Artifact, error) {
	return renderArtifact(l.Prefix+".h", tmplHeader, l)
}

// Source resolves every export into its slot and fails unless all of them resolved.
func Source(l *Layout) (Artifact, error) {
	return renderArtifact(l.Prefix+".cc", tmplSource, l)
}

// Assembler emits one tail-jump forwarder per export.
func Assembler(l *Layout) (Artifact, error) {
	return renderArtifact(l.Prefix+"_exports.asm", tmplAssembler, l)
}

// Definitions maps each original export name and ordinal onto its forwarder.
func Definitions(l *Layout) (Artifact, error) {
	return renderArtifact(l.Prefix+".def", tmplDef, l)
}

// DllMain calls the initializer on process attach.
func DllMain(l *Layout) (Artifact, error) {
	return renderArtifact(DllMainFile, tmplDllMain, l)
}

// BinaryHeader embeds data, the original library, as a byte array.
func BinaryHeader(l *Layout, data []byte) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, errors.New(errors.ErrRender, "no original bytes to pack")
	}
	view := struct {
		Prefix string
		Data   []byte
	}{l.Prefix, data}
	return renderArtifact(l.Prefix+"_binary.h", tmplBinary, view)
}

func renderArtifact(name, tmpl string, data any) (Artifact, error) {
	body, err := render(tmpl, data)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Name: name, Body: body}, nil
}

// Generate renders every artifact the project asks for from a single
// layout. Nothing is returned unless all of them rendered.
func Generate(p Project, c exports.Catalog) ([]Artifact, error) {
	if cols := symbols.Check(c); len(cols) > 0 {
		if p.Strict {
			return nil, errors.Newf(errors.ErrDuplicate, "%s", cols[0])
		}
		symbols.Warn(p.logger(), c)
	}

	l, err := NewLayout(p, c)
	if err != nil {
		return nil, err
	}

	var out []Artifact
	if p.PackOriginal {
		a, err := BinaryHeader(l, p.Original)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if p.EmitEntryStub {
		a, err := DllMain(l)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	for _, gen := range []func(*Layout) (Artifact, error){Header, Source, Assembler, Definitions} {
		a, err := gen(l)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	names := make(map[string]bool, len(out))
	for _, a := range out {
		if names[a.Name] {
			return nil, errors.Newf(errors.ErrLayout, "binary name %q makes two artifacts named %s", p.BinaryName, a.Name)
		}
		names[a.Name] = true
	}
	return out, nil
}
