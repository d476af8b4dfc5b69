package dllproxy

import (
	"io"
	"path/filepath"
	"strings"

	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
	"github.com/carved4/go-dllproxy/pkg/output"
	"github.com/carved4/go-dllproxy/pkg/proxy"
	"github.com/carved4/go-dllproxy/pkg/resolve"
)

type (
	Kind     = resolve.Kind
	Catalog  = exports.Catalog
	Project  = proxy.Project
	Artifact = proxy.Artifact
)

const (
	KindNative    = resolve.KindNative
	KindImage     = resolve.KindImage
	KindSaferwall = resolve.KindSaferwall
)

var (
	DefaultKind = resolve.DefaultKind
	ParseKind   = resolve.ParseKind
	Open        = resolve.Open
	MapOriginal = resolve.MapOriginal
	ReadCatalog = exports.ReadCatalog
	Generate    = proxy.Generate
	EnsureDir   = output.EnsureDir
	Write       = output.Write
)

// BinaryName is the identifier prefix for a library: its base name
// without the extension.
func BinaryName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Proxy generates the proxy project for the library at path and writes it
// to dir. An empty p.BinaryName is derived from path. When show is non-nil
// the export catalog is printed to it before anything is written.
func Proxy(path, dir string, kind Kind, p Project, show io.Writer) ([]Artifact, error) {
	m, err := Open(path, kind)
	if err != nil {
		return nil, err
	}
	catalog, err := ReadCatalog(m)
	if cerr := m.Close(); err == nil && cerr != nil {
		err = errors.Wrap(errors.ErrLoad, path, cerr)
	}
	if err != nil {
		return nil, err
	}
	if show != nil {
		catalog.Render(show)
	}

	if p.BinaryName == "" {
		p.BinaryName = BinaryName(path)
	}
	if p.PackOriginal && p.Original == nil {
		orig, err := MapOriginal(path)
		if err != nil {
			return nil, err
		}
		defer orig.Close()
		p.Original = orig.Bytes()
	}

	arts, err := Generate(p, catalog)
	if err != nil {
		return nil, err
	}
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}
	if err := Write(dir, arts); err != nil {
		return nil, err
	}
	return arts, nil
}
