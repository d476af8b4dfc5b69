package resolve

import (
	stderrors "errors"
	"fmt"
	"io"
	"iter"
	"os"
	"runtime"
	"slices"

	"github.com/Binject/debug/pe"
	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
)

var errNoExportDirectory = stderrors.New("no export directory")

// Kind selects how a library is loaded and its export table walked.
type Kind string

const (
	// KindNative loads the library into this process (Windows only).
	KindNative Kind = "native"
	// KindImage parses the file on disk with Binject's pe package.
	KindImage Kind = "image"
	// KindSaferwall parses the file on disk with saferwall's pe package.
	KindSaferwall Kind = "saferwall"
)

var kinds = []Kind{KindNative, KindImage, KindSaferwall}

// DefaultKind is native on windows and image everywhere else.
func DefaultKind() Kind {
	if runtime.GOOS == "windows" {
		return KindNative
	}
	return KindImage
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if slices.Contains(kinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown loader %q (expected native, image or saferwall)", s)
}

// Open loads the library at path. A missing path is reported before any
// loading is attempted.
func Open(path string, kind Kind) (exports.Module, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, path, err)
	}
	if st.IsDir() {
		return nil, errors.Newf(errors.ErrInput, "%s is a directory", path)
	}
	switch kind {
	case KindNative:
		return openNative(path)
	case KindImage:
		return OpenImage(path)
	case KindSaferwall:
		return OpenSaferwall(path)
	}
	return nil, errors.Newf(errors.ErrLoad, "unknown loader %q", kind)
}

// module walks an export directory through a reader addressed by RVA.
type module struct {
	name   string
	base   uint64
	dir    pe.DataDirectory
	r      io.ReaderAt
	closer func() error
}

func (m *module) Name() string { return m.name }

func (m *module) Base() uint64 { return m.base }

func (m *module) Exports() (iter.Seq[exports.Export], error) {
	exps, err := walkExports(m.r, m.dir, m.base)
	if err != nil {
		return nil, err
	}
	return slices.Values(exps), nil
}

func (m *module) Close() error {
	if m.closer == nil {
		return nil
	}
	err := m.closer()
	m.closer = nil
	return err
}

// memoryReaderAt reads a mapped image, where offsets are RVAs.
type memoryReaderAt struct {
	data []byte
}

func (r *memoryReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 || off >= int64(len(r.data)) {
		return 0, fmt.Errorf("offset out of range")
	}
	n = copy(p, r.data[off:])
	if n < len(p) {
		err = io.EOF
	}
	return n, err
}

// rvaReaderAt reads a file on disk by RVA, translating through the section table.
type rvaReaderAt struct {
	f *pe.File
}

func (r *rvaReaderAt) ReadAt(p []byte, off int64) (int, error) {
	rva := uint32(off)
	for _, s := range r.f.Sections {
		size := max(s.VirtualSize, s.Size)
		if rva >= s.VirtualAddress && rva < s.VirtualAddress+size {
			return s.ReadAt(p, int64(rva-s.VirtualAddress))
		}
	}
	return 0, fmt.Errorf("RVA 0x%x not found in any section", rva)
}
