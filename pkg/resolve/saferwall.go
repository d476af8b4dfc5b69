package resolve

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"

	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
	peparser "github.com/saferwall/pe"
)

// saferwallModule enumerates exports parsed by saferwall/pe.
type saferwallModule struct {
	name string
	f    *peparser.File
}

// OpenSaferwall parses the library on disk with saferwall/pe.
func OpenSaferwall(path string) (exports.Module, error) {
	f, err := peparser.New(path, &peparser.Options{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	if err := f.Parse(); err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	return &saferwallModule{name: filepath.Base(path), f: f}, nil
}

func (m *saferwallModule) Name() string { return m.name }

func (m *saferwallModule) Base() uint64 {
	if m.f.Is32 {
		return uint64(m.f.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader32).ImageBase)
	}
	return m.f.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader64).ImageBase
}

func (m *saferwallModule) exportDirectory() peparser.DataDirectory {
	if m.f.Is32 {
		return m.f.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader32).DataDirectory[peparser.ImageDirectoryEntryExport]
	}
	return m.f.NtHeader.OptionalHeader.(peparser.ImageOptionalHeader64).DataDirectory[peparser.ImageDirectoryEntryExport]
}

func (m *saferwallModule) Exports() (iter.Seq[exports.Export], error) {
	dd := m.exportDirectory()
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, errNoExportDirectory
	}
	exps, err := fromSaferwall(m.f.Export, dd.VirtualAddress, dd.Size, m.Base())
	if err != nil {
		return nil, err
	}
	return slices.Values(exps), nil
}

func (m *saferwallModule) Close() error {
	return m.f.Close()
}

// fromSaferwall lays the parsed functions back onto the export address
// table. saferwall skips slots with a zero address and lists named exports
// first, so every ordinal from Base is rebuilt here and unfilled slots
// become unnamed with entry 0, matching walkExports.
func fromSaferwall(exp peparser.Export, dirRVA, dirSize uint32, base uint64) ([]exports.Export, error) {
	n := exp.Struct.NumberOfFunctions
	if n > maxExports {
		return nil, fmt.Errorf("export directory claims %d functions", n)
	}
	out := make([]exports.Export, n)
	for i := range out {
		out[i] = exports.Export{Ordinal: exp.Struct.Base + uint32(i), Name: exports.NoName}
	}
	filled := make([]bool, n)
	for _, fn := range exp.Functions {
		if fn.Ordinal < exp.Struct.Base {
			continue
		}
		i := fn.Ordinal - exp.Struct.Base
		if i >= n || filled[i] {
			continue
		}
		filled[i] = true
		if fn.Name != "" {
			out[i].Name = fn.Name
		}
		forwarder := fn.Forwarder != "" || (fn.FunctionRVA > dirRVA && fn.FunctionRVA < dirRVA+dirSize)
		if fn.FunctionRVA != 0 && !forwarder {
			out[i].EntryPoint = base + uint64(fn.FunctionRVA)
		}
	}
	return out, nil
}
