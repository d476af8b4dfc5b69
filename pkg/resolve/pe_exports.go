package resolve

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Binject/debug/pe"
	"github.com/carved4/go-dllproxy/pkg/exports"
)

// IMAGE_DIRECTORY_ENTRY_EXPORT
const imageDirectoryEntryExport = 0

// A sane ceiling for NumberOfFunctions/NumberOfNames; ordinals are WORDs.
const maxExports = 0x10000

// MSVC caps decorated names at 4096 characters.
const maxNameLen = 4096

// exportDirectory mirrors IMAGE_EXPORT_DIRECTORY
type exportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// exportDataDirectory reads the export Data Directory and the preferred image base.
func exportDataDirectory(f *pe.File) (pe.DataDirectory, uint64, error) {
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		if oh.NumberOfRvaAndSizes <= imageDirectoryEntryExport {
			return pe.DataDirectory{}, 0, errNoExportDirectory
		}
		return oh.DataDirectory[imageDirectoryEntryExport], uint64(oh.ImageBase), nil
	case *pe.OptionalHeader64:
		if oh.NumberOfRvaAndSizes <= imageDirectoryEntryExport {
			return pe.DataDirectory{}, 0, errNoExportDirectory
		}
		return oh.DataDirectory[imageDirectoryEntryExport], oh.ImageBase, nil
	}
	return pe.DataDirectory{}, 0, fmt.Errorf("unsupported optional header")
}

// walkExports enumerates every slot of the export address table, named or
// not. r reads the image by RVA. Entries whose RVA points back into the
// export directory are forwarders and get a zero entry point.
func walkExports(r io.ReaderAt, dd pe.DataDirectory, base uint64) ([]exports.Export, error) {
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return nil, errNoExportDirectory
	}

	var dir exportDirectory
	sr := io.NewSectionReader(r, int64(dd.VirtualAddress), int64(binary.Size(dir)))
	if err := binary.Read(sr, binary.LittleEndian, &dir); err != nil {
		return nil, fmt.Errorf("read export directory: %w", err)
	}
	if dir.NumberOfFunctions > maxExports || dir.NumberOfNames > maxExports {
		return nil, fmt.Errorf("export directory claims %d functions and %d names", dir.NumberOfFunctions, dir.NumberOfNames)
	}

	funcs := make([]uint32, dir.NumberOfFunctions)
	if err := readTable(r, dir.AddressOfFunctions, funcs); err != nil {
		return nil, fmt.Errorf("read export address table: %w", err)
	}
	names := make([]uint32, dir.NumberOfNames)
	if err := readTable(r, dir.AddressOfNames, names); err != nil {
		return nil, fmt.Errorf("read export name table: %w", err)
	}
	ords := make([]uint16, dir.NumberOfNames)
	if err := readTable(r, dir.AddressOfNameOrdinals, ords); err != nil {
		return nil, fmt.Errorf("read export ordinal table: %w", err)
	}

	// function index -> first name pointing at it
	nameByIndex := make(map[uint16]string, len(names))
	for i, nameRVA := range names {
		if _, ok := nameByIndex[ords[i]]; ok {
			continue
		}
		name, err := readCString(r, nameRVA)
		if err != nil {
			return nil, fmt.Errorf("read export name %d: %w", i, err)
		}
		nameByIndex[ords[i]] = name
	}

	dirEnd := dd.VirtualAddress + dd.Size
	out := make([]exports.Export, 0, len(funcs))
	for i, funcRVA := range funcs {
		name, ok := nameByIndex[uint16(i)]
		if !ok || name == "" {
			name = exports.NoName
		}
		var entry uint64
		if funcRVA != 0 && !(funcRVA > dd.VirtualAddress && funcRVA < dirEnd) {
			entry = base + uint64(funcRVA)
		}
		out = append(out, exports.Export{
			Ordinal:    dir.Base + uint32(i),
			Name:       name,
			EntryPoint: entry,
		})
	}
	return out, nil
}

func readTable[T uint16 | uint32](r io.ReaderAt, rva uint32, dst []T) error {
	if len(dst) == 0 {
		return nil
	}
	sr := io.NewSectionReader(r, int64(rva), int64(binary.Size(dst)))
	return binary.Read(sr, binary.LittleEndian, dst)
}

// readCString reads a NUL terminated name. Names longer than maxNameLen
// are an error rather than silently cut.
func readCString(r io.ReaderAt, rva uint32) (string, error) {
	var name []byte
	var chunk [256]byte
	off := int64(rva)
	for len(name) <= maxNameLen {
		n, err := r.ReadAt(chunk[:], off)
		if i := bytes.IndexByte(chunk[:n], 0); i >= 0 {
			return string(append(name, chunk[:i]...)), nil
		}
		name = append(name, chunk[:n]...)
		off += int64(n)
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
	}
	return "", fmt.Errorf("name at RVA 0x%x exceeds %d bytes", rva, maxNameLen)
}
