//go:build windows

package resolve

import (
	"fmt"
	"path/filepath"
	"unsafe"

	"github.com/Binject/debug/pe"
	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
	"golang.org/x/sys/windows"
)

// openNative maps the library into this process with LoadLibrary and walks
// the export table of the live image, so entry points are real addresses.
func openNative(path string) (exports.Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	h, err := windows.LoadLibrary(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	if h == 0 {
		return nil, errors.New(errors.ErrLoad, path)
	}

	image, err := moduleImage(uintptr(h))
	if err != nil {
		windows.FreeLibrary(h)
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	mem := &memoryReaderAt{data: image}
	f, err := pe.NewFileFromMemory(mem)
	if err != nil {
		windows.FreeLibrary(h)
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	dd, _, err := exportDataDirectory(f)
	f.Close()
	if err != nil {
		windows.FreeLibrary(h)
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}

	return &module{
		name: filepath.Base(path),
		base: uint64(h),
		dir:  dd,
		r:    mem,
		closer: func() error {
			return windows.FreeLibrary(h)
		},
	}, nil
}

// moduleImage exposes SizeOfImage bytes starting at the module base.
func moduleImage(moduleBase uintptr) ([]byte, error) {
	dos := (*[64]byte)(unsafe.Pointer(moduleBase))
	if dos[0] != 'M' || dos[1] != 'Z' {
		return nil, fmt.Errorf("module at 0x%x has no DOS header", moduleBase)
	}
	peOffset := *(*uint32)(unsafe.Pointer(moduleBase + 0x3C))
	nt := (*[4]byte)(unsafe.Pointer(moduleBase + uintptr(peOffset)))
	if nt[0] != 'P' || nt[1] != 'E' {
		return nil, fmt.Errorf("module at 0x%x has no PE signature", moduleBase)
	}
	// SizeOfImage sits at the same offset in PE32 and PE32+ optional headers
	sizeOfImage := *(*uint32)(unsafe.Pointer(moduleBase + uintptr(peOffset) + 24 + 56))
	return unsafe.Slice((*byte)(unsafe.Pointer(moduleBase)), sizeOfImage), nil
}
