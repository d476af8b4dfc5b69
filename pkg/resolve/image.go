package resolve

import (
	"path/filepath"

	"github.com/Binject/debug/pe"
	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
)

// OpenImage parses the library on disk without loading it. Entry points
// are reported relative to the preferred image base.
func OpenImage(path string) (exports.Module, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	dd, imageBase, err := exportDataDirectory(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	return &module{
		name:   filepath.Base(path),
		base:   imageBase,
		dir:    dd,
		r:      &rvaReaderAt{f: f},
		closer: f.Close,
	}, nil
}
