package resolve

import (
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/carved4/go-dllproxy/pkg/errors"
)

// Original is a read-only mapping of the library being proxied, used when
// its bytes are packed into the generated project.
type Original struct {
	f *os.File
	m mmap.MMap
}

// MapOriginal maps path into memory without copying it.
func MapOriginal(path string) (*Original, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrInput, path, err)
	}
	if fi.Size() == 0 {
		f.Close()
		return nil, errors.New(errors.ErrInput, path+": empty file")
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(errors.ErrLoad, path, err)
	}
	return &Original{f: f, m: m}, nil
}

// Bytes is valid until Close.
func (o *Original) Bytes() []byte {
	return o.m
}

func (o *Original) Close() error {
	err := o.m.Unmap()
	if cerr := o.f.Close(); err == nil {
		err = cerr
	}
	return err
}
