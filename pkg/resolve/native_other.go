//go:build !windows

package resolve

import (
	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
)

func openNative(path string) (exports.Module, error) {
	return nil, errors.Newf(errors.ErrLoad, "%s: native loader requires windows, use -loader image", path)
}
