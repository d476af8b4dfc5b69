// Package exports models the export table of a loaded library as an ordered catalog.
package exports

import (
	"io"
	"iter"

	"github.com/carved4/go-dllproxy/pkg/errors"
)

// NoName is reported for exports that only carry an ordinal.
const NoName = "[NONAME]"

// Export represents a single exported symbol of a library
type Export struct {
	Ordinal    uint32 // 1-based export ordinal
	Name       string // symbol name, or NoName
	EntryPoint uint64 // address of the code, 0 for forwarders; display only
}

// An Enumerator walks an export table. The error reports that the walk
// could not be started; the returned sequence is finite and calling
// Exports again restarts it.
type Enumerator interface {
	Exports() (iter.Seq[Export], error)
}

// Module is a loaded library whose export table can be enumerated.
type Module interface {
	io.Closer
	Enumerator
	Name() string
	Base() uint64
}

// Catalog is the export table in enumeration order, not sorted by ordinal.
type Catalog []Export

// ReadCatalog drains the module's export enumeration into a Catalog.
func ReadCatalog(m Module) (Catalog, error) {
	if m == nil {
		return nil, errors.New(errors.ErrLoad, "module not loaded")
	}
	seq, err := m.Exports()
	if err != nil {
		return nil, errors.Wrap(errors.ErrEnumerate, m.Name(), err)
	}
	var c Catalog
	for e := range seq {
		if e.Name == "" {
			e.Name = NoName
		}
		c = append(c, e)
	}
	return c, nil
}

// Len returns the number of exports.
func (c Catalog) Len() int {
	return len(c)
}
