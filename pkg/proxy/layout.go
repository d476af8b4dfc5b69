// Package proxy renders the source artifacts of a forwarding proxy DLL.
//
// Every artifact is rendered from one Layout, which fixes the slot table
// size and the ordinal to slot mapping once for the whole run.
package proxy

import (
	"log"

	"github.com/carved4/go-dllproxy/pkg/errors"
	"github.com/carved4/go-dllproxy/pkg/exports"
)

// PointerWidth is the size of one FARPROC slot on x64.
const PointerWidth = 8

// Project holds the generation options for one run.
type Project struct {
	BinaryName    string // prefix for every generated identifier and file
	PackOriginal  bool   // embed Original instead of loading from the system directory
	EmitEntryStub bool   // emit dll_main.cc
	Original      []byte // original library bytes, required with PackOriginal
	Strict        bool   // duplicate forwarder symbols are an error instead of a warning
	Logger        *log.Logger
}

func (p *Project) logger() *log.Logger {
	if p.Logger == nil {
		return log.Default()
	}
	return p.Logger
}

// Slot is one export bound to its entry in the function pointer table.
type Slot struct {
	Index      int    // Ordinal - 1
	Ordinal    uint32
	Name       string // original export name, verbatim
	Symbol     string // forwarder symbol, Prefix_Name
	EntryPoint uint64
}

// Layout is the shared view every template renders from.
type Layout struct {
	Prefix       string
	Size         int
	PointerWidth int
	PackOriginal bool
	Slots        []Slot // catalog order
}

// NewLayout maps each export to slot Ordinal-1 of a table sized to the
// catalog. Ordinals outside the table or used twice are rejected since
// either would make the assembly index past or alias a slot.
func NewLayout(p Project, c exports.Catalog) (*Layout, error) {
	if p.BinaryName == "" {
		return nil, errors.New(errors.ErrLayout, "empty binary name")
	}
	l := &Layout{
		Prefix:       p.BinaryName,
		Size:         c.Len(),
		PointerWidth: PointerWidth,
		PackOriginal: p.PackOriginal,
		Slots:        make([]Slot, 0, c.Len()),
	}
	taken := make(map[uint32]string, len(c))
	for _, e := range c {
		if e.Ordinal == 0 || int64(e.Ordinal) > int64(l.Size) {
			return nil, errors.Newf(errors.ErrLayout, "ordinal %d of %q outside slot table of %d", e.Ordinal, e.Name, l.Size)
		}
		if prev, ok := taken[e.Ordinal]; ok {
			return nil, errors.Newf(errors.ErrLayout, "ordinal %d used by both %q and %q", e.Ordinal, prev, e.Name)
		}
		taken[e.Ordinal] = e.Name
		l.Slots = append(l.Slots, Slot{
			Index:      int(e.Ordinal) - 1,
			Ordinal:    e.Ordinal,
			Name:       e.Name,
			Symbol:     p.BinaryName + "_" + e.Name,
			EntryPoint: e.EntryPoint,
		})
	}
	return l, nil
}
