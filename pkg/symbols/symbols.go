// Package symbols flags export names that would collide once turned into
// forwarder symbols. Names are never rewritten.
package symbols

import (
	"fmt"
	"log"
	"strings"

	"github.com/carved4/go-dllproxy/pkg/exports"
)

// Collision is a pair of exports that map to the same forwarder symbol.
type Collision struct {
	First  exports.Export
	Second exports.Export
	// Folded is set when the names differ only by case. ml64 folds
	// identifier case by default, so these still clash in the .asm.
	Folded bool
}

func (c Collision) String() string {
	kind := "duplicate"
	if c.Folded {
		kind = "case-folded duplicate"
	}
	return fmt.Sprintf("%s symbol %q (ordinal %d) and %q (ordinal %d)",
		kind, c.First.Name, c.First.Ordinal, c.Second.Name, c.Second.Ordinal)
}

// Detector remembers the first export seen under each normalized name.
type Detector struct {
	seen map[string]exports.Export
}

func NewDetector() *Detector {
	return &Detector{seen: make(map[string]exports.Export)}
}

// Add records e and reports whether it collides with an earlier export.
func (d *Detector) Add(e exports.Export) (Collision, bool) {
	key := strings.ToUpper(e.Name)
	if prev, ok := d.seen[key]; ok {
		return Collision{First: prev, Second: e, Folded: prev.Name != e.Name}, true
	}
	d.seen[key] = e
	return Collision{}, false
}

// Check returns every collision in the catalog, in catalog order.
func Check(c exports.Catalog) []Collision {
	d := NewDetector()
	var out []Collision
	for _, e := range c {
		if col, ok := d.Add(e); ok {
			out = append(out, col)
		}
	}
	return out
}

// Warn logs each collision and returns how many there were.
func Warn(logger *log.Logger, c exports.Catalog) int {
	if logger == nil {
		logger = log.Default()
	}
	cols := Check(c)
	for _, col := range cols {
		logger.Printf("Warning: %s; the generated project will not assemble", col)
	}
	return len(cols)
}
