package symbols_test

import (
	"bytes"
	"log"
	"strings"
	"testing"

	"github.com/carved4/go-dllproxy/pkg/exports"
	"github.com/carved4/go-dllproxy/pkg/symbols"
)

func TestCheck(t *testing.T) {
	c := exports.Catalog{
		{Ordinal: 1, Name: "Foo"},
		{Ordinal: 2, Name: exports.NoName},
		{Ordinal: 3, Name: "foo"},
		{Ordinal: 4, Name: exports.NoName},
		{Ordinal: 5, Name: "Bar"},
	}
	cols := symbols.Check(c)
	if len(cols) != 2 {
		t.Fatalf("got %d collisions, expected 2: %v", len(cols), cols)
	}
	if !cols[0].Folded || cols[0].First.Ordinal != 1 || cols[0].Second.Ordinal != 3 {
		t.Errorf("collision 0: got %+v", cols[0])
	}
	if cols[1].Folded || cols[1].First.Ordinal != 2 || cols[1].Second.Ordinal != 4 {
		t.Errorf("collision 1: got %+v", cols[1])
	}
}

func TestCheckUnique(t *testing.T) {
	c := exports.Catalog{{Ordinal: 1, Name: "Foo"}, {Ordinal: 2, Name: "Bar"}}
	if cols := symbols.Check(c); len(cols) != 0 {
		t.Errorf("got %v, expected no collisions", cols)
	}
}

func TestWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	n := symbols.Warn(logger, exports.Catalog{{Ordinal: 1, Name: "A"}, {Ordinal: 2, Name: "A"}})
	if n != 1 {
		t.Errorf("Warn: got %d, expected 1", n)
	}
	if !strings.Contains(buf.String(), `duplicate symbol "A" (ordinal 1)`) {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}
