package exports

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Render prints the catalog as a table of ordinal, address and name.
func (c Catalog) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Ordinal", "Address", "Name"})
	for i, e := range c {
		t.AppendRow(table.Row{
			i,
			e.Ordinal,
			fmt.Sprintf("%016X", e.EntryPoint),
			e.Name,
		})
	}
	t.AppendFooter(table.Row{"", "", "exports", len(c)})
	t.Render()
}
