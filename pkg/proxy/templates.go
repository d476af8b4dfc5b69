package proxy

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/carved4/go-dllproxy/pkg/errors"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

const (
	tmplHeader    = "header.h.tmpl"
	tmplSource    = "source.cc.tmpl"
	tmplAssembler = "exports.asm.tmpl"
	tmplDef       = "module.def.tmpl"
	tmplDllMain   = "dll_main.cc.tmpl"
	tmplBinary    = "binary.h.tmpl"
)

var templates = template.Must(template.New("proxy").Funcs(template.FuncMap{
	"hex16":    func(v uint64) string { return fmt.Sprintf("%016X", v) },
	"hexbytes": hexBytes,
}).ParseFS(templateFS, "templates/*.tmpl"))

const hexDigits = "0123456789abcdef"

// hexBytes renders b as a comma separated list of 0x.. literals.
func hexBytes(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 6)
	for i, c := range b {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("0x")
		sb.WriteByte(hexDigits[c>>4])
		sb.WriteByte(hexDigits[c&15])
	}
	return sb.String()
}

func render(name string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, errors.Wrap(errors.ErrRender, name, err)
	}
	return buf.Bytes(), nil
}
