package gen

import (
	"bytes"
	"fmt"
	"go/format"
	"text/template"
)

// Generate renders the mock's source, gofmt-ed.
func Generate(mock Mock) (string, error) {
	var buf bytes.Buffer

	err := mockTemplate.Execute(&buf, mock)
	if err != nil {
		return "", fmt.Errorf("failed to render mock %s: %w", mock.Name, err)
	}

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("failed to format mock %s: %w", mock.Name, err)
	}

	return string(formatted), nil
}

//nolint:gochecknoglobals // parsed once
var mockTemplate = template.Must(template.New("mock").Parse(`// Code generated by forkgen. DO NOT EDIT.

package {{.Package}}

import (
	"github.com/toejough/forktest"
{{- range .Imports}}
	{{.}}
{{- end}}
)

// {{.Name}} mocks {{.Interface}}. Every call is checked against the expectations registered on
// its forktest.T, under the function names in the {{.Name}}Func constants.
type {{.Name}} struct {
	t *forktest.T
}

// New{{.Name}} returns a mock bound to t.
func New{{.Name}}(t *forktest.T) *{{.Name}} {
	return &{{.Name}}{t: t}
}

// Function names recorded by {{.Name}}.
const (
{{- range .Methods}}
	{{$.Name}}Func{{.Name}} = "{{.Key $.Interface}}"
{{- end}}
)
{{range .Methods}}
func (m *{{$.Name}}) {{.Name}}({{.ParamList}}) {{.ResultList}} {
{{- $call := printf "m.t.CallAt(forktest.CallerOrigin(1), %sFunc%s" $.Name .Name}}
{{- if .Params}}{{$call = printf "%s, %s)" $call .ArgList}}{{else}}{{$call = printf "%s)" $call}}{{end}}
{{- if eq (len .Results) 0}}
	{{$call}}
{{- else if eq (len .Results) 1}}
	return forktest.Returned[{{index .Results 0}}]({{$call}})
{{- else}}
	returned := forktest.Unpack({{$call}}, {{len .Results}})

	return {{range $index, $type := .Results}}{{if $index}}, {{end}}forktest.Returned[{{$type}}](returned[{{$index}}]){{end}}
{{- end}}
}
{{end}}
{{- if .SourcePkg}}
var _ {{.SourcePkg}}.{{.Interface}} = (*{{.Name}})(nil)
{{- else}}
var _ {{.Interface}} = (*{{.Name}})(nil)
{{- end}}
`))
