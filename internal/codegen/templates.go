package codegen

import (
	"bytes"
	_ "embed"
	"fmt"
	"go/format"
	"strings"
	"text/template"
)

//go:embed templates/protocol.go.tmpl
var protocolTemplate string

//go:embed templates/writers.go.tmpl
var writersTemplate string

//go:embed templates/README.md.tmpl
var readmeTemplate string

// TemplateData represents the data passed to templates.
type TemplateData struct {
	Name       string            // Contract name (PascalCase, e.g., "Timelock")
	Package    string            // Go package name (lowercase, e.g., "timelock")
	Type       string            // Registered protocol type
	Module     string            // Module path of the indexer the protocol plugs into
	ImportPath string            // Full import path for the package
	ABI        string            // Contract ABI holding the events
	Events     []*EventSignature // Events to generate code for
}

// RenderProtocol generates the protocol.go file content.
func RenderProtocol(data *TemplateData) (string, error) {
	return renderGoTemplate("protocol", protocolTemplate, data)
}

// RenderWriters generates the writers.go file content.
func RenderWriters(data *TemplateData) (string, error) {
	return renderGoTemplate("writers", writersTemplate, data)
}

// RenderReadme generates the README.md file content.
func RenderReadme(data *TemplateData) (string, error) {
	return renderTemplate("readme", readmeTemplate, data)
}

// renderGoTemplate renders a Go source template and gofmts the result.
func renderGoTemplate(name, tmplStr string, data *TemplateData) (string, error) {
	src, err := renderTemplate(name, tmplStr, data)
	if err != nil {
		return "", err
	}

	formatted, err := format.Source([]byte(src))
	if err != nil {
		return "", fmt.Errorf("failed to format %s: %w", name, err)
	}

	return string(formatted), nil
}

// renderTemplate renders a template with the given data.
func renderTemplate(name, tmplStr string, data *TemplateData) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs()).Parse(tmplStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}

// templateFuncs returns the functions available in templates.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		// Type mapping functions
		"Accessor":       Accessor,
		"StoreStatement": StoreStatement,
		"VarName":        VarName,
		"ParamGoType":    ParamGoType,

		// Case conversion functions
		"ToPascalCase":     ToPascalCase,
		"ToSnakeCase":      ToSnakeCase,
		"ToLowerCamelCase": ToLowerCamelCase,
		"lowerFirst": func(s string) string {
			if s == "" {
				return s
			}
			return strings.ToLower(s[:1]) + s[1:]
		},
	}
}
