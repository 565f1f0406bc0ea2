package sync

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// RenderQuery renders the site query template with the configured variables.
// Unknown variables are an error rather than silently expanding to "<no value>"
// inside SQL.
func RenderQuery(text string, vars map[string]any) (string, error) {
	tmpl, err := template.New("query").
		Funcs(sprig.TxtFuncMap()).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse query template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render query template: %w", err)
	}

	return buf.String(), nil
}
