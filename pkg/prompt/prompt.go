package prompt

import (
	"bytes"
	_ "embed"
	"text/template"
	"time"
)

//go:embed instructions.txt
var Instructions string

func Render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)

	if err != nil {
		return "", err
	}

	var buf bytes.Buffer

	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

// System renders the default instructions for the given point in time.
func System(now time.Time) (string, error) {
	return Render(Instructions, struct {
		Date string
	}{
		Date: now.Format("2006-01-02"),
	})
}
