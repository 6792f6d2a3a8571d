package markdown

import (
	"bytes"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const DefaultWidth = 100

// Renderer formats assistant replies for a terminal.
type Renderer struct {
	term *glamour.TermRenderer
}

func NewRenderer(width int) *Renderer {
	if width <= 0 {
		width = DefaultWidth
	}

	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)

	if err != nil {
		return &Renderer{}
	}

	return &Renderer{term: term}
}

// Render returns text styled for the terminal, or text unchanged if it
// cannot be rendered.
func (r *Renderer) Render(text string) string {
	if r == nil || r.term == nil {
		return text
	}

	out, err := r.term.Render(text)

	if err != nil {
		return text
	}

	return strings.Trim(out, "\n") + "\n"
}

var html = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
)

// HTML converts markdown to HTML for the web chat. Raw HTML in the input is
// not passed through.
func HTML(text string) string {
	var buf bytes.Buffer

	if err := html.Convert([]byte(text), &buf); err != nil {
		return ""
	}

	return buf.String()
}
