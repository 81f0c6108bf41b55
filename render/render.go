// Package render prepares story text for display. Feed documents carry
// arbitrary markup, so everything goes through a sanitizer before a
// front end shows it.
package render

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Renderer sanitizes story summaries and captions.
type Renderer struct {
	ugc    *bluemonday.Policy
	strict *bluemonday.Policy
}

// New returns a Renderer with the shared sanitizer policies compiled.
func New() *Renderer {
	return &Renderer{
		ugc:    bluemonday.UGCPolicy(),
		strict: bluemonday.StrictPolicy(),
	}
}

// Summary sanitizes a story summary. Feeds without HTML permission get
// plain text instead of markup.
func (r *Renderer) Summary(s string, allowHTML bool) string {
	if allowHTML {
		return strings.TrimSpace(r.ugc.Sanitize(s))
	}
	return r.Caption(s)
}

// Caption reduces markup to readable single-line plain text.
func (r *Renderer) Caption(s string) string {
	text := html.UnescapeString(r.strict.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}
