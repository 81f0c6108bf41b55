package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryKeepsSafeMarkup(t *testing.T) {
	r := New()
	in := `<p>Hello <a href="https://example.com">world</a></p><script>alert(1)</script>`

	out := r.Summary(in, true)
	assert.Contains(t, out, "<p>")
	assert.Contains(t, out, `href="https://example.com"`)
	assert.NotContains(t, out, "script")
	assert.NotContains(t, out, "alert")
}

func TestSummaryWithoutHTMLIsPlainText(t *testing.T) {
	r := New()
	out := r.Summary("<p>Hello <b>world</b></p>", false)
	assert.Equal(t, "Hello world", out)
}

func TestCaption(t *testing.T) {
	r := New()
	assert.Equal(t, "Hello world", r.Caption("<p>Hello</p>\n\t  <b>world</b>"))
	assert.Equal(t, "a & b", r.Caption("a &amp; b"))
	assert.Equal(t, "", r.Caption("<script>alert(1)</script>"))
}
