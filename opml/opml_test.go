package opml

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okrent/feedspool/model"
)

func TestParse(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<opml version="2.0">
  <head><title>Subscriptions</title></head>
  <body>
    <outline type="rss" text="Go Blog" title="Go Blog" xmlUrl="https://go.dev/blog/feed.atom"/>
    <outline text="News">
      <outline type="rss" text="Example" xmlUrl="https://example.com/rss"/>
    </outline>
    <outline text="Not a feed"/>
  </body>
</opml>`

	feeds, err := Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, feeds, 2)

	assert.Equal(t, "Go Blog", feeds[0].Title)
	assert.Equal(t, "https://go.dev/blog/feed.atom", feeds[0].URL)
	assert.True(t, feeds[0].Enabled, "imported feeds start with the usual defaults")
	assert.Equal(t, model.TypeRSS, feeds[0].Type)

	assert.Equal(t, "Example", feeds[1].Title, "nested outlines are flattened")
}

func TestParseInvalidXML(t *testing.T) {
	_, err := Parse(strings.NewReader("not xml at all"))
	assert.Error(t, err)
}

func TestGenerate(t *testing.T) {
	feeds := []*model.Feed{
		{Title: "Starred Items", URL: "starred", Type: model.TypeStarred},
		{Title: "All Items", URL: "allitems", Type: model.TypeAllItems},
		{Title: "Go Blog", URL: "https://go.dev/blog/feed.atom", Type: model.TypeAtom},
		{Title: "Example", URL: "https://example.com/rss", Type: model.TypeRSS},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, feeds))
	out := buf.String()

	assert.Contains(t, out, `xmlUrl="https://go.dev/blog/feed.atom"`)
	assert.Contains(t, out, `xmlUrl="https://example.com/rss"`)
	assert.NotContains(t, out, "starred", "pseudo-feeds are not subscriptions")
	assert.NotContains(t, out, "allitems")
}

func TestRoundTrip(t *testing.T) {
	feeds := []*model.Feed{
		{Title: "One", URL: "https://example.com/1", Type: model.TypeRSS},
		{Title: "Two", URL: "https://example.com/2", Type: model.TypeRSS},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, feeds))

	parsed, err := Parse(&buf)
	require.NoError(t, err)
	require.Len(t, parsed, 2)
	assert.Equal(t, "One", parsed[0].Title)
	assert.Equal(t, "https://example.com/2", parsed[1].URL)
}
