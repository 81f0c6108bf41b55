// Package opml provides OPML import and export for feed subscriptions.
package opml

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/samber/lo"

	"github.com/okrent/feedspool/model"
)

// OPML represents the root OPML structure.
type OPML struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    Head     `xml:"head"`
	Body    Body     `xml:"body"`
}

// Head contains metadata about the OPML document.
type Head struct {
	Title       string `xml:"title,omitempty"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

// Body contains the outline elements (feeds).
type Body struct {
	Outlines []Outline `xml:"outline"`
}

// Outline represents a feed or a grouping in OPML.
type Outline struct {
	Text     string    `xml:"text,attr,omitempty"`
	Title    string    `xml:"title,attr,omitempty"`
	Type     string    `xml:"type,attr,omitempty"`
	XMLUrl   string    `xml:"xmlUrl,attr,omitempty"`
	Outlines []Outline `xml:"outline,omitempty"`
}

// Parse reads an OPML document and extracts subscriptions. Grouping
// outlines are flattened; every imported feed starts with the defaults
// of a hand-added one.
func Parse(r io.Reader) ([]*model.Feed, error) {
	var doc OPML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse OPML: %w", err)
	}
	return extractFeeds(doc.Body.Outlines), nil
}

// extractFeeds recursively collects feeds from outlines.
func extractFeeds(outlines []Outline) []*model.Feed {
	var feeds []*model.Feed
	for _, outline := range outlines {
		if outline.XMLUrl != "" {
			feed := model.NewFeed(outline.XMLUrl)
			if outline.Title != "" {
				feed.Title = outline.Title
			} else if outline.Text != "" {
				feed.Title = outline.Text
			}
			feeds = append(feeds, feed)
		}
		if len(outline.Outlines) > 0 {
			feeds = append(feeds, extractFeeds(outline.Outlines)...)
		}
	}
	return feeds
}

// Generate writes the subscriptions as an OPML document. The built-in
// pseudo-feeds are not subscriptions and are skipped.
func Generate(w io.Writer, feeds []*model.Feed) error {
	real := lo.Filter(feeds, func(f *model.Feed, _ int) bool {
		return !f.Type.Virtual()
	})

	doc := OPML{
		Version: "2.0",
		Head: Head{
			Title:       "feedspool Subscriptions",
			DateCreated: time.Now().Format(time.RFC1123),
		},
		Body: Body{
			Outlines: lo.Map(real, func(f *model.Feed, _ int) Outline {
				return Outline{
					Type:   "rss",
					Text:   f.Title,
					Title:  f.Title,
					XMLUrl: f.URL,
				}
			}),
		},
	}

	if _, err := w.Write([]byte(xml.Header)); err != nil {
		return fmt.Errorf("failed to write XML header: %w", err)
	}

	encoder := xml.NewEncoder(w)
	encoder.Indent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode OPML: %w", err)
	}

	if _, err := w.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write final newline: %w", err)
	}
	return nil
}
