package feedparse

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	"github.com/mmcdole/gofeed/rss"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html/charset"

	"github.com/okrent/feedspool/model"
)

// Parser converts classified feed documents into story drafts. One
// Parser may be reused across fetches.
type Parser struct {
	rss  *rss.Parser
	atom *atom.Parser
}

// NewParser creates a new Parser.
func NewParser() *Parser {
	return &Parser{
		rss:  &rss.Parser{},
		atom: &atom.Parser{},
	}
}

// Parse produces the story drafts of a classified document. RDF
// documents are handled by the RSS path. Items that cannot be converted
// are skipped without affecting their siblings; an unparseable document
// is an error for the whole fetch.
func (p *Parser) Parse(feedType model.FeedType, body []byte, contentType string) ([]model.StoryDraft, error) {
	switch feedType {
	case model.TypeRSS, model.TypeRDF:
		return p.parseRSS(body, contentType)
	case model.TypeAtom:
		return p.parseAtom(body, contentType)
	default:
		return nil, fmt.Errorf("unsupported feed type %q", feedType)
	}
}

// decodeBody prepares a document for parsing. Documents that declare
// their own encoding are passed through untouched so the XML layer can
// convert them; otherwise the response Content-Type decides.
func decodeBody(body []byte, contentType string) io.Reader {
	head := body
	if len(head) > 256 {
		head = head[:256]
	}
	if bytes.Contains(head, []byte("encoding=")) {
		return bytes.NewReader(body)
	}
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return bytes.NewReader(body)
	}
	return r
}

// cleanTitle unescapes HTML entities and strips line breaks.
func cleanTitle(s string) string {
	return stripBreaks(html.UnescapeString(s))
}

// stripBreaks removes line breaks and surrounding whitespace.
func stripBreaks(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

// reformatSummary normalizes an item's HTML body for storage. The HTML
// itself is preserved; stripping happens per feed at display time.
func reformatSummary(s string) string {
	return strings.TrimSpace(s)
}

func logSkippedItem(format string, index int, err error) {
	log.WithFields(log.Fields{
		"format": format,
		"item":   index,
		"error":  err,
	}).Warn("Skipping unparseable item")
}
