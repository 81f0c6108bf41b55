// Package feedparse classifies fetched feed documents and converts them
// into story drafts for reconciliation.
package feedparse

import (
	"bytes"
	"encoding/xml"

	"golang.org/x/net/html/charset"

	"github.com/okrent/feedspool/model"
)

// Detect classifies a fetched document by probing its element names.
// A document containing an "rss" element is RSS, an "RDF" element RDF
// and a "feed" element Atom, in that priority order. Empty bodies and
// documents where none of the probes match are Unknown, as is anything
// too malformed to tokenize into one of the probe elements.
func Detect(body []byte) model.FeedType {
	if len(bytes.TrimSpace(body)) == 0 {
		return model.TypeUnknown
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	var hasRSS, hasRDF, hasFeed bool
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		if se, ok := tok.(xml.StartElement); ok {
			switch se.Name.Local {
			case "rss":
				hasRSS = true
			case "RDF":
				hasRDF = true
			case "feed":
				hasFeed = true
			}
		}
	}

	switch {
	case hasRSS:
		return model.TypeRSS
	case hasRDF:
		return model.TypeRDF
	case hasFeed:
		return model.TypeAtom
	default:
		return model.TypeUnknown
	}
}
