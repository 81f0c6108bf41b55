package feedparse

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/mmcdole/gofeed/rss"
	"golang.org/x/net/html/charset"

	"github.com/okrent/feedspool/model"
)

// parseRSS converts an RSS 2.0 or RDF document. RDF (RSS 1.0) shares the
// item vocabulary, so gofeed's RSS parser covers both.
func (p *Parser) parseRSS(body []byte, contentType string) ([]model.StoryDraft, error) {
	doc, err := p.rss.Parse(decodeBody(body, contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rss document: %w", err)
	}

	enclosures := collectEnclosures(decodeBody(body, contentType))

	drafts := make([]model.StoryDraft, 0, len(doc.Items))
	for i, item := range doc.Items {
		var encs []rssEnclosure
		if i < len(enclosures) {
			encs = enclosures[i]
		}
		draft, err := convertRSSItem(item, encs)
		if err != nil {
			logSkippedItem("rss", i, err)
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func convertRSSItem(item *rss.Item, encs []rssEnclosure) (draft model.StoryDraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item conversion panicked: %v", r)
		}
	}()

	draft.Title = cleanTitle(item.Title)
	draft.Summary = reformatSummary(item.Description)

	if link := stripBreaks(item.Link); link != "" {
		draft.URLs = append(draft.URLs, model.StoryURL{Title: "Weblink", HRef: link})
	}

	for _, enc := range encs {
		if enc.URL != "" {
			applyMedia(&draft, enc.URL, enc.Type)
		}
	}
	if len(encs) == 0 {
		if enc := item.Enclosure; enc != nil && enc.URL != "" {
			applyMedia(&draft, enc.URL, enc.Type)
		}
	}

	draft.PubDate = rssPubDate(item)
	draft.UUID = rssUUID(item, draft.Title)
	return draft, nil
}

type rssEnclosure struct {
	URL  string
	Type string
}

// collectEnclosures gathers every enclosure element of each item, in
// document order. The item decoder keeps only one enclosure per item,
// but a story can draw its picture, audio and video from different
// enclosures of the same item.
func collectEnclosures(r io.Reader) [][]rssEnclosure {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	var all [][]rssEnclosure
	var current []rssEnclosure
	inItem := false
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "item":
				inItem = true
				current = nil
			case "enclosure":
				if !inItem {
					continue
				}
				var enc rssEnclosure
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "url":
						enc.URL = attr.Value
					case "type":
						enc.Type = attr.Value
					}
				}
				current = append(current, enc)
			}
		case xml.EndElement:
			if t.Name.Local == "item" && inItem {
				all = append(all, current)
				inItem = false
			}
		}
	}
	return all
}

// rssPubDate prefers the item's pubDate and falls back to the Dublin
// Core date element; 0 means unknown.
func rssPubDate(item *rss.Item) int64 {
	if item.PubDateParsed != nil {
		return item.PubDateParsed.Unix()
	}
	if ts := parseDate(item.PubDate); ts != 0 {
		return ts
	}
	if dc := item.DublinCoreExt; dc != nil && len(dc.Date) > 0 {
		return parseDate(dc.Date[0])
	}
	return 0
}

// rssUUID uses the feed-supplied guid and degrades to the stripped
// title. Two distinct items with identical titles and no guid will
// collide; that matches the historical dedup behavior.
func rssUUID(item *rss.Item, title string) string {
	if item.GUID != nil && item.GUID.Value != "" {
		return stripBreaks(item.GUID.Value)
	}
	return title
}

// applyMedia routes an enclosure into the draft's media fields. The last
// enclosure seen for a slot wins.
func applyMedia(draft *model.StoryDraft, url, mimeType string) {
	switch classifyMedia(url, mimeType) {
	case slotPicture:
		draft.Picture = url
	case slotAudio:
		draft.Audio = url
	case slotVideo:
		draft.Video = url
	}
}
