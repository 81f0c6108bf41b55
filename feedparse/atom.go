package feedparse

import (
	"fmt"

	"github.com/mmcdole/gofeed/atom"

	"github.com/okrent/feedspool/model"
)

// parseAtom converts an Atom 1.0 document.
func (p *Parser) parseAtom(body []byte, contentType string) ([]model.StoryDraft, error) {
	doc, err := p.atom.Parse(decodeBody(body, contentType))
	if err != nil {
		return nil, fmt.Errorf("failed to parse atom document: %w", err)
	}

	drafts := make([]model.StoryDraft, 0, len(doc.Entries))
	for i, entry := range doc.Entries {
		draft, err := convertAtomEntry(entry)
		if err != nil {
			logSkippedItem("atom", i, err)
			continue
		}
		drafts = append(drafts, draft)
	}
	return drafts, nil
}

func convertAtomEntry(entry *atom.Entry) (draft model.StoryDraft, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entry conversion panicked: %v", r)
		}
	}()

	draft.Title = cleanTitle(entry.Title)

	if entry.Content != nil && entry.Content.Value != "" {
		draft.Summary = reformatSummary(entry.Content.Value)
	} else {
		draft.Summary = reformatSummary(entry.Summary)
	}

	for _, link := range entry.Links {
		convertAtomLink(&draft, link)
	}

	if entry.UpdatedParsed != nil {
		draft.PubDate = entry.UpdatedParsed.Unix()
	} else {
		draft.PubDate = parseDate(entry.Updated)
	}

	if entry.ID != "" {
		draft.UUID = stripBreaks(entry.ID)
	} else {
		draft.UUID = draft.Title
	}
	return draft, nil
}

// convertAtomLink classifies one link element: HTML links become web
// link entries, rel=enclosure links are routed into the media fields,
// anything else is dropped.
func convertAtomLink(draft *model.StoryDraft, link *atom.Link) {
	if link == nil || link.Href == "" {
		return
	}

	if isWebLink(link.Href, link.Type) {
		title := link.Title
		if title == "" {
			title = weblinkTitle(link.Rel)
		}
		draft.URLs = append(draft.URLs, model.StoryURL{Title: title, HRef: link.Href})
		return
	}

	if containsFold(link.Rel, "enclosure") {
		applyMedia(draft, link.Href, link.Type)
	}
}
