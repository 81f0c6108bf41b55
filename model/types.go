// Package model defines the core data structures for feedspool.
package model

import (
	"errors"
	"time"
)

// FeedType classifies a feed's document format. Negative values are
// virtual pseudo-feeds that aggregate stories across real feeds and are
// never fetched.
type FeedType int

const (
	TypeStarred  FeedType = -2 // virtual: all starred stories
	TypeAllItems FeedType = -1 // virtual: all stories
	TypeUnknown  FeedType = 0
	TypeRSS      FeedType = 1
	TypeRDF      FeedType = 2
	TypeAtom     FeedType = 3
)

// String returns a human-readable name for the feed type.
func (t FeedType) String() string {
	switch t {
	case TypeStarred:
		return "starred"
	case TypeAllItems:
		return "allitems"
	case TypeRSS:
		return "rss"
	case TypeRDF:
		return "rdf"
	case TypeAtom:
		return "atom"
	default:
		return "unknown"
	}
}

// Virtual reports whether the feed type denotes a pseudo-feed.
func (t FeedType) Virtual() bool {
	return t < TypeUnknown
}

// StoryFilter selects which stories of a feed are visible.
type StoryFilter int

const (
	FilterAll    StoryFilter = 0
	FilterUnread StoryFilter = 1
	FilterNew    StoryFilter = 2
)

// SortMode is a packed bitfield: the low byte selects the story filter
// (0 = all, 1 = unread only, 2 = new only), bit 0x0100 switches the story
// ordering from "feed order, then date" to "date only".
type SortMode int

// OrderByDateBit toggles pure date ordering in a SortMode.
const OrderByDateBit = 0x0100

// Filter extracts the story filter from the low byte.
func (m SortMode) Filter() StoryFilter {
	return StoryFilter(int(m) & 0xFF)
}

// OrderByDate reports whether stories are ordered by date alone instead
// of feed order first.
func (m SortMode) OrderByDate() bool {
	return int(m)&0xFF00 == OrderByDateBit
}

// WithFilter returns a copy of the mode with the filter byte replaced.
func (m SortMode) WithFilter(f StoryFilter) SortMode {
	return SortMode(int(m)&^0xFF | int(f)&0xFF)
}

// Feed represents one subscribed story source, real or virtual.
// NumNew and NumUnread are derived by aggregation over the feed's stories
// and are only populated on records read back from the store.
type Feed struct {
	ID                int64    `json:"id"`
	Title             string   `json:"title"`
	URL               string   `json:"url"`
	Type              FeedType `json:"type"`
	Order             int      `json:"order"`
	Enabled           bool     `json:"enabled"`
	ShowPicture       bool     `json:"show_picture"`
	ShowMedia         bool     `json:"show_media"`
	ShowListSummary   bool     `json:"show_list_summary"`
	ShowListCaption   bool     `json:"show_list_caption"`
	ShowDetailSummary bool     `json:"show_detail_summary"`
	ShowDetailCaption bool     `json:"show_detail_caption"`
	SortMode          SortMode `json:"sort_mode"`
	AllowHTML         bool     `json:"allow_html"`
	FullStory         bool     `json:"full_story"`
	Username          string   `json:"username,omitempty"`
	Password          string   `json:"-"`
	Category          int64    `json:"category"`
	NumNew            int      `json:"num_new"`
	NumUnread         int      `json:"num_unread"`
}

// Validate checks if the feed has required fields.
func (f *Feed) Validate() error {
	if f.URL == "" {
		return errors.New("feed URL is required")
	}
	return nil
}

// PreventDelete reports whether the feed is one of the built-in
// pseudo-feeds, which cannot be removed.
func (f *Feed) PreventDelete() bool {
	return f.Type.Virtual()
}

// HasCredentials reports whether HTTP basic auth should be used when
// fetching the feed.
func (f *Feed) HasCredentials() bool {
	return f.Username != "" && f.Password != ""
}

// NewFeed returns a feed with the defaults applied to user-added
// subscriptions.
func NewFeed(url string) *Feed {
	return &Feed{
		Title:             "RSS Feed",
		URL:               url,
		Type:              TypeRSS,
		Enabled:           true,
		ShowPicture:       true,
		ShowMedia:         true,
		ShowListSummary:   true,
		ShowListCaption:   true,
		ShowDetailSummary: true,
		ShowDetailCaption: true,
		AllowHTML:         true,
		FullStory:         true,
	}
}

// Story represents one syndicated item belonging to a feed.
type Story struct {
	ID        int64  `json:"id"`
	FeedID    int64  `json:"feed_id"`
	UUID      string `json:"uuid"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Picture   string `json:"picture,omitempty"`
	Audio     string `json:"audio,omitempty"`
	Video     string `json:"video,omitempty"`
	PubDate   int64  `json:"pubdate"` // unix seconds, 0 if unknown
	IsRead    bool   `json:"is_read"`
	IsNew     bool   `json:"is_new"`
	IsStarred bool   `json:"is_starred"`
	Deleted   bool   `json:"-"`

	// Flag marks the story as a removal candidate during an in-flight
	// update cycle. It is never meaningful outside one.
	Flag bool `json:"-"`

	// Populated on reads that join the owning feed.
	FeedTitle string   `json:"feed_title,omitempty"`
	FeedType  FeedType `json:"feed_type,omitempty"`
}

// MediaURL returns the playable media URL, preferring video over audio.
func (s *Story) MediaURL() string {
	if s.Video != "" {
		return s.Video
	}
	return s.Audio
}

// Age returns how long ago the story was published.
func (s *Story) Age() time.Duration {
	return time.Since(time.Unix(s.PubDate, 0))
}

// StoryURL is one web link attached to a story, distinct from the media
// URL fields.
type StoryURL struct {
	Title string `json:"title"`
	HRef  string `json:"href"`
}

// StoryDraft is the parser output for one item before reconciliation.
// Read/new/starred state is decided by the store, not the parser.
type StoryDraft struct {
	Title   string
	Summary string
	URLs    []StoryURL
	Picture string
	Audio   string
	Video   string
	PubDate int64
	UUID    string
}
