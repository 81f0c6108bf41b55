// Package event carries fire-and-forget notifications from the update
// pipeline to whatever front end is attached.
package event

import "sync"

// Event is implemented by every notification type.
type Event interface {
	event()
}

// FeedUpdate reports per-feed update progress, keyed by the feed's
// position in the list so the UI can redraw one row.
type FeedUpdate struct {
	FeedOrder  int
	InProgress bool
}

// FeedListChanged signals a structural change to the feed list.
type FeedListChanged struct{}

// StoryListChanged signals a structural change to a story list.
type StoryListChanged struct{}

// UpdateStateChanged reports the spooler's busy/idle transitions.
type UpdateStateChanged struct {
	Busy bool
}

// NewStories asks the platform to post a new-story notification.
type NewStories struct {
	Count int
}

// FeedError surfaces a user-visible fetch or parse problem for one feed.
// Only emitted for interactive updates.
type FeedError struct {
	FeedURL string
	Message string
}

func (FeedUpdate) event()         {}
func (FeedListChanged) event()    {}
func (StoryListChanged) event()   {}
func (UpdateStateChanged) event() {}
func (NewStories) event()         {}
func (FeedError) event()          {}

// Bus dispatches events synchronously to all subscribers. A nil *Bus is
// valid and drops everything, so components can publish unconditionally.
type Bus struct {
	mu   sync.Mutex
	subs []func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for all future events.
func (b *Bus) Subscribe(fn func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish delivers ev to every subscriber in subscription order.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := make([]func(Event), len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}
