// Package update drives the feed update pipeline: fetch, format
// detection, parsing and store reconciliation, one feed at a time.
package update

import (
	"context"
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/okrent/feedspool/config"
	"github.com/okrent/feedspool/event"
	"github.com/okrent/feedspool/feedparse"
	"github.com/okrent/feedspool/model"
	"github.com/okrent/feedspool/spool"
	"github.com/okrent/feedspool/store"
)

// ErrUnrecognizedFormat is returned when a fetched document is not a
// recognizable feed.
var ErrUnrecognizedFormat = errors.New("unrecognized feed format")

// Updater schedules and runs feed update cycles on the spooler.
//
// An update is either scheduled (background, quiet on failure) or
// interactive (user-triggered: failures disable the feed and surface an
// error event).
type Updater struct {
	store   *store.Store
	spool   *spool.Spooler
	fetcher *Fetcher
	parser  *feedparse.Parser
	gate    Gate
	bus     *event.Bus
	prefs   *config.Prefs

	mu         sync.Mutex
	foreground bool
}

// New creates an Updater. bus may be nil.
func New(st *store.Store, sp *spool.Spooler, gate Gate, bus *event.Bus, prefs *config.Prefs) *Updater {
	return &Updater{
		store:   st,
		spool:   sp,
		fetcher: NewFetcher(prefs.FetchTimeout()),
		parser:  feedparse.NewParser(),
		gate:    gate,
		bus:     bus,
		prefs:   prefs,
	}
}

// SetForeground records whether a user is currently looking at the app.
// New-story notifications are suppressed while one is.
func (u *Updater) SetForeground(fg bool) {
	u.mu.Lock()
	u.foreground = fg
	u.mu.Unlock()
}

// Foreground reports the last state recorded by SetForeground.
func (u *Updater) Foreground() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.foreground
}

// EnqueueUpdate spools an update cycle for one feed.
func (u *Updater) EnqueueUpdate(feedID int64, interactive bool) {
	u.spool.Enqueue(fmt.Sprintf("update feed %d", feedID), func() error {
		return u.updateByID(feedID, interactive)
	})
}

// EnqueueUpdateAll spools an update cycle for every updatable feed, as
// one batch. A scheduled run ends with a new-story notification task;
// an interactive run doesn't, since the user is already watching.
func (u *Updater) EnqueueUpdateAll(interactive bool) error {
	feeds, err := u.store.GetUpdatableFeeds()
	if err != nil {
		return fmt.Errorf("failed to list updatable feeds: %w", err)
	}

	u.spool.BeginBatch()
	for _, f := range feeds {
		feed := f
		u.spool.Enqueue(fmt.Sprintf("update feed %d", feed.ID), func() error {
			return u.updateFeed(feed, interactive)
		})
	}
	if !interactive {
		u.spool.Enqueue("notify new stories", u.notifyNewStories)
	}
	u.spool.EndBatch()
	return nil
}

// Wait blocks until the spooled updates finish.
func (u *Updater) Wait(ctx context.Context) error {
	return u.spool.Wait(ctx)
}

func (u *Updater) updateByID(feedID int64, interactive bool) error {
	feed, err := u.store.GetFeed(feedID)
	if err != nil {
		return fmt.Errorf("failed to load feed %d: %w", feedID, err)
	}
	if feed.Type.Virtual() || !feed.Enabled {
		log.WithField("feed", feed.URL).Debug("Skipping non-updatable feed")
		return nil
	}
	return u.updateFeed(store.UpdatableFeed{
		ID:       feed.ID,
		Order:    feed.Order,
		URL:      feed.URL,
		Username: feed.Username,
		Password: feed.Password,
	}, interactive)
}

// updateFeed runs one full update cycle: open the reconciliation
// bracket, fetch, detect, parse, merge every item, close the bracket.
// Any failure closes the bracket unsuccessfully so no stories are lost.
func (u *Updater) updateFeed(feed store.UpdatableFeed, interactive bool) error {
	if !u.gate.Online() {
		log.WithField("feed", feed.URL).Info("Offline, skipping update")
		if interactive {
			u.bus.Publish(event.FeedError{FeedURL: feed.URL, Message: "No internet connection"})
		}
		return nil
	}

	order, err := u.store.BeginStoryUpdate(feed.ID, u.prefs.KeepWindow())
	if err != nil {
		return err
	}
	u.bus.Publish(event.FeedUpdate{FeedOrder: order, InProgress: true})

	err = u.runCycle(feed)
	if err != nil {
		if _, endErr := u.store.EndStoryUpdate(feed.ID, false); endErr != nil {
			log.WithFields(log.Fields{"feed": feed.URL, "error": endErr}).
				Error("Failed to close update cycle")
		}
		u.bus.Publish(event.FeedUpdate{FeedOrder: order, InProgress: false})
		u.failFeed(feed, interactive, err)
		return fmt.Errorf("failed to update %s: %w", feed.URL, err)
	}

	if _, err := u.store.EndStoryUpdate(feed.ID, true); err != nil {
		u.bus.Publish(event.FeedUpdate{FeedOrder: order, InProgress: false})
		return fmt.Errorf("failed to finish update of %s: %w", feed.URL, err)
	}
	u.bus.Publish(event.FeedUpdate{FeedOrder: order, InProgress: false})
	u.bus.Publish(event.FeedListChanged{})
	u.bus.Publish(event.StoryListChanged{})
	return nil
}

func (u *Updater) runCycle(feed store.UpdatableFeed) error {
	body, contentType, err := u.fetcher.Fetch(context.Background(), feed.URL, feed.Username, feed.Password)
	if err != nil {
		return err
	}

	// The detected classification is written back either way, so an
	// unrecognizable feed drops out of future update runs.
	feedType := feedparse.Detect(body)
	if err := u.store.SetFeedType(feed.ID, feedType); err != nil {
		return err
	}
	if feedType == model.TypeUnknown {
		return ErrUnrecognizedFormat
	}

	drafts, err := u.parser.Parse(feedType, body, contentType)
	if err != nil {
		return err
	}
	for i := range drafts {
		if err := u.store.AddOrEditStory(feed.ID, &drafts[i]); err != nil {
			return err
		}
	}
	log.WithFields(log.Fields{"feed": feed.URL, "stories": len(drafts)}).Debug("Feed updated")
	return nil
}

// failFeed applies the interactive failure policy: the user asked for
// this update, so the error is surfaced, and a hard HTTP failure
// disables the feed until they re-edit it. Other causes (bad format,
// storage trouble) only report. Scheduled failures stay quiet.
func (u *Updater) failFeed(feed store.UpdatableFeed, interactive bool, cause error) {
	if !interactive {
		return
	}
	var statusErr *StatusError
	if errors.As(cause, &statusErr) {
		if err := u.store.DisableFeed(feed.ID); err != nil {
			log.WithFields(log.Fields{"feed": feed.URL, "error": err}).Error("Failed to disable feed")
		}
		u.bus.Publish(event.FeedListChanged{})
	}
	u.bus.Publish(event.FeedError{FeedURL: feed.URL, Message: errorMessage(cause)})
}

// notifyNewStories runs as the trailing task of a scheduled update
// batch and posts one notification for all new stories combined.
func (u *Updater) notifyNewStories() error {
	if !u.prefs.NotificationEnabled || u.Foreground() {
		return nil
	}
	count, err := u.store.GetNewStoryCount()
	if err != nil {
		return err
	}
	if count > 0 {
		u.bus.Publish(event.NewStories{Count: count})
	}
	return nil
}

// errorMessage maps an update failure to its user-facing text.
func errorMessage(err error) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Message()
	}
	if errors.Is(err, ErrUnrecognizedFormat) {
		return "Unsupported feed format"
	}
	return "Unexpected error"
}
