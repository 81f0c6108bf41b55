package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okrent/feedspool/model"
)

const testKeepWindow = 72 * time.Hour

func addTestStory(t *testing.T, s *Store, fid int64, uuid string, pubdate int64) {
	t.Helper()
	require.NoError(t, s.AddOrEditStory(fid, &model.StoryDraft{
		UUID:    uuid,
		Title:   "Story " + uuid,
		Summary: "summary " + uuid,
		PubDate: pubdate,
		URLs:    []model.StoryURL{{Title: "Weblink", HRef: "https://example.com/" + uuid}},
	}))
}

func findStory(t *testing.T, s *Store, feed *model.Feed, uuid string) *model.Story {
	t.Helper()
	stories, err := s.GetStories(feed, "", 0, 0)
	require.NoError(t, err)
	for _, st := range stories {
		if st.UUID == uuid {
			return st
		}
	}
	t.Fatalf("story %q not found", uuid)
	return nil
}

func pseudoFeed(t *testing.T, s *Store, feedType model.FeedType) *model.Feed {
	t.Helper()
	feeds, err := s.GetFeeds("", 0, 0)
	require.NoError(t, err)
	for _, f := range feeds {
		if f.Type == feedType {
			return f
		}
	}
	t.Fatalf("pseudo-feed %v not found", feedType)
	return nil
}

func TestAddOrEditStoryInsertDefaults(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")

	addTestStory(t, s, feed.ID, "recent", time.Now().Unix())
	addTestStory(t, s, feed.ID, "dateless", 0)

	recent := findStory(t, s, feed, "recent")
	assert.False(t, recent.IsRead)
	assert.True(t, recent.IsNew)
	assert.False(t, recent.IsStarred)

	dateless := findStory(t, s, feed, "dateless")
	assert.False(t, dateless.IsNew, "a story without a date never counts as new")

	got := mustGetFeed(t, s, feed.ID)
	assert.Equal(t, 1, got.NumNew)
	assert.Equal(t, 2, got.NumUnread)
}

func TestAddOrEditStoryUpdateKeepsReadState(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "a", time.Now().Unix())

	st := findStory(t, s, feed, "a")
	require.NoError(t, s.MarkStoryRead(st.ID, true))
	require.NoError(t, s.MarkStarred(st.ID, true))

	require.NoError(t, s.AddOrEditStory(feed.ID, &model.StoryDraft{
		UUID:    "a",
		Title:   "Revised",
		Summary: "revised summary",
		PubDate: time.Now().Unix(),
		URLs: []model.StoryURL{
			{Title: "Weblink", HRef: "https://example.com/a2"},
			{Title: "Replies", HRef: "https://example.com/a2#comments"},
		},
	}))

	got := findStory(t, s, feed, "a")
	assert.Equal(t, st.ID, got.ID, "refetched story keeps its row")
	assert.Equal(t, "Revised", got.Title)
	assert.True(t, got.IsRead)
	assert.True(t, got.IsStarred)
	assert.False(t, got.IsNew)

	_, urls, err := s.GetStory(st.ID)
	require.NoError(t, err)
	require.Len(t, urls, 2, "links are replaced, not appended")
	assert.Equal(t, "https://example.com/a2", urls[0].HRef)
}

func TestBeginStoryUpdateReturnsFeedOrder(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")

	order, err := s.BeginStoryUpdate(feed.ID, testKeepWindow)
	require.NoError(t, err)
	assert.Equal(t, 2, order)

	_, err = s.BeginStoryUpdate(9999, testKeepWindow)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBeginStoryUpdateExpiresNewMarker(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "aging", time.Now().Unix())

	// Age the story past the new window but inside the keep window.
	backdate := time.Now().Add(-36 * time.Hour).Unix()
	_, err := s.db.Exec("UPDATE stories SET pubdate = ? WHERE uuid = ?", backdate, "aging")
	require.NoError(t, err)

	_, err = s.BeginStoryUpdate(feed.ID, testKeepWindow)
	require.NoError(t, err)

	got := findStory(t, s, feed, "aging")
	assert.False(t, got.IsNew)
	assert.False(t, got.IsRead)
}

func TestUpdateCycleRemovesVanishedReadStories(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "kept", time.Now().Unix())
	addTestStory(t, s, feed.ID, "read-gone", time.Now().Unix())
	addTestStory(t, s, feed.ID, "starred-gone", time.Now().Unix())

	require.NoError(t, s.MarkStoryRead(findStory(t, s, feed, "read-gone").ID, true))
	readKept := findStory(t, s, feed, "kept")
	require.NoError(t, s.MarkStoryRead(readKept.ID, true))
	starred := findStory(t, s, feed, "starred-gone")
	require.NoError(t, s.MarkStoryRead(starred.ID, true))
	require.NoError(t, s.MarkStarred(starred.ID, true))

	_, err := s.BeginStoryUpdate(feed.ID, testKeepWindow)
	require.NoError(t, err)

	// The fetched document still carries "kept" but not the others.
	addTestStory(t, s, feed.ID, "kept", time.Now().Unix())

	order, err := s.EndStoryUpdate(feed.ID, true)
	require.NoError(t, err)
	assert.Equal(t, 2, order)

	stories, err := s.GetStories(feed, "", 0, 0)
	require.NoError(t, err)
	uuids := make([]string, 0, len(stories))
	for _, st := range stories {
		uuids = append(uuids, st.UUID)
	}
	assert.ElementsMatch(t, []string{"kept", "starred-gone"}, uuids,
		"vanished read stories go, refetched and starred ones stay")
	assert.True(t, findStory(t, s, feed, "kept").IsRead, "refetch keeps read state")
}

func TestUpdateCycleSweepsExpiredStories(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "ancient", time.Now().Add(-200*time.Hour).Unix())
	addTestStory(t, s, feed.ID, "fresh", time.Now().Unix())

	_, err := s.BeginStoryUpdate(feed.ID, testKeepWindow)
	require.NoError(t, err)
	_, err = s.EndStoryUpdate(feed.ID, true)
	require.NoError(t, err)

	stories, err := s.GetStories(feed, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, stories, 1, "unread stories past the keep window are swept")
	assert.Equal(t, "fresh", stories[0].UUID)
}

func TestEndStoryUpdateFailureKeepsEverything(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "old-read", time.Now().Unix())
	require.NoError(t, s.MarkStoryRead(findStory(t, s, feed, "old-read").ID, true))

	_, err := s.BeginStoryUpdate(feed.ID, testKeepWindow)
	require.NoError(t, err)
	_, err = s.EndStoryUpdate(feed.ID, false)
	require.NoError(t, err)

	count, err := s.GetStoryCount(feed, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a failed update must not lose stories")

	// The flags were cleared, so a later successful close deletes nothing.
	_, err = s.EndStoryUpdate(feed.ID, true)
	require.NoError(t, err)
	count, err = s.GetStoryCount(feed, "")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMarkStoryRead(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "a", time.Now().Unix())
	id := findStory(t, s, feed, "a").ID

	require.NoError(t, s.MarkStoryRead(id, true))
	got := findStory(t, s, feed, "a")
	assert.True(t, got.IsRead)
	assert.False(t, got.IsNew, "reading clears the new marker")

	require.NoError(t, s.MarkStoryRead(id, false))
	got = findStory(t, s, feed, "a")
	assert.False(t, got.IsRead)
	assert.False(t, got.IsNew, "marking unread does not bring the new marker back")
}

func TestMarkAllReadRouting(t *testing.T) {
	setup := func(t *testing.T) (*Store, *model.Feed, *model.Feed) {
		s := newTestStore(t)
		f1 := addTestFeed(t, s, "One", "https://example.com/1")
		f2 := addTestFeed(t, s, "Two", "https://example.com/2")
		addTestStory(t, s, f1.ID, "a", time.Now().Unix())
		addTestStory(t, s, f2.ID, "b", time.Now().Unix())
		require.NoError(t, s.MarkStarred(findStory(t, s, f2, "b").ID, true))
		return s, f1, f2
	}

	t.Run("single feed", func(t *testing.T) {
		s, f1, f2 := setup(t)
		require.NoError(t, s.MarkAllRead(f1, true))
		assert.True(t, findStory(t, s, f1, "a").IsRead)
		assert.False(t, findStory(t, s, f2, "b").IsRead)
	})

	t.Run("starred", func(t *testing.T) {
		s, f1, f2 := setup(t)
		require.NoError(t, s.MarkAllRead(pseudoFeed(t, s, model.TypeStarred), true))
		assert.False(t, findStory(t, s, f1, "a").IsRead)
		assert.True(t, findStory(t, s, f2, "b").IsRead)
	})

	t.Run("all items", func(t *testing.T) {
		s, f1, f2 := setup(t)
		require.NoError(t, s.MarkAllRead(pseudoFeed(t, s, model.TypeAllItems), true))
		assert.True(t, findStory(t, s, f1, "a").IsRead)
		assert.True(t, findStory(t, s, f2, "b").IsRead)
	})

	t.Run("mark all unread", func(t *testing.T) {
		s, f1, _ := setup(t)
		require.NoError(t, s.MarkAllRead(f1, true))
		require.NoError(t, s.MarkAllRead(f1, false))
		got := findStory(t, s, f1, "a")
		assert.False(t, got.IsRead)
		assert.False(t, got.IsNew)
	})
}

func TestMarkAllUnStarred(t *testing.T) {
	s := newTestStore(t)
	f1 := addTestFeed(t, s, "One", "https://example.com/1")
	f2 := addTestFeed(t, s, "Two", "https://example.com/2")
	addTestStory(t, s, f1.ID, "a", time.Now().Unix())
	addTestStory(t, s, f2.ID, "b", time.Now().Unix())
	require.NoError(t, s.MarkStarred(findStory(t, s, f1, "a").ID, true))
	require.NoError(t, s.MarkStarred(findStory(t, s, f2, "b").ID, true))

	require.NoError(t, s.MarkAllUnStarred(f1))
	assert.False(t, findStory(t, s, f1, "a").IsStarred)
	assert.True(t, findStory(t, s, f2, "b").IsStarred)

	require.NoError(t, s.MarkAllUnStarred(pseudoFeed(t, s, model.TypeStarred)))
	assert.False(t, findStory(t, s, f2, "b").IsStarred)
}

func TestDeleteStoryHidesButPreventsResurrection(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "a", time.Now().Unix())
	id := findStory(t, s, feed, "a").ID

	require.NoError(t, s.DeleteStory(id))

	count, err := s.GetStoryCount(feed, "")
	require.NoError(t, err)
	assert.Zero(t, count)

	// A refetch of the same item must not bring the story back.
	addTestStory(t, s, feed.ID, "a", time.Now().Unix())
	count, err = s.GetStoryCount(feed, "")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetStoriesSortModeFilters(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "unread-new", time.Now().Unix())
	addTestStory(t, s, feed.ID, "unread-old", 0)
	addTestStory(t, s, feed.ID, "read", time.Now().Unix())
	require.NoError(t, s.MarkStoryRead(findStory(t, s, feed, "read").ID, true))

	feed.SortMode = feed.SortMode.WithFilter(model.FilterUnread)
	stories, err := s.GetStories(feed, "", 0, 0)
	require.NoError(t, err)
	assert.Len(t, stories, 2)

	feed.SortMode = feed.SortMode.WithFilter(model.FilterNew)
	stories, err = s.GetStories(feed, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "unread-new", stories[0].UUID)

	feed.SortMode = feed.SortMode.WithFilter(model.FilterAll)
	count, err := s.GetStoryCount(feed, "")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestGetStoriesOrdering(t *testing.T) {
	s := newTestStore(t)
	f1 := addTestFeed(t, s, "One", "https://example.com/1")
	f2 := addTestFeed(t, s, "Two", "https://example.com/2")

	now := time.Now().Unix()
	addTestStory(t, s, f1.ID, "f1-old", now-100)
	addTestStory(t, s, f2.ID, "f2-new", now)
	addTestStory(t, s, f1.ID, "f1-new", now-50)

	all := pseudoFeed(t, s, model.TypeAllItems)
	stories, err := s.GetStories(all, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, stories, 3)
	assert.Equal(t, "f1-new", stories[0].UUID, "feed order comes first by default")
	assert.Equal(t, "f1-old", stories[1].UUID)
	assert.Equal(t, "f2-new", stories[2].UUID)

	all.SortMode = model.SortMode(model.OrderByDateBit)
	stories, err = s.GetStories(all, "", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, "f2-new", stories[0].UUID, "date ordering ignores feed order")
}

func TestGetStoriesTitleFilterAndPaging(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	now := time.Now().Unix()
	addTestStory(t, s, feed.ID, "a", now)
	addTestStory(t, s, feed.ID, "b", now-10)
	addTestStory(t, s, feed.ID, "c", now-20)

	stories, err := s.GetStories(feed, "Story b", 0, 0)
	require.NoError(t, err)
	require.Len(t, stories, 1)
	assert.Equal(t, "b", stories[0].UUID)

	page, err := s.GetStories(feed, "", 1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "b", page[0].UUID)
	assert.Equal(t, "c", page[1].UUID)

	ids, err := s.GetStoryIDs(feed, "")
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestGetStory(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "a", time.Now().Unix())
	id := findStory(t, s, feed, "a").ID

	story, urls, err := s.GetStory(id)
	require.NoError(t, err)
	assert.Equal(t, "Story a", story.Title)
	assert.Equal(t, "One", story.FeedTitle)
	assert.Equal(t, model.TypeRSS, story.FeedType)
	require.Len(t, urls, 1)
	assert.Equal(t, "https://example.com/a", urls[0].HRef)

	_, _, err = s.GetStory(9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNewStoryCount(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	addTestStory(t, s, feed.ID, "new", time.Now().Unix())
	addTestStory(t, s, feed.ID, "dateless", 0)

	count, err := s.GetNewStoryCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, s.DeleteStory(findStory(t, s, feed, "new").ID))
	count, err = s.GetNewStoryCount()
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGetFeedURLList(t *testing.T) {
	s := newTestStore(t)
	feed := addTestFeed(t, s, "One", "https://example.com/1")
	require.NoError(t, s.AddOrEditStory(feed.ID, &model.StoryDraft{
		UUID: "a", Title: "A",
		URLs: []model.StoryURL{{Title: "Weblink", HRef: "https://example.com/shared"}},
	}))
	require.NoError(t, s.AddOrEditStory(feed.ID, &model.StoryDraft{
		UUID: "b", Title: "B",
		URLs: []model.StoryURL{
			{Title: "Weblink", HRef: "https://example.com/shared"},
			{Title: "Replies", HRef: "https://example.com/b#comments"},
		},
	}))

	urls, err := s.GetFeedURLList(feed)
	require.NoError(t, err)
	assert.Len(t, urls, 2, "identical links collapse to one entry")
}
