package store

import (
	"database/sql"
	"fmt"

	"github.com/huandu/go-sqlbuilder"

	"github.com/okrent/feedspool/model"
)

const storySelectColumns = `s.id, s.fid, s.uuid, s.title, s.summary, s.picture,
	s.audio, s.video, s.pubdate, s.isRead, s.isNew, s.isStarred,
	f.title AS feedTitle, f.feedType`

// storyListBuilder assembles the shared WHERE clause of the story list
// queries: hide deleted rows, apply the feed's story filter, and route
// the pseudo-feeds to their aggregate story sets.
func storyListBuilder(feed *model.Feed, filter string) *sqlbuilder.SelectBuilder {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.From("stories AS s")
	sb.Join("feeds AS f", "f.id = s.fid")
	sb.Where(sb.Equal("s.deleted", 0))

	if filter != "" {
		sb.Where(sb.Like("s.title", "%"+filter+"%"))
	}

	switch feed.SortMode.Filter() {
	case model.FilterUnread:
		sb.Where(sb.Equal("s.isRead", 0))
	case model.FilterNew:
		sb.Where(sb.Equal("s.isNew", 1))
	}

	switch feed.Type {
	case model.TypeAllItems:
		// every feed's stories
	case model.TypeStarred:
		sb.Where(sb.Equal("s.isStarred", 1))
	default:
		sb.Where(sb.Equal("s.fid", feed.ID))
	}

	return sb
}

func scanStory(row rowScanner) (*model.Story, error) {
	var st model.Story
	var isRead, isNew, isStarred, feedType int
	err := row.Scan(
		&st.ID, &st.FeedID, &st.UUID, &st.Title, &st.Summary, &st.Picture,
		&st.Audio, &st.Video, &st.PubDate, &isRead, &isNew, &isStarred,
		&st.FeedTitle, &feedType,
	)
	if err != nil {
		return nil, err
	}
	st.IsRead = intToBool(isRead)
	st.IsNew = intToBool(isNew)
	st.IsStarred = intToBool(isStarred)
	st.FeedType = model.FeedType(feedType)
	return &st, nil
}

// GetStories retrieves the stories the given feed shows, honoring its
// sort mode, in reading order. limit <= 0 means no limit.
func (s *Store) GetStories(feed *model.Feed, filter string, offset, limit int) ([]*model.Story, error) {
	sb := storyListBuilder(feed, filter)
	sb.Select(storySelectColumns)
	if feed.SortMode.OrderByDate() {
		sb.OrderBy("s.pubdate DESC")
	} else {
		sb.OrderBy("f.feedOrder", "s.pubdate DESC")
	}
	if limit > 0 {
		sb.Limit(limit).Offset(offset)
	}

	query, args := sb.Build()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query stories: %w", err)
	}
	defer rows.Close()

	var stories []*model.Story
	for rows.Next() {
		st, err := scanStory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan story: %w", err)
		}
		stories = append(stories, st)
	}
	return stories, rows.Err()
}

// GetStoryCount returns how many stories the given feed shows.
func (s *Store) GetStoryCount(feed *model.Feed, filter string) (int, error) {
	sb := storyListBuilder(feed, filter)
	sb.Select("COUNT(s.id)")

	query, args := sb.Build()
	var count int
	if err := s.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stories: %w", err)
	}
	return count, nil
}

// GetStoryIDs returns the IDs of the stories the given feed shows, in
// the same order GetStories would list them.
func (s *Store) GetStoryIDs(feed *model.Feed, filter string) ([]int64, error) {
	sb := storyListBuilder(feed, filter)
	sb.Select("s.id")
	if feed.SortMode.OrderByDate() {
		sb.OrderBy("s.pubdate DESC")
	} else {
		sb.OrderBy("f.feedOrder", "s.pubdate DESC")
	}

	query, args := sb.Build()
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query story ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetStory retrieves a single story together with its web links.
func (s *Store) GetStory(id int64) (*model.Story, []model.StoryURL, error) {
	row := s.db.QueryRow(`
		SELECT `+storySelectColumns+`
		FROM stories AS s
		JOIN feeds AS f ON f.id = s.fid
		WHERE s.id = ?`, id)
	st, err := scanStory(row)
	if err == sql.ErrNoRows {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get story: %w", err)
	}

	urls, err := s.getStoryURLs(id)
	if err != nil {
		return nil, nil, err
	}
	return st, urls, nil
}

func (s *Store) getStoryURLs(sid int64) ([]model.StoryURL, error) {
	rows, err := s.db.Query(
		"SELECT title, href FROM storyurls WHERE sid = ? ORDER BY id", sid)
	if err != nil {
		return nil, fmt.Errorf("failed to query story urls: %w", err)
	}
	defer rows.Close()

	var urls []model.StoryURL
	for rows.Next() {
		var u model.StoryURL
		if err := rows.Scan(&u.Title, &u.HRef); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// GetFeedURLList returns the deduplicated web links of every story the
// given feed shows, for a "send links" style export.
func (s *Store) GetFeedURLList(feed *model.Feed) ([]model.StoryURL, error) {
	sb := storyListBuilder(feed, "")
	sb.Select("s.id")
	inner, args := sb.Build()

	query := fmt.Sprintf(`
		SELECT DISTINCT u.title, u.href
		FROM storyurls AS u
		WHERE u.sid IN (%s)
		ORDER BY u.href`, inner)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feed url list: %w", err)
	}
	defer rows.Close()

	var urls []model.StoryURL
	for rows.Next() {
		var u model.StoryURL
		if err := rows.Scan(&u.Title, &u.HRef); err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
