// Package store provides the SQLite persistence layer for feedspool.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/okrent/feedspool/model"
)

var (
	// ErrNotFound is returned when a feed or story does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProtectedFeed is returned when deleting a built-in pseudo-feed.
	ErrProtectedFeed = errors.New("feed cannot be deleted")
)

const schemaVersion = 1

// Store manages the SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
// Use ":memory:" for an in-memory database (useful for testing).
func New(dbPath string) (*Store, error) {
	dsn := dbPath
	if dsn == ":memory:" {
		dsn = "file::memory:"
	}
	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also
	// keeps in-memory databases from evaporating between statements.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// createSchema creates the database tables and the two built-in
// pseudo-feeds on first open.
func (s *Store) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feeds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL DEFAULT 'RSS Feed',
		url TEXT NOT NULL,
		feedType INTEGER NOT NULL,
		feedOrder INTEGER NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		showPicture INTEGER NOT NULL DEFAULT 1,
		showMedia INTEGER NOT NULL DEFAULT 1,
		showListSummary INTEGER NOT NULL DEFAULT 1,
		showListCaption INTEGER NOT NULL DEFAULT 1,
		showDetailSummary INTEGER NOT NULL DEFAULT 1,
		showDetailCaption INTEGER NOT NULL DEFAULT 1,
		sortMode INTEGER NOT NULL DEFAULT 0,
		allowHTML INTEGER NOT NULL DEFAULT 1,
		fullStory INTEGER NOT NULL DEFAULT 1,
		username TEXT NOT NULL DEFAULT '',
		password TEXT NOT NULL DEFAULT '',
		category INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS stories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		fid INTEGER NOT NULL REFERENCES feeds(id) ON DELETE CASCADE ON UPDATE CASCADE,
		uuid TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		picture TEXT NOT NULL DEFAULT '',
		audio TEXT NOT NULL DEFAULT '',
		video TEXT NOT NULL DEFAULT '',
		isRead INTEGER NOT NULL DEFAULT 0,
		isNew INTEGER NOT NULL DEFAULT 1,
		isStarred INTEGER NOT NULL DEFAULT 0,
		pubdate INTEGER NOT NULL DEFAULT 0,
		flag INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_stories_fid_uuid ON stories(fid, uuid);
	CREATE INDEX IF NOT EXISTS idx_stories_pubdate ON stories(pubdate DESC);

	CREATE TABLE IF NOT EXISTS storyurls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sid INTEGER NOT NULL REFERENCES stories(id) ON DELETE CASCADE ON UPDATE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		href TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS system (version INTEGER NOT NULL);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM system").Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec("INSERT INTO system (version) VALUES (?)", schemaVersion); err != nil {
			return err
		}
		return s.bootstrapFeeds()
	}
	return nil
}

// bootstrapFeeds inserts the Starred and All Items pseudo-feeds that
// anchor the top of the feed list.
func (s *Store) bootstrapFeeds() error {
	log.Info("Initializing feed database")
	_, err := s.db.Exec(`
		INSERT INTO feeds (title, url, feedType, feedOrder) VALUES
			('Starred Items', 'starred', ?, 0),
			('All Items', 'allitems', ?, 1)`,
		int(model.TypeStarred), int(model.TypeAllItems))
	return err
}

// withTx runs fn inside one transaction, committing on success and
// rolling back on error.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.WithField("error", rbErr).Error("Rollback failed")
		}
		return err
	}
	return tx.Commit()
}

// feedSelectColumns lists the columns scanFeed expects, in order.
// numNew/numUnRead are aggregated over live stories; the pseudo-feeds
// aggregate across starred respectively all stories.
const feedSelectColumns = `
	f.id, f.title, f.url, f.feedType, f.feedOrder, f.enabled,
	f.showPicture, f.showMedia, f.showListSummary, f.showListCaption,
	f.showDetailSummary, f.showDetailCaption, f.sortMode, f.allowHTML,
	f.fullStory, f.username, f.password, f.category,
	COALESCE(SUM(CASE WHEN s.isNew = 1 AND s.deleted = 0 THEN 1 ELSE 0 END), 0) AS numNew,
	COALESCE(SUM(CASE WHEN s.isRead = 0 AND s.deleted = 0 THEN 1 ELSE 0 END), 0) AS numUnRead`

const feedJoin = `
	FROM feeds AS f
	LEFT JOIN stories AS s
		ON (s.fid = f.id) OR (f.feedType = ? AND s.isStarred = 1) OR (f.feedType = ?)`

type rowScanner interface {
	Scan(dest ...any) error
}

// scanFeed is the single mapping point from a feed row to a typed record.
func scanFeed(row rowScanner) (*model.Feed, error) {
	var f model.Feed
	var feedType, sortMode int
	var enabled, showPic, showMedia, showListSum, showListCap, showDetSum, showDetCap, allowHTML, fullStory int
	err := row.Scan(
		&f.ID, &f.Title, &f.URL, &feedType, &f.Order, &enabled,
		&showPic, &showMedia, &showListSum, &showListCap,
		&showDetSum, &showDetCap, &sortMode, &allowHTML,
		&fullStory, &f.Username, &f.Password, &f.Category,
		&f.NumNew, &f.NumUnread,
	)
	if err != nil {
		return nil, err
	}
	f.Type = model.FeedType(feedType)
	f.SortMode = model.SortMode(sortMode)
	f.Enabled = intToBool(enabled)
	f.ShowPicture = intToBool(showPic)
	f.ShowMedia = intToBool(showMedia)
	f.ShowListSummary = intToBool(showListSum)
	f.ShowListCaption = intToBool(showListCap)
	f.ShowDetailSummary = intToBool(showDetSum)
	f.ShowDetailCaption = intToBool(showDetCap)
	f.AllowHTML = intToBool(allowHTML)
	f.FullStory = intToBool(fullStory)
	return &f, nil
}

// AddOrEditFeed inserts a feed (ID 0) at the end of the feed order, or
// updates an existing one in place. The assigned ID is written back.
func (s *Store) AddOrEditFeed(feed *model.Feed) error {
	if err := feed.Validate(); err != nil {
		return err
	}
	if feed.Title == "" {
		feed.Title = "RSS Feed"
	}

	if feed.ID == 0 {
		result, err := s.db.Exec(`
			INSERT INTO feeds (title, url, feedType, feedOrder, enabled,
				showPicture, showMedia, showListSummary, showListCaption,
				showDetailSummary, showDetailCaption, sortMode, allowHTML,
				fullStory, username, password, category)
			VALUES (?, ?, ?, (SELECT COUNT(*) FROM feeds), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			feed.Title, feed.URL, int(feed.Type), boolToInt(feed.Enabled),
			boolToInt(feed.ShowPicture), boolToInt(feed.ShowMedia),
			boolToInt(feed.ShowListSummary), boolToInt(feed.ShowListCaption),
			boolToInt(feed.ShowDetailSummary), boolToInt(feed.ShowDetailCaption),
			int(feed.SortMode), boolToInt(feed.AllowHTML), boolToInt(feed.FullStory),
			feed.Username, feed.Password, feed.Category,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feed: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}
		feed.ID = id
		return nil
	}

	_, err := s.db.Exec(`
		UPDATE feeds SET title = ?, url = ?, feedType = ?, enabled = ?,
			showPicture = ?, showMedia = ?, showListSummary = ?, showListCaption = ?,
			showDetailSummary = ?, showDetailCaption = ?, sortMode = ?, allowHTML = ?,
			fullStory = ?, username = ?, password = ?, category = ?
		WHERE id = ?`,
		feed.Title, feed.URL, int(feed.Type), boolToInt(feed.Enabled),
		boolToInt(feed.ShowPicture), boolToInt(feed.ShowMedia),
		boolToInt(feed.ShowListSummary), boolToInt(feed.ShowListCaption),
		boolToInt(feed.ShowDetailSummary), boolToInt(feed.ShowDetailCaption),
		int(feed.SortMode), boolToInt(feed.AllowHTML), boolToInt(feed.FullStory),
		feed.Username, feed.Password, feed.Category, feed.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	return nil
}

// GetFeed retrieves a feed by ID, with aggregated story counters.
func (s *Store) GetFeed(id int64) (*model.Feed, error) {
	row := s.db.QueryRow(
		"SELECT"+feedSelectColumns+feedJoin+" WHERE f.id = ? GROUP BY f.id",
		int(model.TypeStarred), int(model.TypeAllItems), id,
	)
	feed, err := scanFeed(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return feed, nil
}

// GetFeeds retrieves feeds in list order whose title matches the filter
// substring. limit <= 0 means no limit.
func (s *Store) GetFeeds(filter string, offset, limit int) ([]*model.Feed, error) {
	query := "SELECT" + feedSelectColumns + feedJoin
	args := []any{int(model.TypeStarred), int(model.TypeAllItems)}
	if filter != "" {
		query += " WHERE f.title LIKE '%' || ? || '%'"
		args = append(args, filter)
	}
	query += " GROUP BY f.id ORDER BY f.feedOrder"
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

// GetFeedCount returns the number of feeds matching the filter substring.
func (s *Store) GetFeedCount(filter string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(id) FROM feeds WHERE title LIKE '%' || ? || '%'", filter,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count feeds: %w", err)
	}
	return count, nil
}

// GetFeedIDs returns all feed IDs in list order.
func (s *Store) GetFeedIDs() ([]int64, error) {
	rows, err := s.db.Query("SELECT id FROM feeds ORDER BY feedOrder")
	if err != nil {
		return nil, fmt.Errorf("failed to query feed ids: %w", err)
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

// UpdatableFeed is the slice of feed state the update pipeline needs.
type UpdatableFeed struct {
	ID       int64
	Order    int
	URL      string
	Username string
	Password string
}

// HasCredentials reports whether HTTP basic auth applies to the fetch.
func (u *UpdatableFeed) HasCredentials() bool {
	return u.Username != "" && u.Password != ""
}

// GetUpdatableFeeds returns the enabled, successfully classified feeds
// in list order. Feeds of unknown type are excluded until the user
// re-edits them.
func (s *Store) GetUpdatableFeeds() ([]UpdatableFeed, error) {
	rows, err := s.db.Query(`
		SELECT id, feedOrder, url, username, password
		FROM feeds
		WHERE feedType > ? AND enabled = 1
		ORDER BY feedOrder`, int(model.TypeUnknown))
	if err != nil {
		return nil, fmt.Errorf("failed to query updatable feeds: %w", err)
	}
	defer rows.Close()

	var feeds []UpdatableFeed
	for rows.Next() {
		var f UpdatableFeed
		if err := rows.Scan(&f.ID, &f.Order, &f.URL, &f.Username, &f.Password); err != nil {
			return nil, err
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

// SetFeedType persists a feed's detected document format.
func (s *Store) SetFeedType(id int64, t model.FeedType) error {
	_, err := s.db.Exec("UPDATE feeds SET feedType = ? WHERE id = ?", int(t), id)
	return err
}

// SetSortMode persists a feed's sort mode.
func (s *Store) SetSortMode(id int64, mode model.SortMode) error {
	_, err := s.db.Exec("UPDATE feeds SET sortMode = ? WHERE id = ?", int(mode), id)
	return err
}

// DisableFeed marks a feed unusable after a hard fetch failure: type
// reset to unknown and updates disabled.
func (s *Store) DisableFeed(id int64) error {
	_, err := s.db.Exec("UPDATE feeds SET feedType = ?, enabled = 0 WHERE id = ?",
		int(model.TypeUnknown), id)
	return err
}

// DeleteFeed removes a feed and, via cascade, its stories and story
// urls, then re-compacts the feed order so it stays a dense 0-based
// sequence. The pseudo-feeds are protected.
func (s *Store) DeleteFeed(id int64) error {
	return s.withTx(func(tx *sql.Tx) error {
		var feedType, order int
		err := tx.QueryRow("SELECT feedType, feedOrder FROM feeds WHERE id = ?", id).
			Scan(&feedType, &order)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if model.FeedType(feedType).Virtual() {
			return ErrProtectedFeed
		}
		if _, err := tx.Exec("DELETE FROM feeds WHERE id = ?", id); err != nil {
			return err
		}
		_, err = tx.Exec("UPDATE feeds SET feedOrder = feedOrder - 1 WHERE feedOrder > ?", order)
		return err
	})
}

// ReOrderFeed moves the feed at oldOrder to newOrder, shifting the
// feeds in between so the order stays dense.
func (s *Store) ReOrderFeed(oldOrder, newOrder int) error {
	if oldOrder == newOrder {
		return nil
	}
	return s.withTx(func(tx *sql.Tx) error {
		steps := []struct {
			sql string
			arg int
		}{
			{"UPDATE feeds SET feedOrder = -1 WHERE feedOrder = ?", oldOrder},
			{"UPDATE feeds SET feedOrder = feedOrder - 1 WHERE feedOrder > ?", oldOrder},
			{"UPDATE feeds SET feedOrder = feedOrder + 1 WHERE feedOrder >= ?", newOrder},
			{"UPDATE feeds SET feedOrder = ? WHERE feedOrder = -1", newOrder},
		}
		for _, step := range steps {
			if _, err := tx.Exec(step.sql, step.arg); err != nil {
				return err
			}
		}
		return nil
	})
}

// Helper functions for boolean<->int conversion (SQLite doesn't have BOOLEAN type)
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}
