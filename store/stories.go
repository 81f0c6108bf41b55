package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/okrent/feedspool/model"
)

// newWindow is how long after publication a story still counts as new.
const newWindow = 24 * time.Hour

// BeginStoryUpdate opens an update cycle for one feed. Stories that are
// read or have aged out of the new window lose their new marker, and
// every unstarred story that is read or older than the keep window is
// flagged as a removal candidate. Candidates get unflagged again by
// AddOrEditStory when the fetched document still carries them.
// The feed's list order is returned for progress reporting.
func (s *Store) BeginStoryUpdate(feedID int64, keep time.Duration) (int, error) {
	now := time.Now()
	newThreshold := now.Add(-newWindow).Unix()
	keepThreshold := now.Add(-keep).Unix()

	var order int
	err := s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			UPDATE stories SET isNew = 0
			WHERE (isRead = 1 OR pubdate < ?) AND fid = ?`,
			newThreshold, feedID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`
			UPDATE stories SET flag = 1
			WHERE isStarred = 0 AND (isRead = 1 OR pubdate < ?) AND fid = ?`,
			keepThreshold, feedID)
		if err != nil {
			return err
		}
		err = tx.QueryRow("SELECT feedOrder FROM feeds WHERE id = ?", feedID).Scan(&order)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to begin story update: %w", err)
	}
	return order, nil
}

// EndStoryUpdate closes an update cycle. On success the remaining
// removal candidates are deleted; on failure every flag is cleared so
// a dead feed keeps its stories indefinitely. Starred stories are never
// deleted either way.
func (s *Store) EndStoryUpdate(feedID int64, success bool) (int, error) {
	var order int
	err := s.withTx(func(tx *sql.Tx) error {
		var err error
		if success {
			_, err = tx.Exec(
				"DELETE FROM stories WHERE flag = 1 AND isStarred = 0 AND fid = ?", feedID)
		} else {
			_, err = tx.Exec("UPDATE stories SET flag = 0 WHERE fid = ?", feedID)
		}
		if err != nil {
			return err
		}
		err = tx.QueryRow("SELECT feedOrder FROM feeds WHERE id = ?", feedID).Scan(&order)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to end story update: %w", err)
	}
	return order, nil
}

// AddOrEditStory reconciles one parsed draft into a feed. An existing
// story (matched by uuid) keeps its read/new/starred state, gets its
// content refreshed, its removal flag cleared and its links replaced.
// A story seen for the first time starts unread, and counts as new only
// when published inside the new window.
func (s *Store) AddOrEditStory(feedID int64, draft *model.StoryDraft) error {
	err := s.withTx(func(tx *sql.Tx) error {
		var sid int64
		err := tx.QueryRow(
			"SELECT id FROM stories WHERE fid = ? AND uuid = ?", feedID, draft.UUID,
		).Scan(&sid)

		switch {
		case err == sql.ErrNoRows:
			isNew := 0
			if draft.PubDate >= time.Now().Add(-newWindow).Unix() {
				isNew = 1
			}
			result, err := tx.Exec(`
				INSERT INTO stories (fid, uuid, title, summary, picture, audio, video,
					pubdate, isRead, isNew, isStarred, flag, deleted)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, 0, 0, 0)`,
				feedID, draft.UUID, draft.Title, draft.Summary,
				draft.Picture, draft.Audio, draft.Video, draft.PubDate, isNew)
			if err != nil {
				return err
			}
			sid, err = result.LastInsertId()
			if err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			_, err = tx.Exec(`
				UPDATE stories SET title = ?, summary = ?, picture = ?, audio = ?,
					video = ?, pubdate = ?, flag = 0
				WHERE id = ?`,
				draft.Title, draft.Summary, draft.Picture, draft.Audio,
				draft.Video, draft.PubDate, sid)
			if err != nil {
				return err
			}
			if _, err = tx.Exec("DELETE FROM storyurls WHERE sid = ?", sid); err != nil {
				return err
			}
		}

		for _, u := range draft.URLs {
			_, err = tx.Exec(
				"INSERT INTO storyurls (sid, title, href) VALUES (?, ?, ?)",
				sid, u.Title, u.HRef)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add or edit story: %w", err)
	}
	return nil
}

// MarkStoryRead sets a story's read state. Marking read also clears the
// new marker; marking unread leaves it cleared.
func (s *Store) MarkStoryRead(id int64, read bool) error {
	_, err := s.db.Exec(
		"UPDATE stories SET isRead = ?, isNew = 0 WHERE id = ?", boolToInt(read), id)
	if err != nil {
		return fmt.Errorf("failed to mark story: %w", err)
	}
	return nil
}

// MarkAllRead sets the read state of every story the given feed shows.
// The pseudo-feeds route to their aggregate story sets.
func (s *Store) MarkAllRead(feed *model.Feed, read bool) error {
	query := "UPDATE stories SET isRead = ?, isNew = 0"
	args := []any{boolToInt(read)}
	switch feed.Type {
	case model.TypeAllItems:
	case model.TypeStarred:
		query += " WHERE isStarred = 1"
	default:
		query += " WHERE fid = ?"
		args = append(args, feed.ID)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to mark all read: %w", err)
	}
	return nil
}

// MarkStarred sets a story's starred state.
func (s *Store) MarkStarred(id int64, starred bool) error {
	_, err := s.db.Exec(
		"UPDATE stories SET isStarred = ? WHERE id = ?", boolToInt(starred), id)
	if err != nil {
		return fmt.Errorf("failed to mark starred: %w", err)
	}
	return nil
}

// MarkAllUnStarred clears the star on every story the given feed shows.
func (s *Store) MarkAllUnStarred(feed *model.Feed) error {
	query := "UPDATE stories SET isStarred = 0"
	var args []any
	if !feed.Type.Virtual() {
		query += " WHERE fid = ?"
		args = append(args, feed.ID)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to unstar stories: %w", err)
	}
	return nil
}

// DeleteStory hides a story from every list. The row stays behind so
// the next update cycle does not resurrect the story, and ages out
// through the regular retention sweep.
func (s *Store) DeleteStory(id int64) error {
	_, err := s.db.Exec("UPDATE stories SET deleted = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete story: %w", err)
	}
	return nil
}

// GetNewStoryCount returns how many live stories carry the new marker.
func (s *Store) GetNewStoryCount() (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(id) FROM stories WHERE isNew = 1 AND deleted = 0").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count new stories: %w", err)
	}
	return count, nil
}
