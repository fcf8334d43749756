// Package history is the watch/read journal. One row per (show,
// translation, kind); rewatching an entry moves it to the front.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/ksuid"
	_ "modernc.org/sqlite"

	"github.com/avrelia/anv/internal/domain"
)

type Entry struct {
	ID          string
	ShowID      string
	ShowTitle   string
	Label       string // episode or chapter label
	Translation domain.Translation
	IsManga     bool
	WatchedAt   time.Time
}

type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite: %w", err)
	}

	store := &Store{db: db}
	if err := store.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not migrate history database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert records a watched episode or read chapter. An existing entry
// for the same (show, translation, kind) is replaced so the journal
// stays most-recent-first with one row per series.
func (s *Store) Upsert(e Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM history WHERE show_id = ? AND translation = ? AND is_manga = ?`,
		e.ShowID, string(e.Translation), e.IsManga,
	)
	if err != nil {
		return fmt.Errorf("failed to replace history entry: %w", err)
	}

	id := e.ID
	if id == "" {
		id = ksuid.New().String()
	}
	watchedAt := e.WatchedAt
	if watchedAt.IsZero() {
		watchedAt = time.Now().UTC()
	}

	_, err = tx.Exec(
		`INSERT INTO history (id, show_id, show_title, label, translation, is_manga, watched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, e.ShowID, e.ShowTitle, e.Label, string(e.Translation), e.IsManga, watchedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}
	return tx.Commit()
}

// Entries lists the journal, most recently watched first.
func (s *Store) Entries() ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT id, show_id, show_title, label, translation, is_manga, watched_at
		 FROM history ORDER BY watched_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var translation, watchedAt string
		if err := rows.Scan(&e.ID, &e.ShowID, &e.ShowTitle, &e.Label, &translation, &e.IsManga, &watchedAt); err != nil {
			return nil, err
		}
		e.Translation = domain.Translation(translation)
		if t, err := time.Parse(time.RFC3339, watchedAt); err == nil {
			e.WatchedAt = t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LastSeen returns the most recent episode/chapter label for a series,
// used to seed the selection prompt.
func (s *Store) LastSeen(showID string, translation domain.Translation, isManga bool) (string, bool, error) {
	var label string
	err := s.db.QueryRow(
		`SELECT label FROM history
		 WHERE show_id = ? AND translation = ? AND is_manga = ?
		 ORDER BY watched_at DESC LIMIT 1`,
		showID, string(translation), isManga,
	).Scan(&label)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return label, true, nil
}
