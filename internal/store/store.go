// Package store persists Telegram recipients and the confirmed-transition log in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/sweeney/logo-monitor/internal/logic"
)

const schema = `
CREATE TABLE IF NOT EXISTS recipients (
	chat_id   INTEGER PRIMARY KEY,
	added_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS transitions (
	id           TEXT PRIMARY KEY,
	event        TEXT NOT NULL,
	occurred_at  TEXT NOT NULL,
	healthy      INTEGER NOT NULL,
	status       TEXT NOT NULL,
	power        REAL NOT NULL,
	last_ok      TEXT NOT NULL,
	last_fault   TEXT NOT NULL,
	recorded_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS transitions_occurred_at ON transitions (occurred_at);
`

// Transition is one persisted confirmed transition.
type Transition struct {
	ID         string
	Event      logic.EventType
	OccurredAt time.Time
	State      logic.ConfirmedState
	RecordedAt time.Time
}

// Store manages recipients and transitions in SQLite.
// Safe for concurrent use; database/sql serializes access.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// AddRecipient subscribes a chat. It reports whether the chat was new.
func (s *Store) AddRecipient(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO recipients (chat_id, added_at) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO NOTHING`,
		chatID, formatTime(s.now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert recipient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n == 1, nil
}

// RemoveRecipient unsubscribes a chat. Removing an unknown chat is not an error.
func (s *Store) RemoveRecipient(ctx context.Context, chatID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recipients WHERE chat_id = ?`, chatID); err != nil {
		return fmt.Errorf("delete recipient: %w", err)
	}
	return nil
}

// Recipients returns all subscribed chats in subscription order.
func (s *Store) Recipients(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM recipients ORDER BY added_at, chat_id`)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImportRecipientsJSON subscribes every chat ID listed in a JSON array file.
// A missing file is not an error. It returns the number of new recipients.
func (s *Store) ImportRecipientsJSON(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read chat ids: %w", err)
	}

	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return 0, fmt.Errorf("parse chat ids %s: %w", path, err)
	}

	added := 0
	for _, id := range ids {
		isNew, err := s.AddRecipient(ctx, id)
		if err != nil {
			return added, err
		}
		if isNew {
			added++
		}
	}
	return added, nil
}

// RecordTransition appends a confirmed transition and returns its ID.
func (s *Store) RecordTransition(ctx context.Context, ev logic.Event) (string, error) {
	id := uuid.New().String()
	st := ev.State
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO transitions (id, event, occurred_at, healthy, status, power, last_ok, last_fault, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		string(ev.Type),
		formatTime(ev.Timestamp()),
		st.Healthy,
		string(st.Status),
		st.Power,
		formatTime(st.LastHealthyAt),
		formatTime(st.LastFaultAt),
		formatTime(s.now()),
	)
	if err != nil {
		return "", fmt.Errorf("insert transition: %w", err)
	}
	return id, nil
}

// RecentTransitions returns up to limit transitions, newest first.
func (s *Store) RecentTransitions(ctx context.Context, limit int) ([]Transition, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, occurred_at, healthy, status, power, last_ok, last_fault, recorded_at
		 FROM transitions ORDER BY occurred_at DESC, recorded_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr                                    Transition
			event, status                         string
			occurred, lastOK, lastFault, recorded string
		)
		if err := rows.Scan(&tr.ID, &event, &occurred, &tr.State.Healthy, &status, &tr.State.Power, &lastOK, &lastFault, &recorded); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Event = logic.EventType(event)
		tr.State.Status = logic.StatusLabel(status)
		tr.State.ConfirmedHealthy = tr.Event == logic.EventRecoveryConfirmed
		if tr.OccurredAt, err = parseTime(occurred); err != nil {
			return nil, err
		}
		if tr.State.LastHealthyAt, err = parseTime(lastOK); err != nil {
			return nil, err
		}
		if tr.State.LastFaultAt, err = parseTime(lastFault); err != nil {
			return nil, err
		}
		if tr.RecordedAt, err = parseTime(recorded); err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// Fixed-width UTC so lexical order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
