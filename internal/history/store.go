package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/stefannilsson/arduino-iot-js/internal/cloud"
)

const (
	defaultQueryLimit = 50
	maxQueryLimit     = 1000
)

// Logger is the logging surface the store needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Store persists property values in the property_history table.
//
// Store is safe for concurrent use; serialisation is left to database/sql
// and SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a store on an open, migrated SQLite connection.
//
// Parameters:
//   - db: Open SQLite connection with the property_history table
//
// Returns:
//   - *Store: Store ready for use
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// Record stores one property value for thingID.
//
// rec.Time is taken as Unix milliseconds; a zero time stores the current
// time instead.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - thingID: Thing the property belongs to
//   - rec: Decoded record from a property topic
//
// Returns:
//   - error: ErrInvalidEntry, ErrUnsupportedValue, or the database error
func (s *Store) Record(ctx context.Context, thingID string, rec cloud.Record) error {
	if thingID == "" || rec.Name == "" {
		return ErrInvalidEntry
	}

	kind, text, err := encodeValue(rec.Value)
	if err != nil {
		return err
	}

	recordedAt := rec.Time
	if recordedAt == 0 {
		recordedAt = s.now().UnixMilli()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO property_history (thing_id, name, kind, value, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		thingID, rec.Name, string(kind), text, recordedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting property history: %w", err)
	}
	return nil
}

// Handler returns a cloud.Handler that records every named value arriving
// on a property topic. The thing id comes from the record's topic. Records
// that cannot be stored are logged and skipped.
func (s *Store) Handler(ctx context.Context, logger Logger) cloud.Handler {
	return func(rec cloud.Record) {
		thingID, ok := cloud.Topics{}.ThingID(rec.Topic)
		if !ok {
			logger.Debug("history: ignoring non-property topic", "topic", rec.Topic)
			return
		}
		if err := s.Record(ctx, thingID, rec); err != nil {
			logger.Warn("history: record skipped",
				"thing_id", thingID,
				"name", rec.Name,
				"error", err,
			)
		}
	}
}

// Get returns the entries matching q, newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - q: Thing, optional property name, optional lower time bound, limit
//
// Returns:
//   - []Entry: Matching entries ordered by recorded_at DESC (may be empty)
//   - error: ErrInvalidEntry without a thing id, or the query error
func (s *Store) Get(ctx context.Context, q Query) ([]Entry, error) {
	if q.ThingID == "" {
		return nil, ErrInvalidEntry
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	limit = min(limit, maxQueryLimit)

	var (
		where = []string{"thing_id = ?"}
		args  = []any{q.ThingID}
	)
	if q.Name != "" {
		where = append(where, "name = ?")
		args = append(args, q.Name)
	}
	if !q.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thing_id, name, kind, value, recorded_at
		 FROM property_history
		 WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY recorded_at DESC, id DESC
		 LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying property history: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, min(limit, defaultQueryLimit))
	for rows.Next() {
		var (
			entry      Entry
			kind, text string
			recordedAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.ThingID, &entry.Name, &kind, &text, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning property history: %w", err)
		}
		if entry.Value, err = decodeValue(Kind(kind), text); err != nil {
			return nil, err
		}
		entry.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating property history: %w", err)
	}
	return entries, nil
}

// Latest returns the most recent value of every property of thingID,
// ordered by property name.
func (s *Store) Latest(ctx context.Context, thingID string) ([]Entry, error) {
	if thingID == "" {
		return nil, ErrInvalidEntry
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT h.id, h.thing_id, h.name, h.kind, h.value, h.recorded_at
		 FROM property_history h
		 WHERE h.thing_id = ?
		   AND h.id = (
		       SELECT id FROM property_history
		       WHERE thing_id = h.thing_id AND name = h.name
		       ORDER BY recorded_at DESC, id DESC
		       LIMIT 1)
		 ORDER BY h.name`,
		thingID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying latest properties: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry      Entry
			kind, text string
			recordedAt int64
		)
		if err := rows.Scan(&entry.ID, &entry.ThingID, &entry.Name, &kind, &text, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning latest properties: %w", err)
		}
		if entry.Value, err = decodeValue(Kind(kind), text); err != nil {
			return nil, err
		}
		entry.RecordedAt = time.UnixMilli(recordedAt).UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating latest properties: %w", err)
	}
	return entries, nil
}

// Prune deletes entries recorded more than olderThan ago.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - olderThan: Retention window; must be positive
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the database error
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("history: retention must be positive, got %v", olderThan)
	}

	cutoff := s.now().Add(-olderThan).UnixMilli()
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM property_history WHERE recorded_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting property history: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return deleted, nil
}
