package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"sentrybot/internal/auditlog"
)

const defaultWriteTimeout = 5 * time.Second

// Store persists audit records in the append-only logs table. Each Append runs in its
// own transaction.
type Store struct {
	db      *sql.DB
	timeout time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithWriteTimeout bounds a write transaction when the caller's context has no deadline.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		s.timeout = timeout
	}
}

// New creates a PostgreSQL audit record store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: defaultWriteTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Append inserts the record and returns the id assigned by the database.
func (s *Store) Append(ctx context.Context, record auditlog.Record) (int64, error) {
	details, err := encodeDetails(record.Details)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.runInTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var insertErr error
		id, insertErr = insertRecord(ctx, tx, record, details)
		return insertErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// runInTx opens a transaction, runs fn and commits. The transaction is rolled back on
// every other exit path.
func (s *Store) runInTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("transaction aborted: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit transaction: %w", err)
	}
	return nil
}

func insertRecord(ctx context.Context, q queryer, record auditlog.Record, details sql.NullString) (int64, error) {
	query := `
		INSERT INTO logs (timestamp, event_type, author_id, author_name, description, guild_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	ts := record.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	var id int64
	err := q.QueryRowContext(ctx, query,
		ts.UTC(),
		string(record.EventType),
		orDefault(record.ActorID, auditlog.SystemActorID),
		orDefault(record.ActorName, auditlog.SystemActorName),
		record.Description,
		orDefault(record.CommunityID, auditlog.UnknownCommunity),
		details,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert audit record: %w", err)
	}
	return id, nil
}

// encodeDetails renders details as a JSON document. lib/pq sends []byte as bytea, so
// the document travels as text.
func encodeDetails(d auditlog.Details) (sql.NullString, error) {
	if len(d) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal audit details: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// ListRecent returns the newest records first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]auditlog.Record, error) {
	query := `
		SELECT id, timestamp, event_type, author_id, author_name, description, guild_id, details
		FROM logs
		ORDER BY id DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByCommunity returns the newest records of one community first.
func (s *Store) ListByCommunity(ctx context.Context, communityID string, limit int) ([]auditlog.Record, error) {
	query := `
		SELECT id, timestamp, event_type, author_id, author_name, description, guild_id, details
		FROM logs
		WHERE guild_id = $1
		ORDER BY id DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, communityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// CountByType returns the number of stored records per event type.
func (s *Store) CountByType(ctx context.Context) (map[auditlog.EventType]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT event_type, COUNT(*) FROM logs GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("count audit records: %w", err)
	}
	defer rows.Close()

	counts := make(map[auditlog.EventType]int64)
	for rows.Next() {
		var (
			eventType string
			n         int64
		)
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan audit record count: %w", err)
		}
		counts[auditlog.EventType(eventType)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit record counts: %w", err)
	}
	return counts, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("ping audit database: %w", err)
	}
	return nil
}

func scanRecords(rows *sql.Rows) ([]auditlog.Record, error) {
	var records []auditlog.Record
	for rows.Next() {
		var (
			record    auditlog.Record
			eventType string
			details   []byte
		)
		err := rows.Scan(
			&record.ID,
			&record.Timestamp,
			&eventType,
			&record.ActorID,
			&record.ActorName,
			&record.Description,
			&record.CommunityID,
			&details,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		record.EventType = auditlog.EventType(eventType)
		record.Timestamp = record.Timestamp.UTC()
		if len(details) > 0 {
			if err := json.Unmarshal(details, &record.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit records: %w", err)
	}
	return records, nil
}
