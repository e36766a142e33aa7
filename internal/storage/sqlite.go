package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"freegames_bot/internal/model"
	"freegames_bot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// ErrNotFound is returned when the requested row does not exist.
var ErrNotFound = errors.New("not found")

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// One long-lived connection: SQLite serializes writers anyway, and an
	// in-memory database only lives as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// GetOrCreate returns the subscriber with the given id, creating it with the
// default interests when absent.
func (s *SQLite) GetOrCreate(ctx context.Context, id int64, defaults model.SourceSet) (*model.Subscriber, error) {
	interests, err := encodeInterests(defaults)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO subscribers (chat_id, interests, muted_until, created_at) VALUES (?, ?, 0, ?)`,
		id, interests, now,
	); err != nil {
		return nil, storeErr("insert subscriber", err)
	}

	sub, err := scanSubscriber(tx.QueryRowContext(ctx,
		`SELECT chat_id, interests, muted_until, created_at FROM subscribers WHERE chat_id = ?`, id,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr("commit", err)
	}
	return sub, nil
}

// UpdateInterests replaces the interests of a subscriber, creating the row
// when absent.
func (s *SQLite) UpdateInterests(ctx context.Context, id int64, interests model.SourceSet) error {
	encoded, err := encodeInterests(interests)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscribers (chat_id, interests, muted_until, created_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET interests = excluded.interests`,
		id, encoded, time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return storeErr("update interests", err)
	}
	return nil
}

// SetMute suppresses automatic delivery until the given time. A zero time
// clears the mute. The subscriber must exist.
func (s *SQLite) SetMute(ctx context.Context, id int64, until time.Time) error {
	var ts int64
	if !until.IsZero() {
		ts = until.Unix()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE subscribers SET muted_until = ? WHERE chat_id = ?`, ts, id)
	if err != nil {
		return storeErr("update mute", err)
	}
	return requireRow(res, id)
}

// ListAll returns a snapshot of all subscribers ordered by id.
func (s *SQLite) ListAll(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, interests, muted_until, created_at FROM subscribers ORDER BY chat_id`,
	)
	if err != nil {
		return nil, storeErr("query subscribers", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate subscribers", err)
	}
	return subs, nil
}

// WasDelivered checks whether an offer key has already been delivered.
func (s *SQLite) WasDelivered(ctx context.Context, key string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivered_items WHERE key = ?`, key,
	).Scan(&count)
	if err != nil {
		return false, storeErr("check delivered", err)
	}
	return count > 0, nil
}

// MarkDelivered records that an offer key was delivered. Marking an already
// recorded key keeps the original timestamp.
func (s *SQLite) MarkDelivered(ctx context.Context, key string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO delivered_items (key, first_seen) VALUES (?, ?)`,
		key, ts.Unix(),
	)
	if err != nil {
		return storeErr("mark delivered", err)
	}
	return nil
}

// CountDelivered returns the number of recorded offer keys.
func (s *SQLite) CountDelivered(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM delivered_items`).Scan(&count); err != nil {
		return 0, storeErr("count delivered", err)
	}
	return count, nil
}

// GetDelivered returns the delivery record for key.
func (s *SQLite) GetDelivered(ctx context.Context, key string) (*model.DeliveryRecord, error) {
	var firstSeen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT first_seen FROM delivered_items WHERE key = ?`, key,
	).Scan(&firstSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delivered %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get delivered", err)
	}
	return &model.DeliveryRecord{Key: key, FirstSeen: time.Unix(firstSeen, 0).UTC()}, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("chat %d: %w", id, ErrNotFound)
	}
	return nil
}

func encodeInterests(set model.SourceSet) (string, error) {
	tags := set.Sorted()
	if tags == nil {
		tags = []model.Source{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode interests: %w", err)
	}
	return string(b), nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (*model.Subscriber, error) {
	var sub model.Subscriber
	var interests, created string
	var mutedUntil int64
	if err := row.Scan(&sub.ID, &interests, &mutedUntil, &created); err != nil {
		return nil, storeErr("scan subscriber", err)
	}

	var tags []model.Source
	if err := json.Unmarshal([]byte(interests), &tags); err != nil {
		return nil, storeErr("decode interests", err)
	}
	sub.Interests = model.NewSourceSet(tags...)
	if mutedUntil > 0 {
		sub.MutedUntil = time.Unix(mutedUntil, 0).UTC()
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sub, nil
}
