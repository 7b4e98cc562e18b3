package timers

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Register the pure-Go sqlite driver.
	_ "modernc.org/sqlite"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// SQLiteRepository persists timers in a local sqlite database so the hub can
// re-arm them after a restart.
type SQLiteRepository struct {
	// db is the underlying database handle.
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// sqlite tolerates a single writer; serialize at the pool level.
	db.SetMaxOpenConns(1)

	if err = Migrate(db); err != nil {
		_ = db.Close()

		return nil, err
	}

	return &SQLiteRepository{db: db}, nil
}

// NewSQLiteRepository wraps an existing migrated database handle.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Close releases the database handle.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// LoadAll returns every persisted timer in creation order.
func (r *SQLiteRepository) LoadAll(ctx context.Context) ([]*timer.Timer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, device_id, class, name, spoken_sentence,
		       created_at, expires_at, original_expires_at,
		       pre_expire_warning_ns, from_duration, status, snooze_count
		FROM timers
		ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query timers: %w", err)
	}
	defer rows.Close()

	var result []*timer.Timer

	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			return nil, err
		}

		result = append(result, t)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timers: %w", err)
	}

	return result, nil
}

// Save inserts or replaces a timer row.
func (r *SQLiteRepository) Save(ctx context.Context, t *timer.Timer) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timers (
			id, device_id, class, name, spoken_sentence,
			created_at, expires_at, original_expires_at,
			pre_expire_warning_ns, from_duration, status, snooze_count
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			expires_at = excluded.expires_at,
			status = excluded.status,
			snooze_count = excluded.snooze_count`,
		t.ID, t.DeviceID, string(t.Class), t.Name, t.SpokenSentence,
		encodeInstant(t.CreatedAt), encodeInstant(t.ExpiresAt), encodeInstant(t.OriginalExpiresAt),
		int64(t.PreExpireWarning), boolToInt(t.FromDuration), string(t.Status), t.SnoozeCount)
	if err != nil {
		return fmt.Errorf("save timer %s: %w", t.ID, err)
	}

	return nil
}

// Delete removes a timer row. Missing rows are ignored.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM timers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete timer %s: %w", id, err)
	}

	return nil
}

// PurgeTerminal deletes expired and canceled timers whose expiry instant is
// older than the cutoff.
func (r *SQLiteRepository) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM timers
		WHERE status IN (?, ?) AND expires_at < ?`,
		string(timer.StatusExpired), string(timer.StatusCanceled), encodeInstant(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge terminal timers: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge terminal timers: rows affected: %w", err)
	}

	return removed, nil
}

// scanTimer decodes one row into a domain timer.
func scanTimer(rows *sql.Rows) (*timer.Timer, error) {
	var (
		t                                       timer.Timer
		class, status                           string
		createdAt, expiresAt, originalExpiresAt string
		warningNS                               int64
		fromDuration                            int
	)

	err := rows.Scan(&t.ID, &t.DeviceID, &class, &t.Name, &t.SpokenSentence,
		&createdAt, &expiresAt, &originalExpiresAt,
		&warningNS, &fromDuration, &status, &t.SnoozeCount)
	if err != nil {
		return nil, fmt.Errorf("scan timer: %w", err)
	}

	t.Class = timer.Class(class)
	t.Status = timer.Status(status)
	t.PreExpireWarning = time.Duration(warningNS)
	t.FromDuration = fromDuration != 0

	if t.CreatedAt, err = decodeInstant(createdAt); err != nil {
		return nil, fmt.Errorf("timer %s: created_at: %w", t.ID, err)
	}

	if t.ExpiresAt, err = decodeInstant(expiresAt); err != nil {
		return nil, fmt.Errorf("timer %s: expires_at: %w", t.ID, err)
	}

	if t.OriginalExpiresAt, err = decodeInstant(originalExpiresAt); err != nil {
		return nil, fmt.Errorf("timer %s: original_expires_at: %w", t.ID, err)
	}

	return &t, nil
}

// encodeInstant stores instants as RFC3339Nano TEXT, normalized to UTC.
func encodeInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// decodeInstant parses an RFC3339Nano TEXT column.
func decodeInstant(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// boolToInt encodes a bool into the INTEGER column convention.
func boolToInt(b bool) int {
	if b {
		return 1
	}

	return 0
}
