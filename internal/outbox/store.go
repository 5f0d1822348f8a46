package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/arc-self/sync-relay/internal/relayerr"
)

// DBTX is the minimal pgx executor surface, satisfied by both *pgxpool.Pool
// and pgx.Tx. InsertPending takes one explicitly so the caller's own
// transaction can carry the outbox insert atomically alongside its business
// write, exactly like qtx.InsertOutboxEvent(ctx, ...) in item_service.go.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// Store provides the dispatcher-facing read/update operations against the
// sync_outbox_event table (spec.md §6). InsertPending is a package function
// rather than a Store method because it must run against whatever executor
// the caller's transaction provides.
type Store struct {
	db DBTX
}

// NewStore wraps a pool (or transaction) for dispatcher-facing operations.
func NewStore(db DBTX) *Store {
	return &Store{db: db}
}

// classifyDBError wraps a raw pgx/pgconn error with relayerr.ErrDbFatal or
// relayerr.ErrDbTransient so callers can branch with errors.Is instead of
// string matching (spec.md §7). Integrity/data errors (SQLSTATE class 22
// "data exception" and 23 "integrity constraint violation") are fatal:
// retrying an insert that violates a check constraint will never succeed.
// Everything else — connection resets, serialization failures, resource
// exhaustion, or an error pgx didn't surface as a *pgconn.PgError at all —
// is treated as transient and safe to retry on the next poll.
func classifyDBError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23":
			return fmt.Errorf("%w: %s", relayerr.ErrDbFatal, err)
		}
	}
	return fmt.Errorf("%w: %s", relayerr.ErrDbTransient, err)
}

// InsertPending generates a fresh UUIDv7 id and inserts a PENDING row. A nil
// payload is stored as the JSON literal "{}"; nil headers are stored as SQL
// NULL (spec.md §4.2 edge cases a, b).
func InsertPending(ctx context.Context, db DBTX, subject string, payload []byte, headers map[string]string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate outbox id: %w", err)
	}

	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var headersJSON []byte
	if headers != nil {
		headersJSON, err = json.Marshal(headers)
		if err != nil {
			return "", fmt.Errorf("marshal outbox headers: %w", err)
		}
	}

	_, err = db.Exec(ctx, `
		INSERT INTO sync_outbox_event (id, subject, payload, headers, status, retry_count, created_at)
		VALUES ($1, $2, $3, $4, 'PENDING', 0, now())`,
		id.String(), subject, payload, headersJSON,
	)
	if err != nil {
		return "", fmt.Errorf("insert pending outbox event: %w", classifyDBError(err))
	}
	return id.String(), nil
}

// FindPending returns up to limit PENDING rows ordered by created_at
// ascending. Ordering is best-effort FIFO per producer; no cross-producer
// ordering guarantee is made (spec.md §4.2).
func (s *Store) FindPending(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, subject, payload, headers, status, retry_count, created_at, published_at
		FROM sync_outbox_event
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("find pending outbox events: %w", classifyDBError(err))
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev          Event
			headersJSON []byte
			status      string
		)
		if err := rows.Scan(&ev.ID, &ev.Subject, &ev.Payload, &headersJSON, &status, &ev.RetryCount, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		ev.Status = Status(status)
		if headersJSON != nil {
			if err := json.Unmarshal(headersJSON, &ev.Headers); err != nil {
				return nil, fmt.Errorf("unmarshal outbox headers for %s: %w", ev.ID, err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending outbox events: %w", classifyDBError(err))
	}
	return events, nil
}

// MarkPublished transitions a row PENDING -> PUBLISHED and stamps published_at.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sync_outbox_event SET status = 'PUBLISHED', published_at = $2
		WHERE id = $1 AND status = 'PENDING'`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox event %s published: %w", id, classifyDBError(err))
	}
	return nil
}

// MarkPending keeps status PENDING and advances retry_count after a failed
// publish attempt.
func (s *Store) MarkPending(ctx context.Context, id string, newRetryCount int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sync_outbox_event SET retry_count = $2
		WHERE id = $1 AND status = 'PENDING'`, id, newRetryCount)
	if err != nil {
		return fmt.Errorf("advance retry_count for outbox event %s: %w", id, classifyDBError(err))
	}
	return nil
}

// MarkFailed transitions a row PENDING -> FAILED. Reserved for
// non-recoverable errors or when max_retries is exceeded.
func (s *Store) MarkFailed(ctx context.Context, id string, finalRetryCount int) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sync_outbox_event SET status = 'FAILED', retry_count = $2
		WHERE id = $1 AND status = 'PENDING'`, id, finalRetryCount)
	if err != nil {
		return fmt.Errorf("mark outbox event %s failed: %w", id, classifyDBError(err))
	}
	return nil
}
