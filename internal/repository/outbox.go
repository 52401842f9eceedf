package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdship-engine/internal/outbox"
)

// execer is the common surface of a pool and a transaction.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertOutbox(ctx context.Context, db execer, ev outbox.Event) error {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := db.Exec(ctx, `
        INSERT INTO outbox_events (id, kind, topic, key, payload, attempts, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `, ev.ID, ev.Kind, ev.Topic, ev.Key, ev.Payload, ev.Attempts, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox event %q: %w", ev.ID, err)
	}
	return nil
}

// OutboxRepo represents the outbox repository used by the worker.
type OutboxRepo struct {
	db *pgxpool.Pool
}

// NewOutboxRepo creates a new OutboxRepo.
func NewOutboxRepo(db *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{db: db}
}

// Enqueue stages an event outside any business transaction.
func (r *OutboxRepo) Enqueue(ctx context.Context, ev outbox.Event) error {
	return insertOutbox(ctx, r.db, ev)
}

// ListPending returns undispatched events, oldest first. Rows are not
// reserved here; Claim decides which worker dispatches an event.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, kind, topic, key, payload, attempts, created_at
        FROM outbox_events
        WHERE dispatched_at IS NULL
        ORDER BY created_at ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending outbox events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var ev outbox.Event
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Topic, &ev.Key, &ev.Payload, &ev.Attempts, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox events: %w", err)
	}
	return out, nil
}

// Claim stamps the event before dispatch. The conditional update makes
// sure only one of several workers wins the row: a second dispatch of a
// transfer is worse than a delayed one.
func (r *OutboxRepo) Claim(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE outbox_events SET dispatched_at = $2
        WHERE id = $1 AND dispatched_at IS NULL
    `, id, at)
	if err != nil {
		return false, fmt.Errorf("claim outbox event %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkFailed bumps the attempt counter and releases the claim; the row
// becomes pending again and is retried on the next pass.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `
        UPDATE outbox_events SET attempts = attempts + 1, dispatched_at = NULL
        WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("mark outbox failed %q: %w", id, err)
	}
	return nil
}
