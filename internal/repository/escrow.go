package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/escrowtx"
)

const escrowColumns = `
	id, announcement_id, client_id, deliverer_id,
	amount, currency, breakdown,
	status, processor_ref, held_until,
	validation_code, code_attempts, dispute_raised,
	metadata, created_at, updated_at, captured_at, released_at, refunded_at`

// EscrowRepo represents the escrow transaction repository.
type EscrowRepo struct {
	db *pgxpool.Pool
}

// NewEscrowRepo creates a new EscrowRepo.
func NewEscrowRepo(db *pgxpool.Pool) *EscrowRepo {
	return &EscrowRepo{db: db}
}

// WithTx opens a transaction and executes fn within it.
func (r *EscrowRepo) WithTx(ctx context.Context, fn func(tx escrowtx.Repository) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	// откатываем в случае паники
	defer func() {
		if p := recover(); p != nil {
			err = tx.Rollback(ctx)
			if err != nil {
				panic(err)
			}
			panic(p)
		}
	}()

	wrapped := &EscrowTxRepo{tx: tx}

	if err := fn(wrapped); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback tx: %w (original error: %s)", rbErr, err.Error())
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanEscrow(row pgx.Row) (*domain.EscrowTransaction, error) {
	var e domain.EscrowTransaction
	err := row.Scan(
		&e.ID, &e.AnnouncementID, &e.ClientID, &e.DelivererID,
		&e.Amount, &e.Currency, &e.Breakdown,
		&e.Status, &e.ProcessorRef, &e.HeldUntil,
		&e.ValidationCode, &e.CodeAttempts, &e.DisputeRaised,
		&e.Metadata, &e.CreatedAt, &e.UpdatedAt, &e.CapturedAt, &e.ReleasedAt, &e.RefundedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Get loads an escrow transaction by id, events included. Returns nil when
// it does not exist.
func (r *EscrowRepo) Get(ctx context.Context, id string) (*domain.EscrowTransaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+escrowColumns+` FROM escrow_transactions WHERE id = $1`, id)
	e, err := scanEscrow(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get escrow %q: %w", id, err)
	}
	if e.Events, err = r.listEvents(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

// GetByAnnouncement loads the announcement's escrow transaction, events
// included. Returns nil when none exists.
func (r *EscrowRepo) GetByAnnouncement(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error) {
	row := r.db.QueryRow(ctx, `
        SELECT `+escrowColumns+` FROM escrow_transactions WHERE announcement_id = $1
    `, announcementID)
	e, err := scanEscrow(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get escrow for announcement %q: %w", announcementID, err)
	}
	if e.Events, err = r.listEvents(ctx, e.ID); err != nil {
		return nil, err
	}
	return e, nil
}

func (r *EscrowRepo) listEvents(ctx context.Context, escrowID string) ([]domain.EscrowEvent, error) {
	rows, err := r.db.Query(ctx, `
        SELECT id, event_type, from_status, to_status, actor, at, reason
        FROM escrow_events
        WHERE escrow_id = $1
        ORDER BY at ASC, id ASC
    `, escrowID)
	if err != nil {
		return nil, fmt.Errorf("list escrow events %q: %w", escrowID, err)
	}
	defer rows.Close()

	var out []domain.EscrowEvent
	for rows.Next() {
		var ev domain.EscrowEvent
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.FromStatus, &ev.ToStatus, &ev.Actor, &ev.At, &ev.Reason); err != nil {
			return nil, fmt.Errorf("scan escrow event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate escrow events: %w", err)
	}
	return out, nil
}

// ListAutoResolveDue returns HELD transactions ripe for automatic
// resolution: captured long enough ago, past their hold deadline, or
// carrying a raised dispute.
func (r *EscrowRepo) ListAutoResolveDue(ctx context.Context, capturedBefore, heldBefore time.Time, limit int) ([]domain.EscrowTransaction, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+escrowColumns+`
        FROM escrow_transactions
        WHERE status = $1
          AND (dispute_raised OR captured_at <= $2 OR held_until <= $3)
        ORDER BY captured_at ASC
        LIMIT $4
    `, string(domain.EscrowHeld), capturedBefore, heldBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list auto-resolve due: %w", err)
	}
	defer rows.Close()

	var out []domain.EscrowTransaction
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due escrow: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due escrows: %w", err)
	}
	return out, nil
}

// EscrowTxRepo represents the transactional escrow repository.
type EscrowTxRepo struct {
	tx pgx.Tx
}

// GetByAnnouncementForUpdate loads and locks the announcement's escrow row.
func (r *EscrowTxRepo) GetByAnnouncementForUpdate(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error) {
	row := r.tx.QueryRow(ctx, `
        SELECT `+escrowColumns+`
        FROM escrow_transactions
        WHERE announcement_id = $1
        FOR UPDATE
    `, announcementID)
	e, err := scanEscrow(row)
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lock escrow for announcement %q: %w", announcementID, err)
	}
	return e, nil
}

// Insert creates a new escrow transaction row.
func (r *EscrowTxRepo) Insert(ctx context.Context, e *domain.EscrowTransaction) error {
	_, err := r.tx.Exec(ctx, `
        INSERT INTO escrow_transactions (`+escrowColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
    `,
		e.ID, e.AnnouncementID, e.ClientID, e.DelivererID,
		e.Amount, e.Currency, e.Breakdown,
		string(e.Status), e.ProcessorRef, e.HeldUntil,
		e.ValidationCode, e.CodeAttempts, e.DisputeRaised,
		e.Metadata, e.CreatedAt, e.UpdatedAt, e.CapturedAt, e.ReleasedAt, e.RefundedAt,
	)
	if err != nil {
		return fmt.Errorf("insert escrow %q: %w", e.ID, err)
	}
	return nil
}

// CASStatus conditionally moves the transaction from one status to another.
func (r *EscrowTxRepo) CASStatus(ctx context.Context, escrowID string, from, to domain.EscrowStatus) (bool, error) {
	ct, err := r.tx.Exec(ctx, `
        UPDATE escrow_transactions
        SET status = $3, updated_at = now()
        WHERE id = $1 AND status = $2
    `, escrowID, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update escrow status %q: %w", escrowID, err)
	}
	return ct.RowsAffected() == 1, nil
}

// SetCaptured records the capture timestamp, hold deadline and processor
// reference.
func (r *EscrowTxRepo) SetCaptured(ctx context.Context, escrowID string, capturedAt, heldUntil time.Time, processorRef string) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE escrow_transactions
        SET captured_at = $2, held_until = $3, processor_ref = $4, updated_at = now()
        WHERE id = $1
    `, escrowID, capturedAt, heldUntil, processorRef)
	if err != nil {
		return fmt.Errorf("set escrow captured %q: %w", escrowID, err)
	}
	return nil
}

// SetReleased stamps the release and the credited deliverer.
func (r *EscrowTxRepo) SetReleased(ctx context.Context, escrowID, delivererID string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE escrow_transactions
        SET released_at = $2, deliverer_id = $3, updated_at = now()
        WHERE id = $1
    `, escrowID, at, delivererID)
	if err != nil {
		return fmt.Errorf("set escrow released %q: %w", escrowID, err)
	}
	return nil
}

// SetRefunded stamps the refund.
func (r *EscrowTxRepo) SetRefunded(ctx context.Context, escrowID string, at time.Time) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE escrow_transactions
        SET refunded_at = $2, updated_at = now()
        WHERE id = $1
    `, escrowID, at)
	if err != nil {
		return fmt.Errorf("set escrow refunded %q: %w", escrowID, err)
	}
	return nil
}

// SetDisputeRaised flags a client-raised dispute.
func (r *EscrowTxRepo) SetDisputeRaised(ctx context.Context, escrowID string) error {
	_, err := r.tx.Exec(ctx, `
        UPDATE escrow_transactions
        SET dispute_raised = true, updated_at = now()
        WHERE id = $1
    `, escrowID)
	if err != nil {
		return fmt.Errorf("set escrow dispute raised %q: %w", escrowID, err)
	}
	return nil
}

// AppendEvent appends one entry to the transaction's audit log. Code
// mismatches also bump the attempt counter.
func (r *EscrowTxRepo) AppendEvent(ctx context.Context, escrowID string, ev domain.EscrowEvent) error {
	_, err := r.tx.Exec(ctx, `
        INSERT INTO escrow_events (id, escrow_id, event_type, from_status, to_status, actor, at, reason)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
    `, ev.ID, escrowID, ev.EventType, string(ev.FromStatus), string(ev.ToStatus), ev.Actor, ev.At, ev.Reason)
	if err != nil {
		return fmt.Errorf("append escrow event %q: %w", escrowID, err)
	}
	if ev.EventType == domain.EventCodeMismatch {
		if _, err := r.tx.Exec(ctx, `
            UPDATE escrow_transactions SET code_attempts = code_attempts + 1, updated_at = now() WHERE id = $1
        `, escrowID); err != nil {
			return fmt.Errorf("bump code attempts %q: %w", escrowID, err)
		}
	}
	return nil
}

// InsertLedger writes wallet ledger entries.
func (r *EscrowTxRepo) InsertLedger(ctx context.Context, entries []domain.LedgerEntry) error {
	for _, le := range entries {
		if _, err := r.tx.Exec(ctx, `
            INSERT INTO ledger_entries (id, account, escrow_id, amount, currency, entry_type, created_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7)
        `, le.ID, le.Account, le.EscrowID, le.Amount, le.Currency, le.EntryType, le.CreatedAt); err != nil {
			return fmt.Errorf("insert ledger entry %q: %w", le.ID, err)
		}
	}
	return nil
}

// EnqueueOutbox stages a post-commit effect in the same transaction.
func (r *EscrowTxRepo) EnqueueOutbox(ctx context.Context, ev outbox.Event) error {
	return insertOutbox(ctx, r.tx, ev)
}
