// Package escrowtx defines the transaction contract shared by the escrow
// repository and the escrow engine. Fund movement is guarded by
// conditional status updates inside these transactions.
package escrowtx

import (
	"context"
	"time"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/outbox"
)

// Repository abstracts the operations available inside an escrow transaction.
type Repository interface {
	// GetByAnnouncementForUpdate loads the announcement's escrow
	// transaction and locks its row. Returns nil when none exists.
	GetByAnnouncementForUpdate(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error)

	// Insert creates a new escrow transaction row.
	Insert(ctx context.Context, e *domain.EscrowTransaction) error

	// CASStatus conditionally moves the transaction from one status to
	// another. Reports false when the row was not in the from status.
	CASStatus(ctx context.Context, escrowID string, from, to domain.EscrowStatus) (bool, error)

	// SetCaptured records the capture timestamp, hold deadline and
	// processor reference on a freshly held transaction.
	SetCaptured(ctx context.Context, escrowID string, capturedAt, heldUntil time.Time, processorRef string) error

	// SetReleased stamps the release and the credited deliverer.
	SetReleased(ctx context.Context, escrowID, delivererID string, at time.Time) error

	// SetRefunded stamps the refund.
	SetRefunded(ctx context.Context, escrowID string, at time.Time) error

	// SetDisputeRaised flags a client-raised dispute.
	SetDisputeRaised(ctx context.Context, escrowID string) error

	// AppendEvent appends one entry to the transaction's audit log.
	AppendEvent(ctx context.Context, escrowID string, ev domain.EscrowEvent) error

	// InsertLedger writes wallet ledger entries.
	InsertLedger(ctx context.Context, entries []domain.LedgerEntry) error

	// EnqueueOutbox stages a post-commit effect in the same transaction.
	EnqueueOutbox(ctx context.Context, ev outbox.Event) error
}
