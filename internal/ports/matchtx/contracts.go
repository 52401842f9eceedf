// Package matchtx defines the transaction contract shared by the match
// repository and the matching engine. Every acceptance runs inside one
// transaction holding the announcement row lock.
package matchtx

import (
	"context"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/outbox"
)

// Repository abstracts the operations available inside a match transaction.
type Repository interface {
	// GetMatchForUpdate loads a match and locks its row. Returns nil
	// when the match does not exist.
	GetMatchForUpdate(ctx context.Context, matchID string) (*domain.Match, error)

	// LockAnnouncement locks the announcement row, serializing
	// concurrent acceptances per announcement. Returns nil when the
	// announcement does not exist.
	LockAnnouncement(ctx context.Context, announcementID string) (*domain.Announcement, error)

	// UpdateMatchStatus conditionally moves a match from one status to
	// another. Reports false when the row was not in the from status.
	UpdateMatchStatus(ctx context.Context, matchID string, from, to domain.MatchStatus) (bool, error)

	// InvalidateSiblings invalidates every other live match of the
	// announcement and returns the number of rows touched.
	InvalidateSiblings(ctx context.Context, announcementID, keepMatchID string) (int64, error)

	// UpdateAnnouncementStatus conditionally moves the announcement to
	// target when its current status is one of from.
	UpdateAnnouncementStatus(ctx context.Context, announcementID string, from []domain.AnnouncementStatus, to domain.AnnouncementStatus) (bool, error)

	// EnqueueOutbox stages a post-commit effect in the same transaction.
	EnqueueOutbox(ctx context.Context, ev outbox.Event) error
}
