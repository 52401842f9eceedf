package escrow

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/escrowtx"
)

// release moves HELD funds to the deliverer, splitting off the platform
// fee. Exactly-once: the HELD→RELEASED compare-and-swap admits one winner;
// every later call gets ErrAlreadyReleased.
func (s *Service) release(ctx context.Context, announcementID, actor, eventType string) error {
	now := s.now()

	err := s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		e, err := tx.GetByAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrNotFound
		}

		ok, err := tx.CASStatus(ctx, e.ID, domain.EscrowHeld, domain.EscrowReleased)
		if err != nil {
			return err
		}
		if !ok {
			if e.Status == domain.EscrowReleased {
				return apperr.ErrAlreadyReleased
			}
			return apperr.ErrConflict
		}

		delivererID := e.DelivererID
		if delivererID == "" {
			m, err := s.matches.GetAcceptedByAnnouncement(ctx, announcementID)
			if err != nil {
				return err
			}
			if m == nil {
				return fmt.Errorf("escrow %s: no accepted match to credit: %w", e.ID, apperr.ErrConflict)
			}
			delivererID = m.DelivererID
		}

		fee := e.Breakdown.PlatformFee
		if fee == 0 {
			base := e.Breakdown.ServiceAmount
			if base == 0 {
				base = e.Amount
			}
			fee = domain.Round2(base * s.cfg.PlatformFeePercent / 100)
		}
		payout := domain.Round2(e.Amount - fee)

		if err := tx.InsertLedger(ctx, []domain.LedgerEntry{
			{
				ID:        uuid.NewString(),
				Account:   delivererID,
				EscrowID:  e.ID,
				Amount:    payout,
				Currency:  e.Currency,
				EntryType: domain.LedgerCreditRelease,
				CreatedAt: now,
			},
			{
				ID:        uuid.NewString(),
				Account:   domain.PlatformAccount,
				EscrowID:  e.ID,
				Amount:    fee,
				Currency:  e.Currency,
				EntryType: domain.LedgerCreditFee,
				CreatedAt: now,
			},
		}); err != nil {
			return err
		}
		if err := tx.SetReleased(ctx, e.ID, delivererID, now); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, e.ID, domain.EscrowEvent{
			ID:         uuid.NewString(),
			EventType:  eventType,
			FromStatus: domain.EscrowHeld,
			ToStatus:   domain.EscrowReleased,
			Actor:      actor,
			At:         now,
		}); err != nil {
			return err
		}
		if err := tx.EnqueueOutbox(ctx, outbox.NewProcessorTask(outbox.KindProcessorTransfer, outbox.ProcessorTask{
			EscrowID: e.ID,
			Account:  delivererID,
			Amount:   payout,
			Currency: e.Currency,
		})); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, outbox.NewNotify(s.notifyTopic, outbox.Notification{
			UserID:    delivererID,
			EventType: "funds_released",
			Payload: map[string]any{
				"escrow_id":       e.ID,
				"announcement_id": announcementID,
				"amount":          payout,
			},
		}))
	})
	if err != nil {
		return err
	}
	if s.counters.Released != nil {
		s.counters.Released.Inc()
	}

	s.logger.Info("escrow released",
		logx.String("event", "escrow_released"),
		logx.String("announcement_id", announcementID),
		logx.String("actor", actor),
		logx.String("type", eventType),
	)
	return nil
}
