package escrow

import (
	"context"

	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/logx"
)

// OnAnnouncementMatched is the ACTIVE→MATCHED lifecycle hook: reaching
// MATCHED is the one path that requests a fund hold.
func (s *Service) OnAnnouncementMatched(ctx context.Context, a *domain.Announcement, _ string) error {
	amount := a.FinalPrice
	if amount <= 0 {
		amount = a.SuggestedPrice
	}
	if amount <= 0 {
		s.logger.Warn("skipping hold for unpriced announcement",
			logx.String("announcement_id", a.ID),
		)
		return nil
	}

	fee := domain.Round2(amount * s.cfg.PlatformFeePercent / 100)
	breakdown := domain.Breakdown{
		DeliveryFee: domain.Round2(amount - fee),
		PlatformFee: fee,
	}
	_, err := s.Hold(ctx, a.ID, amount, breakdown)
	return err
}

// ReleaseOnValidated is the DELIVERED→VALIDATED lifecycle hook: the only
// path that releases held funds.
func (s *Service) ReleaseOnValidated(ctx context.Context, a *domain.Announcement, actor string) error {
	return s.release(ctx, a.ID, actor, domain.EventFundsReleased)
}
