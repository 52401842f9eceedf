// Package matching pairs announcements with carrier routes. Candidate
// generation is read-mostly; acceptance runs under a per-announcement row
// lock so that exactly one deliverer wins.
package matching

import (
	"context"
	"errors"
	"strings"
	"time"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/geo"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/matchtx"
	"crowdship-engine/internal/service/lifecycle"
)

// Service implements the matching engine operations.
type Service struct {
	announcements    announcementStore
	routes           routeStore
	matches          matchStore
	outbox           outboxStore
	machine          machine
	scorer           scorer
	counters         Counters
	notifyTopic      string
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
}

// NewService creates a new matching Service.
func NewService(
	announcements announcementStore,
	routes routeStore,
	matches matchStore,
	ob outboxStore,
	m machine,
	cfg config.Matching,
	counters Counters,
	notifyTopic string,
	logger logx.Logger,
) *Service {
	return &Service{
		announcements:    announcements,
		routes:           routes,
		matches:          matches,
		outbox:           ob,
		machine:          m,
		scorer:           scorer{cfg: cfg},
		counters:         counters,
		notifyTopic:      notifyTopic,
		operationTimeout: 5 * time.Second,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Generate scores active routes against the announcement and replaces its
// pending candidate set. The announcement status is left untouched; an
// empty result is not an error.
func (s *Service) Generate(ctx context.Context, announcementID string) ([]domain.Match, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := s.announcements.Get(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, apperr.ErrNotFound
	}
	if !a.HasCoordinates() {
		return nil, apperr.ErrValidation
	}
	now := s.now()
	if a.Status != domain.StatusActive && a.Status != domain.StatusMatched {
		return nil, apperr.ErrConflict
	}
	if a.Expired(now) {
		return nil, apperr.ErrConflict
	}

	routes, err := s.routes.ListCandidates(ctx,
		geo.BoundsAround(a.Pickup, s.scorer.cfg.MaxDistanceKm), a.PickupWindow)
	if err != nil {
		return nil, err
	}

	var (
		candidates []domain.Match
		departures = make(map[string]time.Time, len(routes))
	)
	for i := range routes {
		r := &routes[i]
		if r.OwnerDelivererID == a.OwnerClientID {
			continue // нельзя доставлять самому себе
		}
		m, ok := s.scorer.build(a, r, now)
		if !ok || m.Score < s.scorer.cfg.MinScore {
			continue
		}
		candidates = append(candidates, m)
		departures[r.ID] = r.Window.From
	}

	rank(candidates, departures)
	if max := s.scorer.cfg.MaxResults; max > 0 && len(candidates) > max {
		candidates = candidates[:max]
	}

	if err := s.matches.ReplacePending(ctx, announcementID, candidates); err != nil {
		return nil, err
	}
	if s.counters.Generated != nil {
		for range candidates {
			s.counters.Generated.Inc()
		}
	}
	s.notifyCandidates(ctx, announcementID, candidates)

	s.logger.Info("matches generated",
		logx.String("event", "matches_generated"),
		logx.String("announcement_id", announcementID),
		logx.Int("candidates", len(candidates)),
		logx.Int("routes_considered", len(routes)),
	)

	return candidates, nil
}

// notifyCandidates offers each fresh candidate to its deliverer. Delivery
// is fire-and-forget: a failed enqueue leaves the flag unset and the next
// Generate pass retries it.
func (s *Service) notifyCandidates(ctx context.Context, announcementID string, candidates []domain.Match) {
	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		m := &candidates[i]
		if m.Notified {
			continue
		}
		ev := outbox.NewNotify(s.notifyTopic, outbox.Notification{
			UserID:    m.DelivererID,
			EventType: "match_proposed",
			Payload: map[string]any{
				"announcement_id": announcementID,
				"match_id":        m.ID,
				"score":           m.Score,
				"price_estimate":  m.PriceEstimate,
			},
		})
		if err := s.outbox.Enqueue(ctx, ev); err != nil {
			s.logger.Warn("enqueue match notification failed",
				logx.String("match_id", m.ID),
				logx.Any("err", err),
			)
			continue
		}
		ids = append(ids, m.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := s.matches.MarkNotified(ctx, ids); err != nil {
		s.logger.Warn("mark notified failed",
			logx.String("announcement_id", announcementID),
			logx.Any("err", err),
		)
		return
	}
	marked := make(map[string]bool, len(ids))
	for _, id := range ids {
		marked[id] = true
	}
	for i := range candidates {
		if marked[candidates[i].ID] {
			candidates[i].Notified = true
		}
	}
}

// Accept assigns the announcement to the match's deliverer. Runs under a
// row lock on the announcement: of N concurrent calls exactly one commits,
// the rest get ErrConflict and their match is invalidated.
func (s *Service) Accept(ctx context.Context, matchID, delivererID string) (*domain.Announcement, error) {
	matchID, err := validateID(matchID)
	if err != nil {
		return nil, err
	}
	delivererID, err = validateID(delivererID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		accepted *domain.Announcement
		price    float64
	)
	err = s.matches.WithTx(ctx, func(tx matchtx.Repository) error {
		m, err := tx.GetMatchForUpdate(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.ErrNotFound
		}
		if m.DelivererID != delivererID {
			return apperr.ErrValidation
		}

		a, err := tx.LockAnnouncement(ctx, m.AnnouncementID)
		if err != nil {
			return err
		}
		if a == nil {
			return apperr.ErrNotFound
		}

		ok, err := tx.UpdateMatchStatus(ctx, matchID, domain.MatchPending, domain.MatchAccepted)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrConflict
		}

		ok, err = tx.UpdateAnnouncementStatus(ctx, a.ID,
			[]domain.AnnouncementStatus{domain.StatusActive, domain.StatusMatched},
			domain.StatusAssigned)
		if err != nil {
			return err
		}
		if !ok {
			// ASSIGNED means another acceptance committed first
			if a.Status == domain.StatusAssigned {
				return apperr.ErrConflict
			}
			return apperr.NewStateTransition(string(a.Status), string(domain.StatusAssigned))
		}

		if _, err := tx.InvalidateSiblings(ctx, a.ID, matchID); err != nil {
			return err
		}

		if err := tx.EnqueueOutbox(ctx, outbox.NewNotify(s.notifyTopic, outbox.Notification{
			UserID:    a.OwnerClientID,
			EventType: "match_accepted",
			Payload: map[string]any{
				"announcement_id": a.ID,
				"match_id":        matchID,
				"deliverer_id":    delivererID,
			},
		})); err != nil {
			return err
		}

		a.Status = domain.StatusAssigned
		accepted = a
		price = m.PriceEstimate
		return nil
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) && s.counters.Conflicts != nil {
			s.counters.Conflicts.Inc()
		}
		return nil, err
	}

	// фиксируем цену один раз, повторный вызов ничего не меняет
	if accepted.FinalPrice == 0 && price > 0 {
		if err := s.announcements.SetFinalPrice(ctx, accepted.ID, price); err != nil {
			s.logger.Warn("set final price failed",
				logx.String("announcement_id", accepted.ID),
				logx.Any("err", err),
			)
		} else {
			accepted.FinalPrice = price
		}
	}

	s.logger.Info("match accepted",
		logx.String("event", "match_accepted"),
		logx.String("match_id", matchID),
		logx.String("announcement_id", accepted.ID),
		logx.String("deliverer_id", delivererID),
	)

	return accepted, nil
}

// Reject marks a single candidate as rejected. When it was the last live
// candidate of a MATCHED announcement, the announcement re-enters ACTIVE.
func (s *Service) Reject(ctx context.Context, matchID string) error {
	matchID, err := validateID(matchID)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ok, err := s.matches.UpdateStatus(ctx, matchID, domain.MatchPending, domain.MatchRejected)
	if err != nil {
		return err
	}
	if !ok {
		m, err := s.matches.GetMatch(ctx, matchID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.ErrNotFound
		}
		return apperr.ErrConflict
	}

	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil || m == nil {
		return err
	}
	remaining, err := s.matches.ListPendingByAnnouncement(ctx, m.AnnouncementID)
	if err != nil {
		return err
	}
	if len(remaining) == 0 {
		if _, err := s.machine.Transition(ctx, m.AnnouncementID, domain.StatusActive, lifecycle.ActorSystem); err != nil &&
			!errors.Is(err, apperr.ErrStateTransition) && !errors.Is(err, apperr.ErrConflict) {
			return err
		}
	}
	return nil
}

// Match returns a single match by id.
func (s *Service) Match(ctx context.Context, matchID string) (*domain.Match, error) {
	matchID, err := validateID(matchID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.matches.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.ErrNotFound
	}
	return m, nil
}

// NextBest returns the strongest live candidate for an announcement, used
// after a conflict to offer the caller an alternative.
func (s *Service) NextBest(ctx context.Context, announcementID string) (*domain.Match, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pending, err := s.matches.ListPendingByAnnouncement(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, apperr.ErrNotFound
	}
	return &pending[0], nil
}

func validateID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperr.ErrValidation
	}
	return id, nil
}
