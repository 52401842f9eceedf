// Package escrow holds, releases and refunds client funds in lock-step
// with the announcement lifecycle. Every fund movement is guarded by a
// conditional status update, so a retried or concurrent call can never
// move money twice.
package escrow

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/gateway/processor"
	"crowdship-engine/internal/logx"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/escrowtx"
	"crowdship-engine/internal/service/lifecycle"
)

// Service implements the escrow engine operations.
type Service struct {
	escrows          escrowStore
	announcements    announcementStore
	matches          matchStore
	machine          machine
	gateway          processor.Gateway
	cfg              config.Escrow
	counters         Counters
	notifyTopic      string
	operationTimeout time.Duration
	logger           logx.Logger
	now              func() time.Time
	newCode          func() string
}

// NewService creates a new escrow Service.
func NewService(
	escrows escrowStore,
	announcements announcementStore,
	matches matchStore,
	m machine,
	gateway processor.Gateway,
	cfg config.Escrow,
	counters Counters,
	notifyTopic string,
	logger logx.Logger,
) *Service {
	return &Service{
		escrows:          escrows,
		announcements:    announcements,
		matches:          matches,
		machine:          m,
		gateway:          gateway,
		cfg:              cfg,
		counters:         counters,
		notifyTopic:      notifyTopic,
		operationTimeout: 10 * time.Second,
		logger:           logger,
		now:              func() time.Time { return time.Now().UTC() },
		newCode:          newValidationCode,
	}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.operationTimeout)
}

// Hold places the client's funds in escrow for an announcement. Idempotent
// by announcement id: a repeated call for a HELD transaction returns the
// existing record unchanged, a PENDING leftover from a failed capture is
// resumed.
func (s *Service) Hold(ctx context.Context, announcementID string, amount float64, breakdown domain.Breakdown) (*domain.EscrowTransaction, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}
	if amount <= 0 || !breakdown.SumsTo(amount) {
		return nil, apperr.ErrValidation
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

	now := s.now()
	var (
		created  *domain.EscrowTransaction
		existing *domain.EscrowTransaction
	)
	err = s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		e, err := tx.GetByAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return err
		}
		if e != nil {
			switch e.Status {
			case domain.EscrowHeld:
				existing = e
				return nil
			case domain.EscrowPending:
				// прошлый захват сорвался, доводим транзакцию до HELD
				created = e
				return nil
			default:
				return apperr.ErrConflict
			}
		}

		e = &domain.EscrowTransaction{
			ID:             "escrow_" + uuid.NewString(),
			AnnouncementID: announcementID,
			ClientID:       a.OwnerClientID,
			Amount:         amount,
			Currency:       s.cfg.Currency,
			Breakdown:      breakdown,
			Status:         domain.EscrowPending,
			ValidationCode: s.newCode(),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Insert(ctx, e); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, e.ID, domain.EscrowEvent{
			ID:         uuid.NewString(),
			EventType:  domain.EventHoldRequested,
			FromStatus: domain.EscrowPending,
			ToStatus:   domain.EscrowPending,
			Actor:      lifecycle.ActorClient,
			At:         now,
		}); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.escrows.GetByAnnouncement(ctx, announcementID)
	}

	res, err := s.gateway.Capture(ctx, processor.CaptureRequest{
		EscrowID: created.ID,
		ClientID: created.ClientID,
		Amount:   created.Amount,
		Currency: created.Currency,
	})
	if err != nil {
		s.logger.Error("escrow capture failed",
			logx.String("escrow_id", created.ID),
			logx.String("announcement_id", announcementID),
			logx.Any("err", err),
		)
		return nil, err
	}

	capturedAt := s.now()
	heldUntil := capturedAt.Add(s.cfg.DefaultHoldPeriod)
	if limit := capturedAt.Add(s.cfg.MaxHoldPeriod); heldUntil.After(limit) {
		heldUntil = limit
	}

	err = s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		ok, err := tx.CASStatus(ctx, created.ID, domain.EscrowPending, domain.EscrowHeld)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrConflict
		}
		if err := tx.SetCaptured(ctx, created.ID, capturedAt, heldUntil, res.ProcessorRef); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, created.ID, domain.EscrowEvent{
			ID:         uuid.NewString(),
			EventType:  domain.EventFundsCaptured,
			FromStatus: domain.EscrowPending,
			ToStatus:   domain.EscrowHeld,
			Actor:      lifecycle.ActorSystem,
			At:         capturedAt,
		}); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, outbox.NewNotify(s.notifyTopic, outbox.Notification{
			UserID:    created.ClientID,
			EventType: "escrow_held",
			Payload: map[string]any{
				"announcement_id": announcementID,
				"escrow_id":       created.ID,
				"amount":          created.Amount,
				"held_until":      heldUntil,
			},
		}))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("escrow held",
		logx.String("event", "escrow_held"),
		logx.String("escrow_id", created.ID),
		logx.String("announcement_id", announcementID),
		logx.Float64("amount", created.Amount),
		logx.Time("held_until", heldUntil),
	)

	return s.escrows.GetByAnnouncement(ctx, announcementID)
}

// ValidateCode checks the delivery code submitted on handover. On a match
// it drives the announcement to VALIDATED, which releases the funds through
// the lifecycle hook. Mismatches are retryable up to the configured attempt
// count, after which the transaction escalates to DISPUTED.
func (s *Service) ValidateCode(ctx context.Context, announcementID, submittedCode, actor string) (*domain.EscrowTransaction, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}
	submittedCode = strings.TrimSpace(submittedCode)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	var mismatch error
	err = s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		e, err := tx.GetByAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrNotFound
		}
		switch e.Status {
		case domain.EscrowReleased:
			return apperr.ErrAlreadyReleased
		case domain.EscrowRefunded:
			return apperr.ErrConflict
		case domain.EscrowHeld:
		default:
			return apperr.ErrValidation
		}
		if !e.HeldUntil.IsZero() && now.After(e.HeldUntil) {
			return apperr.ErrExpiredHold
		}

		if submittedCode != e.ValidationCode {
			if err := tx.AppendEvent(ctx, e.ID, domain.EscrowEvent{
				ID:         uuid.NewString(),
				EventType:  domain.EventCodeMismatch,
				FromStatus: domain.EscrowHeld,
				ToStatus:   domain.EscrowHeld,
				Actor:      actor,
				At:         now,
			}); err != nil {
				return err
			}
			if e.CodeAttempts+1 >= s.cfg.MaxCodeAttempts {
				if err := s.escalateLocked(ctx, tx, e, now, "code attempts exhausted"); err != nil {
					return err
				}
			}
			mismatch = apperr.ErrValidation
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mismatch != nil {
		return nil, mismatch
	}

	if _, err := s.machine.Transition(ctx, announcementID, domain.StatusValidated, actor); err != nil {
		if errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrStateTransition) {
			// гонка двух валидаций: проверяем, не выпущены ли средства
			e, gerr := s.escrows.GetByAnnouncement(ctx, announcementID)
			if gerr == nil && e != nil && e.Status == domain.EscrowReleased {
				return nil, apperr.ErrAlreadyReleased
			}
		}
		return nil, err
	}

	return s.escrows.GetByAnnouncement(ctx, announcementID)
}

// escalateLocked moves a HELD transaction to DISPUTED inside an already
// open transaction.
func (s *Service) escalateLocked(ctx context.Context, tx escrowtx.Repository, e *domain.EscrowTransaction, now time.Time, reason string) error {
	ok, err := tx.CASStatus(ctx, e.ID, domain.EscrowHeld, domain.EscrowDisputed)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrConflict
	}
	if err := tx.SetDisputeRaised(ctx, e.ID); err != nil {
		return err
	}
	if err := tx.AppendEvent(ctx, e.ID, domain.EscrowEvent{
		ID:         uuid.NewString(),
		EventType:  domain.EventDisputed,
		FromStatus: domain.EscrowHeld,
		ToStatus:   domain.EscrowDisputed,
		Actor:      lifecycle.ActorSystem,
		At:         now,
		Reason:     reason,
	}); err != nil {
		return err
	}
	return tx.EnqueueOutbox(ctx, outbox.NewNotify(s.notifyTopic, outbox.Notification{
		UserID:    e.ClientID,
		EventType: "escrow_disputed",
		Payload:   map[string]any{"escrow_id": e.ID, "reason": reason},
	}))
}

// Refund returns the full amount to the client. Allowed while the funds
// are PENDING, HELD or DISPUTED; a released transaction is never refunded.
func (s *Service) Refund(ctx context.Context, announcementID, reason string) (*domain.EscrowTransaction, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	err = s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		e, err := tx.GetByAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrNotFound
		}
		switch e.Status {
		case domain.EscrowReleased, domain.EscrowRefunded:
			return apperr.ErrConflict
		}

		ok, err := tx.CASStatus(ctx, e.ID, e.Status, domain.EscrowRefunded)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.ErrConflict
		}
		if err := tx.SetRefunded(ctx, e.ID, now); err != nil {
			return err
		}
		if err := tx.AppendEvent(ctx, e.ID, domain.EscrowEvent{
			ID:         uuid.NewString(),
			EventType:  domain.EventRefunded,
			FromStatus: e.Status,
			ToStatus:   domain.EscrowRefunded,
			Actor:      lifecycle.ActorAdmin,
			At:         now,
			Reason:     reason,
		}); err != nil {
			return err
		}
		if err := tx.InsertLedger(ctx, []domain.LedgerEntry{{
			ID:        uuid.NewString(),
			Account:   e.ClientID,
			EscrowID:  e.ID,
			Amount:    e.Amount,
			Currency:  e.Currency,
			EntryType: domain.LedgerDebitRefund,
			CreatedAt: now,
		}}); err != nil {
			return err
		}
		if e.ProcessorRef != "" {
			task := outbox.NewProcessorTask(outbox.KindProcessorRefund, outbox.ProcessorTask{
				EscrowID:     e.ID,
				ProcessorRef: e.ProcessorRef,
				Amount:       e.Amount,
				Currency:     e.Currency,
			})
			if err := tx.EnqueueOutbox(ctx, task); err != nil {
				return err
			}
		}
		return tx.EnqueueOutbox(ctx, outbox.NewNotify(s.notifyTopic, outbox.Notification{
			UserID:    e.ClientID,
			EventType: "escrow_refunded",
			Payload:   map[string]any{"escrow_id": e.ID, "reason": reason},
		}))
	})
	if err != nil {
		return nil, err
	}
	if s.counters.Refunded != nil {
		s.counters.Refunded.Inc()
	}

	s.logger.Info("escrow refunded",
		logx.String("event", "escrow_refunded"),
		logx.String("announcement_id", announcementID),
		logx.String("reason", reason),
	)

	return s.escrows.GetByAnnouncement(ctx, announcementID)
}

// Dispute escalates a HELD transaction to DISPUTED on the client's request.
func (s *Service) Dispute(ctx context.Context, announcementID, reason string) (*domain.EscrowTransaction, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now()
	err = s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		e, err := tx.GetByAnnouncementForUpdate(ctx, announcementID)
		if err != nil {
			return err
		}
		if e == nil {
			return apperr.ErrNotFound
		}
		if e.Status != domain.EscrowHeld {
			return apperr.ErrConflict
		}
		return s.escalateLocked(ctx, tx, e, now, reason)
	})
	if err != nil {
		return nil, err
	}

	return s.escrows.GetByAnnouncement(ctx, announcementID)
}

// AutoResolve applies the hold-expiry policy to one announcement's escrow:
// auto-release when the auto-release deadline is the earlier one, otherwise
// force the hold into DISPUTED at the max-hold deadline. A raised dispute
// always wins.
func (s *Service) AutoResolve(ctx context.Context, announcementID string) error {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.escrows.GetByAnnouncement(ctx, announcementID)
	if err != nil {
		return err
	}
	if e == nil {
		return apperr.ErrNotFound
	}
	return s.autoResolveOne(ctx, e)
}

func (s *Service) autoResolveOne(ctx context.Context, e *domain.EscrowTransaction) error {
	if e.Status != domain.EscrowHeld {
		return nil
	}
	now := s.now()

	if e.DisputeRaised {
		return s.forceDispute(ctx, e, now, "dispute raised during hold")
	}

	autoReleaseAt := e.CapturedAt.Add(s.cfg.AutoReleaseAfter)
	maxHoldAt := e.CapturedAt.Add(s.cfg.MaxHoldPeriod)

	if !autoReleaseAt.After(maxHoldAt) {
		if now.Before(autoReleaseAt) {
			return nil // льготное окно, ничего не делаем
		}
		// молчание считается согласием
		return s.release(ctx, e.AnnouncementID, lifecycle.ActorSystem, domain.EventAutoReleased)
	}

	if now.Before(maxHoldAt) {
		return nil
	}
	return s.forceDispute(ctx, e, now, "max hold period exceeded")
}

func (s *Service) forceDispute(ctx context.Context, e *domain.EscrowTransaction, now time.Time, reason string) error {
	err := s.escrows.WithTx(ctx, func(tx escrowtx.Repository) error {
		locked, err := tx.GetByAnnouncementForUpdate(ctx, e.AnnouncementID)
		if err != nil {
			return err
		}
		if locked == nil || locked.Status != domain.EscrowHeld {
			return nil
		}
		return s.escalateLocked(ctx, tx, locked, now, reason)
	})
	if err != nil {
		return err
	}
	s.logger.Info("escrow disputed",
		logx.String("event", "escrow_disputed"),
		logx.String("escrow_id", e.ID),
		logx.String("reason", reason),
	)
	return nil
}

// AutoResolveDue sweeps every transaction past its deadlines. Returns the
// number of transactions examined.
func (s *Service) AutoResolveDue(ctx context.Context, batchSize int) (int, error) {
	now := s.now()
	due, err := s.escrows.ListAutoResolveDue(ctx,
		now.Add(-s.cfg.AutoReleaseAfter), now, batchSize)
	if err != nil {
		return 0, err
	}
	for i := range due {
		if err := s.autoResolveOne(ctx, &due[i]); err != nil {
			s.logger.Error("auto-resolve failed",
				logx.String("escrow_id", due[i].ID),
				logx.Any("err", err),
			)
		}
	}
	return len(due), nil
}

// Get returns the escrow transaction held against an announcement,
// including its full event log.
func (s *Service) Get(ctx context.Context, announcementID string) (*domain.EscrowTransaction, error) {
	announcementID, err := validateID(announcementID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.escrows.GetByAnnouncement(ctx, announcementID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, apperr.ErrNotFound
	}
	return e, nil
}

func validateID(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", apperr.ErrValidation
	}
	return id, nil
}
