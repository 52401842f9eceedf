package escrow

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crowdship-engine/internal/apperr"
	"crowdship-engine/internal/config"
	"crowdship-engine/internal/domain"
	"crowdship-engine/internal/gateway/processor"
	"crowdship-engine/internal/outbox"
	"crowdship-engine/internal/ports/escrowtx"
	"crowdship-engine/internal/service/lifecycle"
	testlog "crowdship-engine/internal/testutil"
)

// memEscrowStore is an in-memory escrow store. WithTx serializes callers
// on one mutex, mimicking the per-announcement row lock.
type memEscrowStore struct {
	mu     sync.Mutex
	byAnn  map[string]*domain.EscrowTransaction
	events map[string][]domain.EscrowEvent
	ledger []domain.LedgerEntry
	outbox []outbox.Event
}

func newMemEscrowStore() *memEscrowStore {
	return &memEscrowStore{
		byAnn:  make(map[string]*domain.EscrowTransaction),
		events: make(map[string][]domain.EscrowEvent),
	}
}

func (s *memEscrowStore) WithTx(ctx context.Context, fn func(tx escrowtx.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memEscrowTx{s: s})
}

func (s *memEscrowStore) GetByAnnouncement(_ context.Context, announcementID string) (*domain.EscrowTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byAnn[announcementID]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Events = append([]domain.EscrowEvent(nil), s.events[e.ID]...)
	return &cp, nil
}

func (s *memEscrowStore) ListAutoResolveDue(_ context.Context, capturedBefore, heldBefore time.Time, limit int) ([]domain.EscrowTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.EscrowTransaction
	for _, e := range s.byAnn {
		if e.Status != domain.EscrowHeld {
			continue
		}
		if e.DisputeRaised || !e.CapturedAt.After(capturedBefore) || !e.HeldUntil.After(heldBefore) {
			out = append(out, *e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memEscrowStore) find(escrowID string) *domain.EscrowTransaction {
	for _, e := range s.byAnn {
		if e.ID == escrowID {
			return e
		}
	}
	return nil
}

type memEscrowTx struct {
	s *memEscrowStore
}

func (t *memEscrowTx) GetByAnnouncementForUpdate(_ context.Context, announcementID string) (*domain.EscrowTransaction, error) {
	e, ok := t.s.byAnn[announcementID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (t *memEscrowTx) Insert(_ context.Context, e *domain.EscrowTransaction) error {
	cp := *e
	t.s.byAnn[e.AnnouncementID] = &cp
	return nil
}

func (t *memEscrowTx) CASStatus(_ context.Context, escrowID string, from, to domain.EscrowStatus) (bool, error) {
	e := t.s.find(escrowID)
	if e == nil || e.Status != from {
		return false, nil
	}
	e.Status = to
	return true, nil
}

func (t *memEscrowTx) SetCaptured(_ context.Context, escrowID string, capturedAt, heldUntil time.Time, processorRef string) error {
	e := t.s.find(escrowID)
	e.CapturedAt = capturedAt
	e.HeldUntil = heldUntil
	e.ProcessorRef = processorRef
	return nil
}

func (t *memEscrowTx) SetReleased(_ context.Context, escrowID, delivererID string, at time.Time) error {
	e := t.s.find(escrowID)
	e.ReleasedAt = at
	e.DelivererID = delivererID
	return nil
}

func (t *memEscrowTx) SetRefunded(_ context.Context, escrowID string, at time.Time) error {
	t.s.find(escrowID).RefundedAt = at
	return nil
}

func (t *memEscrowTx) SetDisputeRaised(_ context.Context, escrowID string) error {
	t.s.find(escrowID).DisputeRaised = true
	return nil
}

func (t *memEscrowTx) AppendEvent(_ context.Context, escrowID string, ev domain.EscrowEvent) error {
	t.s.events[escrowID] = append(t.s.events[escrowID], ev)
	if ev.EventType == domain.EventCodeMismatch {
		t.s.find(escrowID).CodeAttempts++
	}
	return nil
}

func (t *memEscrowTx) InsertLedger(_ context.Context, entries []domain.LedgerEntry) error {
	t.s.ledger = append(t.s.ledger, entries...)
	return nil
}

func (t *memEscrowTx) EnqueueOutbox(_ context.Context, ev outbox.Event) error {
	t.s.outbox = append(t.s.outbox, ev)
	return nil
}

type annStub struct {
	a *domain.Announcement
}

func (s *annStub) Get(_ context.Context, id string) (*domain.Announcement, error) {
	if s.a != nil && s.a.ID == id {
		cp := *s.a
		return &cp, nil
	}
	return nil, nil
}

type matchesStub struct {
	m *domain.Match
}

func (s *matchesStub) GetAcceptedByAnnouncement(context.Context, string) (*domain.Match, error) {
	return s.m, nil
}

// validatingMachine mimics the wired lifecycle: the DELIVERED→VALIDATED
// edge runs the release hook.
type validatingMachine struct {
	svc    *Service
	status domain.AnnouncementStatus
	mu     sync.Mutex
}

func (m *validatingMachine) Transition(ctx context.Context, id string, target domain.AnnouncementStatus, actor string) (*domain.Announcement, error) {
	m.mu.Lock()
	if m.status != domain.StatusDelivered || target != domain.StatusValidated {
		from := m.status
		m.mu.Unlock()
		return nil, apperr.NewStateTransition(string(from), string(target))
	}
	m.status = domain.StatusValidated
	m.mu.Unlock()

	a := &domain.Announcement{ID: id, Status: domain.StatusValidated}
	if err := m.svc.ReleaseOnValidated(ctx, a, actor); err != nil {
		return a, err
	}
	return a, nil
}

type fixture struct {
	svc     *Service
	store   *memEscrowStore
	machine *validatingMachine
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := newMemEscrowStore()
	ann := &annStub{a: &domain.Announcement{
		ID:            "a-1",
		OwnerClientID: "c-1",
		Status:        domain.StatusMatched,
	}}
	matches := &matchesStub{m: &domain.Match{
		ID:             "m-1",
		AnnouncementID: "a-1",
		DelivererID:    "d-1",
		Status:         domain.MatchAccepted,
	}}
	machine := &validatingMachine{status: domain.StatusDelivered}

	svc := NewService(store, ann, matches, machine, processor.NewSimulated(),
		config.DefaultEscrow(), Counters{}, "notify", testlog.New().Logger())
	machine.svc = svc

	f := &fixture{svc: svc, store: store, machine: machine,
		now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = func() time.Time { return f.now }
	return f
}

func breakdown45() domain.Breakdown {
	return domain.Breakdown{ServiceAmount: 30, DeliveryFee: 10, PlatformFee: 4, VATAmount: 1}
}

func TestService_Hold_CapturesAndHolds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	e, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)
	require.Equal(t, domain.EscrowHeld, e.Status)
	require.Regexp(t, regexp.MustCompile(`^escrow_`), e.ID)
	require.Regexp(t, regexp.MustCompile(`^\d{6}$`), e.ValidationCode)
	require.NotEmpty(t, e.ProcessorRef)
	require.Equal(t, f.now.Add(48*time.Hour), e.HeldUntil)

	require.Len(t, e.Events, 2)
	require.Equal(t, domain.EventHoldRequested, e.Events[0].EventType)
	require.Equal(t, domain.EventFundsCaptured, e.Events[1].EventType)
	require.Equal(t, domain.EscrowHeld, domain.DeriveEscrowStatus(e.Events))
}

func TestService_Hold_IdempotentByAnnouncement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	first, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	second, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.ValidationCode, second.ValidationCode)
	require.Len(t, second.Events, 2) // повторный вызов ничего не дописал
}

// A capture failure leaves a PENDING row behind; the retried call must
// pick it up and drive it to HELD instead of returning the stale record.
func TestService_Hold_RetriedAfterCaptureFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	gw := processor.NewSimulated()
	var calls int
	gw.CaptureFunc = func(_ context.Context, req processor.CaptureRequest) (*processor.CaptureResult, error) {
		calls++
		if calls == 1 {
			return nil, processor.ErrTransient
		}
		return &processor.CaptureResult{ProcessorRef: "pay_retry"}, nil
	}
	f.svc.gateway = gw

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.ErrorIs(t, err, processor.ErrTransient)

	stale, err := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowPending, stale.Status)

	e, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)
	require.Equal(t, 2, calls)
	require.Equal(t, domain.EscrowHeld, e.Status)
	require.Equal(t, "pay_retry", e.ProcessorRef)
	require.Equal(t, stale.ID, e.ID)
	require.Equal(t, stale.ValidationCode, e.ValidationCode)
	require.Equal(t, domain.EscrowHeld, domain.DeriveEscrowStatus(e.Events))
}

func TestService_Hold_RejectsBadBreakdown(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	bad := breakdown45()
	bad.VATAmount = 10

	_, err := f.svc.Hold(context.Background(), "a-1", 45, bad)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestService_Hold_UnknownAnnouncement(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "missing", 45, breakdown45())
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

// Full happy path: hold, deliver, validate the code, funds split between
// deliverer and platform.
func TestService_ValidateCode_ReleasesFunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	e, err := f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.NoError(t, err)
	require.Equal(t, domain.EscrowReleased, e.Status)
	require.Equal(t, "d-1", e.DelivererID)
	require.Equal(t, domain.StatusValidated, f.machine.status)

	require.Len(t, f.store.ledger, 2)
	var payout, fee float64
	for _, le := range f.store.ledger {
		switch le.EntryType {
		case domain.LedgerCreditRelease:
			require.Equal(t, "d-1", le.Account)
			payout = le.Amount
		case domain.LedgerCreditFee:
			require.Equal(t, domain.PlatformAccount, le.Account)
			fee = le.Amount
		}
	}
	require.InDelta(t, 45, payout+fee, 0.001)
	require.Equal(t, 4.0, fee)

	require.Equal(t, domain.EscrowReleased, domain.DeriveEscrowStatus(e.Events))
}

// With no explicit platform fee in the breakdown the configured rate
// applies: 45.00 at 15% splits into 38.25 payout and 6.75 fee.
func TestService_ValidateCode_DefaultFeeRate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.svc.Hold(context.Background(), "a-1", 45, domain.Breakdown{ServiceAmount: 45})
	require.NoError(t, err)

	_, err = f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.NoError(t, err)

	require.Len(t, f.store.ledger, 2)
	for _, le := range f.store.ledger {
		switch le.EntryType {
		case domain.LedgerCreditRelease:
			require.Equal(t, 38.25, le.Amount)
		case domain.LedgerCreditFee:
			require.Equal(t, 6.75, le.Amount)
		}
	}
}

func TestService_ValidateCode_DuplicateIsAlreadyReleased(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	_, err = f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.NoError(t, err)

	_, err = f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.ErrorIs(t, err, apperr.ErrAlreadyReleased)

	require.Len(t, f.store.ledger, 2) // повторного зачисления нет
}

func TestService_ValidateCode_MismatchesEscalateToDispute(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	attempts := f.svc.cfg.MaxCodeAttempts
	for i := 0; i < attempts; i++ {
		_, err := f.svc.ValidateCode(context.Background(), "a-1", "000000", lifecycle.ActorClient)
		require.ErrorIs(t, err, apperr.ErrValidation, "attempt %d", i+1)
	}

	e, err := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowDisputed, e.Status)
	require.Equal(t, attempts, e.CodeAttempts)
	require.Equal(t, domain.EscrowDisputed, domain.DeriveEscrowStatus(e.Events))

	// после эскалации правильный код уже не принимается
	_, err = f.svc.ValidateCode(context.Background(), "a-1", e.ValidationCode, lifecycle.ActorClient)
	require.ErrorIs(t, err, apperr.ErrValidation)
}

func TestService_ValidateCode_ExpiredHold(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	f.now = held.HeldUntil.Add(time.Minute)

	_, err = f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.ErrorIs(t, err, apperr.ErrExpiredHold)
}

// Refund after release must not move money twice.
func TestService_Refund_AfterReleaseConflicts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	_, err = f.svc.ValidateCode(context.Background(), "a-1", held.ValidationCode, lifecycle.ActorClient)
	require.NoError(t, err)

	_, err = f.svc.Refund(context.Background(), "a-1", "changed my mind")
	require.ErrorIs(t, err, apperr.ErrConflict)

	e, err := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowReleased, e.Status)
}

func TestService_Refund_HeldFundsReturnToClient(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	e, err := f.svc.Refund(context.Background(), "a-1", "parcel damaged")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowRefunded, e.Status)
	require.False(t, e.RefundedAt.IsZero())

	var refundTasks int
	for _, ev := range f.store.outbox {
		if ev.Kind == outbox.KindProcessorRefund {
			refundTasks++
		}
	}
	require.Equal(t, 1, refundTasks)
}

// Hold at T, no validation; sweep at T+72h auto-releases.
func TestService_AutoResolve_SilenceReleasesAfterPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	// внутри льготного окна ничего не происходит
	f.now = f.now.Add(50 * time.Hour)
	require.NoError(t, f.svc.AutoResolve(context.Background(), "a-1"))
	e, _ := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.Equal(t, domain.EscrowHeld, e.Status)

	f.now = f.now.Add(23 * time.Hour) // всего 73 часа
	require.NoError(t, f.svc.AutoResolve(context.Background(), "a-1"))

	e, _ = f.store.GetByAnnouncement(context.Background(), "a-1")
	require.Equal(t, domain.EscrowReleased, e.Status)

	var last domain.EscrowEvent
	for _, ev := range e.Events {
		last = ev
	}
	require.Equal(t, domain.EventAutoReleased, last.EventType)
}

func TestService_AutoResolve_RaisedDisputeWins(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	f.store.byAnn["a-1"].DisputeRaised = true

	f.now = f.now.Add(80 * time.Hour)
	require.NoError(t, f.svc.AutoResolve(context.Background(), "a-1"))

	e, _ := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.Equal(t, domain.EscrowDisputed, e.Status)
}

func TestService_Dispute_RequiresHeldFunds(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, err := f.svc.Hold(context.Background(), "a-1", 45, breakdown45())
	require.NoError(t, err)

	e, err := f.svc.Dispute(context.Background(), "a-1", "package never arrived")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowDisputed, e.Status)
	require.True(t, e.DisputeRaised)

	_, err = f.svc.Dispute(context.Background(), "a-1", "again")
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestService_OnAnnouncementMatched_HoldsFinalPrice(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	a := &domain.Announcement{
		ID:            "a-1",
		OwnerClientID: "c-1",
		Status:        domain.StatusMatched,
		FinalPrice:    45,
	}
	require.NoError(t, f.svc.OnAnnouncementMatched(context.Background(), a, lifecycle.ActorClient))

	e, err := f.store.GetByAnnouncement(context.Background(), "a-1")
	require.NoError(t, err)
	require.Equal(t, domain.EscrowHeld, e.Status)
	require.Equal(t, 45.0, e.Amount)
	require.True(t, e.Breakdown.SumsTo(45))
}
