package domain

import (
	"math"
	"time"
)

// EscrowStatus represents the business state of held funds.
type EscrowStatus string

// Escrow states. Transitions are monotonic: once out of PENDING a
// transaction never re-enters it, and RELEASED/REFUNDED/DISPUTED are final
// for fund movement.
const (
	EscrowPending  EscrowStatus = "PENDING"
	EscrowHeld     EscrowStatus = "HELD"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
)

// escrowRank orders states for the no-regress invariant.
var escrowRank = map[EscrowStatus]int{
	EscrowPending:  0,
	EscrowHeld:     1,
	EscrowReleased: 2,
	EscrowRefunded: 2,
	EscrowDisputed: 2,
}

// Valid checks if the EscrowStatus is a known state.
func (s EscrowStatus) Valid() bool {
	_, ok := escrowRank[s]
	return ok
}

// Terminal reports whether funds have reached a final disposition.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowReleased || s == EscrowRefunded
}

// CanAdvance reports whether moving from s to target respects monotonicity.
func (s EscrowStatus) CanAdvance(target EscrowStatus) bool {
	from, ok := escrowRank[s]
	if !ok {
		return false
	}
	to, ok := escrowRank[target]
	if !ok {
		return false
	}
	if s.Terminal() {
		return false
	}
	return to > from
}

// breakdownEpsilon tolerates cent-level float rounding in the sum check.
const breakdownEpsilon = 0.01

// Breakdown is the fixed-shape split of an escrow amount. The four parts
// must sum to the transaction amount.
type Breakdown struct {
	ServiceAmount float64 `json:"service_amount"`
	DeliveryFee   float64 `json:"delivery_fee"`
	PlatformFee   float64 `json:"platform_fee"`
	VATAmount     float64 `json:"vat_amount"`
}

// Sum returns the total of the four parts.
func (b Breakdown) Sum() float64 {
	return b.ServiceAmount + b.DeliveryFee + b.PlatformFee + b.VATAmount
}

// SumsTo reports whether the parts add up to amount within rounding epsilon.
func (b Breakdown) SumsTo(amount float64) bool {
	return math.Abs(b.Sum()-amount) <= breakdownEpsilon
}

// Escrow event types recorded in the append-only log.
const (
	EventHoldRequested = "HOLD_REQUESTED"
	EventFundsCaptured = "FUNDS_CAPTURED"
	EventCodeMismatch  = "CODE_MISMATCH"
	EventFundsReleased = "FUNDS_RELEASED"
	EventRefunded      = "REFUNDED"
	EventDisputed      = "DISPUTED"
	EventAutoReleased  = "AUTO_RELEASED"
)

// EscrowEvent is one entry of the transaction's append-only audit log.
type EscrowEvent struct {
	ID         string       `json:"id"`
	EventType  string       `json:"event_type"`
	FromStatus EscrowStatus `json:"from_status"`
	ToStatus   EscrowStatus `json:"to_status"`
	Actor      string       `json:"actor"`
	At         time.Time    `json:"at"`
	Reason     string       `json:"reason,omitempty"`
}

// EscrowTransaction holds client funds against one announcement. Retained
// indefinitely for audit after reaching a terminal state.
type EscrowTransaction struct {
	ID             string
	AnnouncementID string
	ClientID       string
	DelivererID    string
	Amount         float64
	Currency       string
	Breakdown      Breakdown
	Status         EscrowStatus
	ProcessorRef   string
	HeldUntil      time.Time
	ValidationCode string
	CodeAttempts   int
	DisputeRaised  bool
	Events         []EscrowEvent
	Metadata       map[string]string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CapturedAt     time.Time
	ReleasedAt     time.Time
	RefundedAt     time.Time
}

// DeriveEscrowStatus replays an event log and returns the final status it
// implies. An empty log means the transaction never left PENDING.
func DeriveEscrowStatus(events []EscrowEvent) EscrowStatus {
	status := EscrowPending
	for _, e := range events {
		if e.ToStatus.Valid() && e.ToStatus != status {
			status = e.ToStatus
		}
	}
	return status
}

// LedgerEntry is one wallet movement. The ledger written alongside a
// release is the source of truth for deliverer-facing balances.
type LedgerEntry struct {
	ID        string
	Account   string // deliverer id or PlatformAccount
	EscrowID  string
	Amount    float64
	Currency  string
	EntryType string
	CreatedAt time.Time
}

// PlatformAccount is the ledger account collecting platform fees.
const PlatformAccount = "platform"

// Ledger entry types.
const (
	LedgerCreditRelease = "CREDIT_RELEASE"
	LedgerCreditFee     = "CREDIT_FEE"
	LedgerDebitRefund   = "DEBIT_REFUND"
)

// Round2 rounds a monetary amount to cents.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
