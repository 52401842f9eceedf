package processor

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"crowdship-engine/internal/apperr"
)

// Simulated is an in-process processor used in development and tests. It
// accepts every request and remembers captured references so refunds can be
// checked against them.
type Simulated struct {
	mu       sync.Mutex
	captured map[string]string // escrow id -> processor ref

	// CaptureFunc, RefundFunc and TransferFunc override the default
	// behavior when set.
	CaptureFunc  func(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	RefundFunc   func(ctx context.Context, req RefundRequest) error
	TransferFunc func(ctx context.Context, req TransferRequest) error
}

// NewSimulated creates a Simulated processor.
func NewSimulated() *Simulated {
	return &Simulated{captured: make(map[string]string)}
}

// Capture accepts the capture and mints a processor reference.
func (s *Simulated) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if s.CaptureFunc != nil {
		return s.CaptureFunc(ctx, req)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("capture %s: non-positive amount: %w", req.EscrowID, apperr.ErrProcessor)
	}
	ref := "pay_" + uuid.NewString()
	s.mu.Lock()
	s.captured[req.EscrowID] = ref
	s.mu.Unlock()
	return &CaptureResult{ProcessorRef: ref}, nil
}

// Refund accepts the refund when the reference matches a prior capture.
func (s *Simulated) Refund(ctx context.Context, req RefundRequest) error {
	if s.RefundFunc != nil {
		return s.RefundFunc(ctx, req)
	}
	s.mu.Lock()
	ref, ok := s.captured[req.EscrowID]
	s.mu.Unlock()
	if ok && ref != req.ProcessorRef {
		return fmt.Errorf("refund %s: reference mismatch: %w", req.EscrowID, apperr.ErrProcessor)
	}
	return nil
}

// Transfer accepts the payout.
func (s *Simulated) Transfer(ctx context.Context, req TransferRequest) error {
	if s.TransferFunc != nil {
		return s.TransferFunc(ctx, req)
	}
	if req.Account == "" {
		return fmt.Errorf("transfer %s: empty account: %w", req.EscrowID, apperr.ErrProcessor)
	}
	return nil
}
