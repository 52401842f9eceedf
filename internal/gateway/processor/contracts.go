// Package processor talks to the external payment processor. The engine
// only ever asks it to capture, refund or transfer money; account and card
// handling live on the processor side.
package processor

import (
	"context"
	"errors"
)

// ErrTransient marks processor failures worth retrying.
var ErrTransient = errors.New("transient processor failure")

// CaptureRequest asks the processor to capture client funds for an escrow
// transaction.
type CaptureRequest struct {
	EscrowID string
	ClientID string
	Amount   float64
	Currency string
}

// CaptureResult carries the processor's reference for a capture.
type CaptureResult struct {
	ProcessorRef string
}

// RefundRequest asks the processor to return captured funds to the client.
type RefundRequest struct {
	EscrowID     string
	ProcessorRef string
	Amount       float64
	Currency     string
}

// TransferRequest asks the processor to pay out to a deliverer account.
type TransferRequest struct {
	EscrowID string
	Account  string
	Amount   float64
	Currency string
}

// Gateway is the payment processor port.
type Gateway interface {
	Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error)
	Refund(ctx context.Context, req RefundRequest) error
	Transfer(ctx context.Context, req TransferRequest) error
}
