package processor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"crowdship-engine/internal/apperr"
	testlog "crowdship-engine/internal/testutil"
)

type fakeGateway struct {
	captureFn  func(context.Context, CaptureRequest) (*CaptureResult, error)
	refundFn   func(context.Context, RefundRequest) error
	transferFn func(context.Context, TransferRequest) error
}

func (f *fakeGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	return f.captureFn(ctx, req)
}
func (f *fakeGateway) Refund(ctx context.Context, req RefundRequest) error {
	return f.refundFn(ctx, req)
}
func (f *fakeGateway) Transfer(ctx context.Context, req TransferRequest) error {
	return f.transferFn(ctx, req)
}

type counterStub struct{ n int64 }

func (c *counterStub) Inc() { atomic.AddInt64(&c.n, 1) }
func (c *counterStub) Count() int64 {
	return atomic.LoadInt64(&c.n)
}

func TestRetryingGateway_Capture_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeGateway{
		captureFn: func(context.Context, CaptureRequest) (*CaptureResult, error) {
			switch atomic.AddInt32(&calls, 1) {
			case 1, 2:
				return nil, fmt.Errorf("processor unavailable: %w", ErrTransient)
			default:
				return &CaptureResult{ProcessorRef: "pay_42"}, nil
			}
		},
	}
	ctr := &counterStub{}
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   0,
		MaxDelay:    0,
	}
	g := NewRetryingGateway(next, rec.Logger(), ctr, cfg)
	if g == nil {
		t.Fatalf("expected non-nil gw")
	}
	got, err := g.Capture(context.Background(), CaptureRequest{EscrowID: "escrow_42", Amount: 10})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got == nil || got.ProcessorRef != "pay_42" {
		t.Fatalf("unexpected result: %#v", got)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if ctr.Count() != 2 {
		t.Fatalf("expected 2 retries, got %d", ctr.Count())
	}
}

func TestRetryingGateway_Capture_NoRetryOnNonRetryable(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeGateway{
		captureFn: func(context.Context, CaptureRequest) (*CaptureResult, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("card declined") // не retryable
		},
	}

	ctr := &counterStub{}
	cfg := RetryConfig{MaxAttempts: 5, BaseDelay: 0, MaxDelay: 0}

	g := NewRetryingGateway(next, rec.Logger(), ctr, cfg)

	_, err := g.Capture(context.Background(), CaptureRequest{EscrowID: "escrow_42", Amount: 10})
	if err == nil {
		t.Fatal("expected error")
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if ctr.Count() != 0 {
		t.Fatalf("expected 0 retries, got %d", ctr.Count())
	}
}

func TestRetryingGateway_Capture_ProcessorFailureIsPermanent(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeGateway{
		captureFn: func(context.Context, CaptureRequest) (*CaptureResult, error) {
			atomic.AddInt32(&calls, 1)
			return nil, fmt.Errorf("capture rejected: %w", apperr.ErrProcessor)
		},
	}

	ctr := &counterStub{}
	g := NewRetryingGateway(next, rec.Logger(), ctr, RetryConfig{MaxAttempts: 5, BaseDelay: 0, MaxDelay: 0})

	_, err := g.Capture(context.Background(), CaptureRequest{EscrowID: "escrow_42", Amount: 10})
	if !errors.Is(err, apperr.ErrProcessor) {
		t.Fatalf("expected processor error, got %v", err)
	}

	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if ctr.Count() != 0 {
		t.Fatalf("expected 0 retries, got %d", ctr.Count())
	}
}

func TestRetryingGateway_Refund_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	var calls int32
	next := &fakeGateway{
		refundFn: func(context.Context, RefundRequest) error {
			switch atomic.AddInt32(&calls, 1) {
			case 1:
				return fmt.Errorf("rate limit: %w", ErrTransient)
			default:
				return nil
			}
		},
	}

	ctr := &counterStub{}
	cfg := RetryConfig{MaxAttempts: 3, BaseDelay: 0, MaxDelay: 0}

	g := NewRetryingGateway(next, rec.Logger(), ctr, cfg)

	if err := g.Refund(context.Background(), RefundRequest{EscrowID: "escrow_42", Amount: 10}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if ctr.Count() != 1 {
		t.Fatalf("expected 1 retry, got %d", ctr.Count())
	}
}

func TestRetryingGateway_Transfer_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	rec := testlog.New()

	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	next := &fakeGateway{
		transferFn: func(context.Context, TransferRequest) error {
			atomic.AddInt32(&calls, 1)
			cancel()
			return fmt.Errorf("timeout: %w", ErrTransient)
		},
	}

	g := NewRetryingGateway(next, rec.Logger(), nil, RetryConfig{MaxAttempts: 5, BaseDelay: 0, MaxDelay: 0})

	if err := g.Transfer(ctx, TransferRequest{EscrowID: "escrow_42", Account: "d-1", Amount: 10}); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
