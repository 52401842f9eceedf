package processor

import (
	"context"
	"errors"
	"time"

	"crowdship-engine/internal/logx"
)

type counter interface {
	Inc()
}

// RetryConfig описывает поведение RetryingGateway
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// RetryingGateway wraps a processor gateway with bounded retries on
// transient failures.
type RetryingGateway struct {
	next    Gateway
	logger  logx.Logger
	retries counter
	cfg     RetryConfig
	sleep   func(time.Duration)
}

// NewRetryingGateway конструктор который проверяет, что next не nil и возвращает RetryingGateway
func NewRetryingGateway(next Gateway, logger logx.Logger, retries counter, cfg RetryConfig) *RetryingGateway {
	if next == nil {
		return nil
	}
	return &RetryingGateway{next: next, logger: logger, retries: retries, cfg: cfg, sleep: time.Sleep}
}

// Capture retries transient capture failures.
func (g *RetryingGateway) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		res, err := g.next.Capture(ctx, req)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if !g.retryAfter(ctx, "Capture", attempt, err) {
			break
		}
	}
	return nil, lastErr
}

// Refund retries transient refund failures.
func (g *RetryingGateway) Refund(ctx context.Context, req RefundRequest) error {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		err := g.next.Refund(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if !g.retryAfter(ctx, "Refund", attempt, err) {
			break
		}
	}
	return lastErr
}

// Transfer retries transient transfer failures.
func (g *RetryingGateway) Transfer(ctx context.Context, req TransferRequest) error {
	var lastErr error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		err := g.next.Transfer(ctx, req)
		if err == nil {
			return nil
		}
		lastErr = err
		if !g.retryAfter(ctx, "Transfer", attempt, err) {
			break
		}
	}
	return lastErr
}

// retryAfter решает, стоит ли повторять, и ждет перед следующей попыткой
func (g *RetryingGateway) retryAfter(ctx context.Context, method string, attempt int, err error) bool {
	if ctx.Err() != nil || attempt == g.cfg.MaxAttempts || !isRetryable(err) {
		return false
	}
	delay := backoff(g.cfg.BaseDelay, g.cfg.MaxDelay, attempt)
	if g.retries != nil {
		g.retries.Inc()
	}
	g.logger.Warn("processor gateway retry",
		logx.String("method", method),
		logx.Int("attempt", attempt),
		logx.Duration("delay", delay),
		logx.Any("err", err),
	)
	return sleepWithContext(ctx, g.sleep, delay)
}

// isRetryable определяет, является ли ошибка повторяемой
func isRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// backoff вычисляет задержку повтора
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base << (attempt - 1)
	if d > max {
		return max
	}
	return d
}

func sleepWithContext(ctx context.Context, sleep func(time.Duration), d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
