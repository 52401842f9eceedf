package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crowdship-engine/internal/gateway/processor"
	"crowdship-engine/internal/logx"
)

// Store is the persistence surface the dispatcher drains. Claim reserves
// a row for this worker; MarkFailed releases the reservation for a retry.
type Store interface {
	ListPending(ctx context.Context, limit int) ([]Event, error)
	Claim(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string) error
}

// Publisher delivers notify events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// ProcessorPort executes staged refund and transfer tasks.
type ProcessorPort interface {
	Refund(ctx context.Context, req processor.RefundRequest) error
	Transfer(ctx context.Context, req processor.TransferRequest) error
}

type counter interface {
	Inc()
}

// Dispatcher drains the outbox table: notify rows go to the bus, processor
// rows are executed against the payment gateway. Each row is claimed
// before dispatch, so concurrent workers never execute the same transfer
// twice; a failed dispatch releases the claim and is retried next pass.
type Dispatcher struct {
	store      Store
	publisher  Publisher // nil when the bus is not configured
	gateway    ProcessorPort
	batchSize  int
	dispatched counter
	logger     logx.Logger
	now        func() time.Time
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(store Store, publisher Publisher, gateway ProcessorPort, batchSize int, dispatched counter, logger logx.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Dispatcher{
		store:      store,
		publisher:  publisher,
		gateway:    gateway,
		batchSize:  batchSize,
		dispatched: dispatched,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run drains the outbox on a fixed interval until the context is done.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if _, err := d.Drain(ctx); err != nil {
				d.logger.Error("outbox drain failed", logx.Any("err", err))
			}
		}
	}
}

// Drain performs one dispatch pass and returns the number of events
// successfully dispatched.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	events, err := d.store.ListPending(ctx, d.batchSize)
	if err != nil {
		return 0, err
	}

	var done int
	for _, ev := range events {
		if ev.Kind == KindNotify && d.publisher == nil {
			continue // шина не настроена, строки остаются pending
		}
		claimed, err := d.store.Claim(ctx, ev.ID, d.now())
		if err != nil {
			return done, err
		}
		if !claimed {
			continue // строку забрал другой воркер
		}
		if err := d.dispatch(ctx, ev); err != nil {
			d.logger.Warn("outbox dispatch failed",
				logx.String("outbox_id", ev.ID),
				logx.String("kind", ev.Kind),
				logx.Int("attempts", ev.Attempts+1),
				logx.Any("err", err),
			)
			if err := d.store.MarkFailed(ctx, ev.ID); err != nil {
				return done, err
			}
			continue
		}
		if d.dispatched != nil {
			d.dispatched.Inc()
		}
		done++
	}
	return done, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) error {
	switch ev.Kind {
	case KindNotify:
		return d.publisher.Publish(ctx, ev.Topic, ev.Key, ev.Payload)

	case KindProcessorRefund:
		var task ProcessorTask
		if err := json.Unmarshal(ev.Payload, &task); err != nil {
			return fmt.Errorf("decode refund task: %w", err)
		}
		return d.gateway.Refund(ctx, processor.RefundRequest{
			EscrowID:     task.EscrowID,
			ProcessorRef: task.ProcessorRef,
			Amount:       task.Amount,
			Currency:     task.Currency,
		})

	case KindProcessorTransfer:
		var task ProcessorTask
		if err := json.Unmarshal(ev.Payload, &task); err != nil {
			return fmt.Errorf("decode transfer task: %w", err)
		}
		return d.gateway.Transfer(ctx, processor.TransferRequest{
			EscrowID: task.EscrowID,
			Account:  task.Account,
			Amount:   task.Amount,
			Currency: task.Currency,
		})

	default:
		return fmt.Errorf("unknown outbox kind %q", ev.Kind)
	}
}
