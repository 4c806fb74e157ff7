package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"shiporch/internal/metrics"
	"shiporch/internal/shipment"
)

// OrderEvent is an order-state change published by the order service.
type OrderEvent struct {
	OrderID  string             `json:"order_id"`
	State    string             `json:"state"`
	Shipment *shipment.Shipment `json:"shipment,omitempty"`
}

// Reader is the subset of kafka.Reader the observer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// BookFunc books the shipment of an order that reached the trigger state.
type BookFunc func(ctx context.Context, s shipment.Shipment) error

// OrderObserver consumes order-state changes and calls the booking
// pipeline directly when an order reaches TriggerState.
type OrderObserver struct {
	reader       Reader
	book         BookFunc
	triggerState string
	timeout      time.Duration
	attempts     int
	backoff      time.Duration
	log          *zap.Logger
}

func NewOrderObserver(brokers []string, topic, groupID, triggerState string, book BookFunc, log *zap.Logger) *OrderObserver {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return NewOrderObserverWithReader(r, triggerState, book, log)
}

func NewOrderObserverWithReader(r Reader, triggerState string, book BookFunc, log *zap.Logger) *OrderObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderObserver{
		reader:       r,
		book:         book,
		triggerState: triggerState,
		timeout:      30 * time.Second,
		attempts:     3,
		backoff:      time.Second,
		log:          log,
	}
}

// Start blocks until ctx is cancelled. A failed booking is retried a few
// times with backoff; after that the event is logged as dropped and
// committed, since a consumer group does not redeliver a message it has
// already fetched. Undecodable messages are committed and skipped.
func (o *OrderObserver) Start(ctx context.Context) {
	o.log.Info("order observer started", zap.String("trigger_state", o.triggerState))
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := o.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Warn("fetch order event", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}
		if err := o.handleWithRetry(ctx, m); err != nil {
			if ctx.Err() != nil {
				return
			}
			o.log.Error("order event dropped",
				zap.Int64("offset", m.Offset),
				zap.String("key", string(m.Key)),
				zap.ByteString("value", m.Value),
				zap.Int("attempts", o.attempts),
				zap.Error(err))
			metrics.OperationErrorsTotal.WithLabelValues("order_event_dropped").Inc()
		}
		if err := o.reader.CommitMessages(ctx, m); err != nil {
			o.log.Warn("commit order event", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

func (o *OrderObserver) handleWithRetry(ctx context.Context, m kafka.Message) error {
	wait := o.backoff
	var err error
	for i := 1; i <= o.attempts; i++ {
		if err = o.handle(ctx, m); err == nil {
			return nil
		}
		if i == o.attempts {
			break
		}
		o.log.Warn("order event failed, retrying",
			zap.Int64("offset", m.Offset), zap.Int("attempt", i), zap.Error(err))
		if !sleep(ctx, wait) {
			return ctx.Err()
		}
		wait *= 2
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (o *OrderObserver) handle(ctx context.Context, m kafka.Message) error {
	var ev OrderEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		o.log.Warn("skip undecodable order event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if ev.State != o.triggerState {
		return nil
	}
	if ev.Shipment == nil {
		o.log.Warn("order event without shipment", zap.String("order_id", ev.OrderID))
		return nil
	}
	s := *ev.Shipment
	if s.OrderID == "" {
		s.OrderID = ev.OrderID
	}
	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return o.book(pctx, s)
}

func (o *OrderObserver) Close() error {
	return o.reader.Close()
}
