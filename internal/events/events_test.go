package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"shiporch/internal/shipment"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func sampleBooking() Booking {
	return Booking{EventID: "e-1", Type: TypeShipmentBooked, OrderID: "o-1", Carrier: "dummy", AWB: "A1", BookedAt: time.Unix(0, 0).UTC()}
}

func TestKafkaPublisher_KeysByOrder(t *testing.T) {
	fw := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(fw)
	require.NoError(t, p.PublishBooking(context.Background(), sampleBooking()))
	require.Len(t, fw.msgs, 1)
	require.Equal(t, "o-1", string(fw.msgs[0].Key))

	var got Booking
	require.NoError(t, json.Unmarshal(fw.msgs[0].Value, &got))
	require.Equal(t, "A1", got.AWB)
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	p := NewKafkaPublisherWithWriter(&fakeWriter{err: errors.New("broker down")})
	require.Error(t, p.PublishBooking(context.Background(), sampleBooking()))
}

type fakeChannel struct {
	key string
	msg amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) error {
	f.key, f.msg = key, msg
	return nil
}

func (f *fakeChannel) Close() error { return nil }

func TestRabbitPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p := NewRabbitPublisherWithChannel(ch, "bookings")
	require.NoError(t, p.PublishBooking(context.Background(), sampleBooking()))
	require.Equal(t, "bookings", ch.key)
	require.Equal(t, amqp.Persistent, ch.msg.DeliveryMode)
	require.Equal(t, "e-1", ch.msg.MessageId)
	require.NoError(t, p.Close())
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.msgs) == 0 {
		f.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := f.msgs[0]
	f.msgs = f.msgs[1:]
	return m, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

func TestOrderObserver_BooksOnTriggerState(t *testing.T) {
	ev := func(offset int64, state string, withShipment bool) kafka.Message {
		e := OrderEvent{OrderID: "o-1", State: state}
		if withShipment {
			e.Shipment = &shipment.Shipment{VendorID: "v"}
		}
		b, _ := json.Marshal(e)
		return kafka.Message{Offset: offset, Value: b}
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		ev(1, "processing", true),
		ev(2, "ready_to_ship", true),
		{Offset: 3, Value: []byte("{")},
		ev(4, "ready_to_ship", true),
	}}
	var booked []string
	calls := 0
	obs := NewOrderObserverWithReader(r, "ready_to_ship", func(_ context.Context, s shipment.Shipment) error {
		calls++
		booked = append(booked, s.OrderID)
		if calls >= 2 {
			return errors.New("carrier down")
		}
		return nil
	}, nil)
	obs.backoff = time.Millisecond

	obs.Start(ctx)

	// offset 4 fails every attempt and is dropped
	require.Equal(t, []string{"o-1", "o-1", "o-1", "o-1"}, booked)
	require.Equal(t, []int64{1, 2, 3, 4}, r.committed)
}

func TestOrderObserver_RetriesTransientFailure(t *testing.T) {
	b, err := json.Marshal(OrderEvent{OrderID: "o-2", State: "ready_to_ship", Shipment: &shipment.Shipment{}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	r := &fakeReader{cancel: cancel, msgs: []kafka.Message{{Offset: 7, Value: b}}}
	calls := 0
	obs := NewOrderObserverWithReader(r, "ready_to_ship", func(_ context.Context, s shipment.Shipment) error {
		calls++
		if calls == 1 {
			return errors.New("timeout")
		}
		require.Equal(t, "o-2", s.OrderID)
		return nil
	}, nil)
	obs.backoff = time.Millisecond

	obs.Start(ctx)

	require.Equal(t, 2, calls)
	require.Equal(t, []int64{7}, r.committed)
}
