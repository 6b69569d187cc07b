package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, orders.TopicOrderLifecycle, 16, zap.NewNop())
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, p.Publish(ctx, []byte(k), []byte("v")))
	}
	p.Start(ctx)
	p.Close()
	p.WaitClosed()

	assert.Len(t, w.msgs, 3)
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(ctx, []byte("late"), nil), ErrProducerClosed)
	p.Close()
}

func TestProducer_NoAcceptedMessageLostToConcurrentClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		w := &fakeWriter{}
		p := newProducer(w, orders.TopicOrderLifecycle, 4, zap.NewNop())
		ctx := context.Background()
		p.Start(ctx)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			accepted int
		)
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for n := 0; n < 10; n++ {
					err := p.Publish(ctx, []byte("k"), []byte("v"))
					if errors.Is(err, ErrProducerClosed) {
						return
					}
					if assert.NoError(t, err) {
						mu.Lock()
						accepted++
						mu.Unlock()
					}
				}
			}()
		}
		p.Close()
		wg.Wait()
		p.WaitClosed()

		w.mu.Lock()
		assert.Len(t, w.msgs, accepted)
		w.mu.Unlock()
	}
}

type recordingSink struct {
	key     []byte
	value   []byte
	headers []kafka.Header
}

func (s *recordingSink) Publish(_ context.Context, key, value []byte, headers ...kafka.Header) error {
	s.key, s.value, s.headers = key, value, headers
	return nil
}

func TestEventPublisher_Envelope(t *testing.T) {
	sink := &recordingSink{}
	p := &EventPublisher{out: sink, producer: "presale-api"}
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	err := p.Publish(context.Background(), orders.Event{
		Type: orders.EventOrderPaid,
		Order: &orders.Order{
			ID: "order-1", OfferID: "offer-1", BuyerID: "buyer-1", Quantity: 2,
			Status:  orders.StatusPaid,
			Amounts: orders.Amounts{Total: decimal.RequireFromString("25"), Currency: "USD"},
		},
		OccurredAt: at,
	})
	require.NoError(t, err)

	assert.Equal(t, "order-1", string(sink.key))
	var env orders.Envelope
	require.NoError(t, UnmarshalEnvelope(sink.value, &env))
	assert.Equal(t, orders.EventOrderPaid, env.EventType)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.Equal(t, "presale-api", env.Producer)
	assert.Equal(t, at, env.OccurredAt)
	assert.NotEmpty(t, env.EventID)

	payload, err := UnwrapPayload[orders.OrderEventPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, "25.00", payload.Total)
	assert.Equal(t, "paid", payload.Status)

	m := kafka.Message{Headers: sink.headers}
	assert.Equal(t, orders.EventOrderPaid, Header(m, HeaderEventType))
	assert.Equal(t, "1", Header(m, HeaderEventVersion))
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
	drained   chan struct{}
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, io.EOF
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	if len(r.committed) == 3 {
		close(r.drained)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_CommitPolicy(t *testing.T) {
	r := &fakeReader{drained: make(chan struct{})}
	for i := int64(0); i < 4; i++ {
		r.queue = append(r.queue, kafka.Message{Offset: i, Value: []byte(`{}`)})
	}
	c := newConsumer(r, 2, zap.NewNop())
	c.maxAttempts = 2

	var mu sync.Mutex
	attempts := map[int64]int{}
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		attempts[m.Offset]++
		n := attempts[m.Offset]
		mu.Unlock()
		switch m.Offset {
		case 1:
			if n == 1 {
				return errors.New("transient")
			}
		case 2:
			return backoff.Permanent(errors.New("poison"))
		case 3:
			return errors.New("down")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	select {
	case <-r.drained:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not commit in time")
	}
	// offset 3 exhausts its retries; give it time before stopping
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts[3] == 2
	}, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.ElementsMatch(t, []int64{0, 1, 2}, r.committed)
	assert.Equal(t, 1, attempts[2])
}
