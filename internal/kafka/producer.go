package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var ErrProducerClosed = apperr.New(apperr.KindDependency, "PRODUCER_CLOSED", "kafka: producer is closed")

// writer is the subset of *kafka.Writer the producer drives.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer buffers messages in an inbox and writes them from one goroutine, so
// callers on the request path never wait on the broker.
type Producer struct {
	w       writer
	topic   string
	log     *zap.Logger
	inbox   chan kafka.Message
	closing chan struct{}
	closeCh chan struct{}

	// mu fences Publish against Close: no send on inbox starts after closing is closed.
	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int, log *zap.Logger) *Producer {
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}, topic, buf, log)
}

func newProducer(w writer, topic string, buf int, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{
		w:       w,
		topic:   topic,
		log:     log.Named("kafka.producer").With(zap.String("topic", topic)),
		inbox:   make(chan kafka.Message, buf),
		closing: make(chan struct{}),
		closeCh: make(chan struct{}),
	}
}

// Start runs the write loop until Close. Messages still buffered at Close are
// flushed before the writer shuts down.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			select {
			case m := <-p.inbox:
				p.write(ctx, m)
			case <-p.closing:
				for {
					select {
					case m := <-p.inbox:
						p.write(context.WithoutCancel(ctx), m)
					default:
						if err := p.w.Close(); err != nil {
							p.log.Warn("writer close failed", zap.Error(err))
						}
						return
					}
				}
			}
		}
	}()
}

func (p *Producer) write(ctx context.Context, m kafka.Message) {
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.log.Error("write failed", zap.ByteString("key", m.Key), zap.Error(err))
	}
}

// Publish queues one message. It blocks while the inbox is full, until ctx ends.
func (p *Producer) Publish(ctx context.Context, key, value []byte, headers ...kafka.Header) error {
	m := kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting messages; the write loop flushes the rest and exits.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.closing)
}

// WaitClosed blocks until the write loop has flushed and closed the writer.
func (p *Producer) WaitClosed() { <-p.closeCh }
