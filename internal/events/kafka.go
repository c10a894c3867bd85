// Package events mirrors audit entries to Kafka for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/obs"
)

const (
	DefaultQueueSize = 1024
	writeTimeout     = 10 * time.Second
)

var (
	ErrClosed    = errors.New("events: publisher closed")
	ErrQueueFull = errors.New("events: publish queue full")
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher writes message log entries to a topic, keyed by actor so each
// actor's history stays ordered within a partition. PublishMessageLog only
// enqueues; a single goroutine drains the queue into the writer, so a slow
// broker never holds up dispatch. Entries are dropped when the queue is full.
type Publisher struct {
	writer MessageWriter
	queue  chan kafka.Message
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ audit.Publisher = (*Publisher)(nil)

func NewPublisher(brokers []string, topic string) *Publisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				publishFailed(len(msgs), err)
			}
		},
	}
	return NewPublisherWithWriter(w, DefaultQueueSize)
}

// NewPublisherWithWriter wraps an existing writer. queueSize <= 0 selects DefaultQueueSize.
func NewPublisherWithWriter(w MessageWriter, queueSize int) *Publisher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	p := &Publisher{
		writer: w,
		queue:  make(chan kafka.Message, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

type messageLogEvent struct {
	Event string           `json:"event"`
	Log   audit.MessageLog `json:"log"`
}

func (p *Publisher) PublishMessageLog(_ context.Context, entry audit.MessageLog) error {
	b, err := json.Marshal(messageLogEvent{Event: "message_log." + string(entry.Action), Log: entry})
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(entry.ActorUserID),
		Value: b,
		Time:  time.Now(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		obs.AuditWriteFailed("publish")
		return ErrQueueFull
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			publishFailed(1, err)
		}
		cancel()
	}
}

// Close stops accepting entries, flushes the queue and closes the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

func publishFailed(n int, err error) {
	obs.AuditWriteFailed("publish")
	obs.Logger().Warn("kafka publish failed", zap.Int("messages", n), zap.Error(err))
}
