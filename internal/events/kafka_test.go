package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"elaqe.org/internal/audit"
)

type memWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	closed  bool
	release chan struct{}
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.release != nil {
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *memWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func TestPublishMessageLog(t *testing.T) {
	w := &memWriter{}
	p := NewPublisherWithWriter(w, 0)

	entry := audit.MessageLog{ID: "l1", Type: audit.KindGroup, Action: audit.ActionDelivered, ActorUserID: "u1", ResponseCode: audit.Code(200)}
	if err := p.PublishMessageLog(context.Background(), entry); err != nil {
		t.Fatalf("PublishMessageLog: %v", err)
	}
	if err := p.Close(); err != nil || !w.closed {
		t.Fatalf("expected writer to be closed")
	}

	msgs := w.written()
	if len(msgs) != 1 || string(msgs[0].Key) != "u1" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	var got messageLogEvent
	if err := json.Unmarshal(msgs[0].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Event != "message_log.delivered" || got.Log.ID != "l1" || *got.Log.ResponseCode != 200 {
		t.Fatalf("unexpected event %+v", got)
	}

	if err := p.PublishMessageLog(context.Background(), entry); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
}

func TestSlowWriterDoesNotBlockAuditWrites(t *testing.T) {
	w := &memWriter{release: make(chan struct{})}
	p := NewPublisherWithWriter(w, 4)
	logs := audit.NewInMemory()
	writer := audit.NewWriter(logs, audit.WithPublisher(p))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			writer.TryMessage(context.Background(), audit.MessageLog{Type: audit.KindDirect, Action: audit.ActionSend, ActorUserID: "u1"})
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("audit writes waited on the kafka writer")
	}
	if n := len(logs.Messages()); n != 3 {
		t.Fatalf("expected 3 stored entries, got %d", n)
	}

	close(w.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(w.written()); n != 3 {
		t.Fatalf("expected queued entries to flush on Close, got %d", n)
	}
}

func TestPublishDropsWhenQueueFull(t *testing.T) {
	w := &memWriter{release: make(chan struct{})}
	p := NewPublisherWithWriter(w, 1)
	entry := audit.MessageLog{Type: audit.KindGroup, Action: audit.ActionSend, ActorUserID: "u1"}

	var full int
	for i := 0; i < 3; i++ {
		if err := p.PublishMessageLog(context.Background(), entry); errors.Is(err, ErrQueueFull) {
			full++
		}
	}
	if full == 0 {
		t.Fatalf("expected at least one entry to be dropped")
	}
	close(w.release)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
