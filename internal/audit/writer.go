package audit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"elaqe.org/internal/ids"
	"elaqe.org/internal/obs"
)

// Publisher forwards appended message log entries to an external stream.
type Publisher interface {
	PublishMessageLog(ctx context.Context, entry MessageLog) error
}

// Writer appends audit entries and optionally mirrors message logs to a Publisher.
type Writer struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

type WriterOption func(*Writer)

// WithPublisher mirrors every stored message log entry to p.
func WithPublisher(p Publisher) WriterOption {
	return func(w *Writer) { w.publisher = p }
}

func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWriter(store Store, opts ...WriterOption) *Writer {
	w := &Writer{store: store, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// RecordMessage validates and appends a message log entry.
func (w *Writer) RecordMessage(ctx context.Context, entry MessageLog) (MessageLog, error) {
	if err := entry.validate(); err != nil {
		return MessageLog{}, fmt.Errorf("%w: type=%q action=%q", err, entry.Type, entry.Action)
	}
	entry.ID = ids.New()
	entry.CreatedAt = w.now().UTC()
	if err := w.store.AppendMessage(ctx, &entry); err != nil {
		return MessageLog{}, fmt.Errorf("audit: append message log: %w", err)
	}
	if w.publisher != nil {
		if err := w.publisher.PublishMessageLog(ctx, entry); err != nil {
			obs.LoggerFrom(ctx).Warn("audit publish failed", zap.String("log_id", entry.ID), zap.Error(err))
		}
	}
	return entry, nil
}

// RecordUser validates and appends a user log entry.
func (w *Writer) RecordUser(ctx context.Context, entry UserLog) (UserLog, error) {
	if err := entry.validate(); err != nil {
		return UserLog{}, fmt.Errorf("%w: action=%q", err, entry.Action)
	}
	if entry.Changes == nil {
		entry.Changes = map[string]any{}
	}
	entry.ID = ids.New()
	entry.CreatedAt = w.now().UTC()
	if err := w.store.AppendUser(ctx, &entry); err != nil {
		return UserLog{}, fmt.Errorf("audit: append user log: %w", err)
	}
	return entry, nil
}

// TryMessage records entry and discards the result. Failures are logged and
// counted, never returned: audit writes must not break the primary flow.
func (w *Writer) TryMessage(ctx context.Context, entry MessageLog) {
	if _, err := w.RecordMessage(ctx, entry); err != nil {
		obs.AuditWriteFailed("message")
		obs.LoggerFrom(ctx).Warn("message log write failed",
			zap.String("type", string(entry.Type)),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// TryUser is the attempt-and-ignore counterpart of RecordUser.
func (w *Writer) TryUser(ctx context.Context, entry UserLog) {
	if _, err := w.RecordUser(ctx, entry); err != nil {
		obs.AuditWriteFailed("user")
		obs.LoggerFrom(ctx).Warn("user log write failed",
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}
