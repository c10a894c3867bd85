package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"elaqe.org/internal/auth"
	"elaqe.org/internal/obs"
	"elaqe.org/internal/paging"
)

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	prev := obs.Logger()
	obs.SetLogger(zap.New(core))
	t.Cleanup(func() { obs.SetLogger(prev) })
	return logs
}

func TestLogEvent(t *testing.T) {
	logs := observeLogs(t)

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithActor(ctx, auth.Actor{UserID: "user-42"})

	if err := LogEvent(ctx, "audit.test", map[string]any{"foo": "bar"}); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	entries := logs.FilterMessage("audit").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["type"] != "audit" || fields["event"] != "audit.test" {
		t.Fatalf("unexpected entry: %v", fields)
	}
	if fields["request_id"] != "req-123" || fields["user_id"] != "user-42" {
		t.Fatalf("missing request context: %v", fields)
	}
	extra, ok := fields["fields"].(map[string]any)
	if !ok || extra["foo"] != "bar" {
		t.Fatalf("fields missing or incorrect: %v", fields["fields"])
	}

	if err := LogEvent(ctx, "  ", nil); err == nil {
		t.Fatalf("expected error for blank event")
	}
}

type failingStore struct{ *InMemory }

func (failingStore) AppendMessage(context.Context, *MessageLog) error { return errors.New("db down") }
func (failingStore) AppendUser(context.Context, *UserLog) error       { return errors.New("db down") }

func TestTryMessageSwallowsErrors(t *testing.T) {
	logs := observeLogs(t)
	w := NewWriter(failingStore{NewInMemory()})

	w.TryMessage(context.Background(), MessageLog{Type: KindGroup, Action: ActionSend, ActorUserID: "u1"})
	w.TryUser(context.Background(), UserLog{UserID: "u1", Action: UserUpdate})

	if logs.FilterMessage("message log write failed").Len() != 1 {
		t.Fatalf("expected message failure to be logged")
	}
	if logs.FilterMessage("user log write failed").Len() != 1 {
		t.Fatalf("expected user failure to be logged")
	}
}

func TestRecordMessageValidates(t *testing.T) {
	w := NewWriter(NewInMemory())
	_, err := w.RecordMessage(context.Background(), MessageLog{Type: "broadcast", Action: ActionSend, ActorUserID: "u1"})
	if !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if _, err := w.RecordUser(context.Background(), UserLog{UserID: "u1", Action: "login"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
}

type recordingPublisher struct {
	got []MessageLog
	err error
}

func (p *recordingPublisher) PublishMessageLog(_ context.Context, e MessageLog) error {
	p.got = append(p.got, e)
	return p.err
}

func TestWriterPublishes(t *testing.T) {
	observeLogs(t)
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	store := NewInMemory()
	w := NewWriter(store, WithPublisher(pub))

	entry, err := w.RecordMessage(context.Background(), MessageLog{Type: KindDirect, Action: ActionDelivered, ActorUserID: "u1", ResponseCode: Code(200)})
	if err != nil {
		t.Fatalf("publish errors must not fail the write: %v", err)
	}
	if len(pub.got) != 1 || pub.got[0].ID != entry.ID {
		t.Fatalf("expected entry to be published, got %+v", pub.got)
	}
	if len(store.Messages()) != 1 {
		t.Fatalf("expected entry stored")
	}
}

func TestMessageLogsVisibility(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store := NewInMemory()
	w := NewWriter(store, WithWriterClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}))
	ctx := context.Background()
	for _, e := range []MessageLog{
		{Type: KindGroup, Action: ActionSend, ActorUserID: "u1"},
		{Type: KindGroup, Action: ActionDelivered, ActorUserID: "u1"},
		{Type: KindDirect, Action: ActionSend, ActorUserID: "u2"},
	} {
		if _, err := w.RecordMessage(ctx, e); err != nil {
			t.Fatalf("RecordMessage: %v", err)
		}
	}

	r := NewReader(store)
	own, info, err := r.MessageLogs(ctx, auth.Actor{UserID: "u1"}, "", "", paging.Request{})
	if err != nil {
		t.Fatalf("MessageLogs: %v", err)
	}
	if len(own) != 2 || info.Limit != 50 || own[0].Action != ActionDelivered {
		t.Fatalf("unexpected own logs %+v (%+v)", own, info)
	}

	super := auth.Actor{UserID: "root", Permissions: auth.Permissions{IsSuperAdmin: true}}
	all, info, err := r.MessageLogs(ctx, super, "", ActionSend, paging.Request{})
	if err != nil {
		t.Fatalf("MessageLogs: %v", err)
	}
	if len(all) != 2 || info.Total != 2 {
		t.Fatalf("expected two send logs, got %+v", all)
	}

	if _, _, err := r.MessageLogs(ctx, super, "broadcast", "", paging.Request{}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected invalid filter error, got %v", err)
	}
}

func TestUserLogsVisibility(t *testing.T) {
	store := NewInMemory()
	w := NewWriter(store)
	ctx := context.Background()
	if _, err := w.RecordUser(ctx, UserLog{UserID: "u1", ActorUserID: "u1", Action: UserUpdate, Message: "Direct message sent"}); err != nil {
		t.Fatalf("RecordUser: %v", err)
	}

	r := NewReader(store)
	if _, _, err := r.UserLogs(ctx, auth.Actor{UserID: "u2"}, "u1", paging.Request{}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	logs, _, err := r.UserLogs(ctx, auth.Actor{UserID: "u1"}, "u1", paging.Request{})
	if err != nil {
		t.Fatalf("UserLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Changes == nil {
		t.Fatalf("unexpected logs %+v", logs)
	}
}
