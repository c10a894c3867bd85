package messaging

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"elaqe.org/internal/audit"
	"elaqe.org/internal/directory"
	"elaqe.org/internal/gateway"
	"elaqe.org/internal/groups"
	"elaqe.org/internal/msgcrypt"
	"elaqe.org/internal/obs"
)

const maxErrorMessageLen = 500

// Deps are the collaborators of the Engine.
type Deps struct {
	Groups    groups.Store
	Directory directory.Reader
	Messages  Store
	Codec     *msgcrypt.Codec
	Gateway   gateway.Sender
	Audit     *audit.Writer
}

// Engine authorizes, persists, delivers and audits messages.
type Engine struct {
	groups       groups.Store
	dir          directory.Reader
	store        Store
	codec        *msgcrypt.Codec
	gateway      gateway.Sender
	audit        *audit.Writer
	pickSender   SenderStrategy
	readTracking bool
	now          func() time.Time
}

type Option func(*Engine)

// WithSenderStrategy replaces the default AdminFirst attribution.
func WithSenderStrategy(s SenderStrategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.pickSender = s
		}
	}
}

// WithReadTracking enables MarkRead.
func WithReadTracking(enabled bool) Option {
	return func(e *Engine) { e.readTracking = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func NewEngine(d Deps, opts ...Option) *Engine {
	e := &Engine{
		groups:     d.Groups,
		dir:        d.Directory,
		store:      d.Messages,
		codec:      d.Codec,
		gateway:    d.Gateway,
		audit:      d.Audit,
		pickSender: AdminFirst,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func validateContent(content string) (string, error) {
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n == 0 || utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrInvalidContent
	}
	return content, nil
}

func credentials(inst directory.Institution) gateway.Credentials {
	return gateway.Credentials{UUID: inst.TimsUUID, AccessToken: inst.TimsAccessToken}
}

// recipients returns the distinct gateway usernames of the active employees among ids, in order.
func (e *Engine) recipients(ctx context.Context, ids []string) ([]string, error) {
	emps, err := e.dir.Employees(ctx, ids)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(emps))
	out := make([]string, 0, len(emps))
	for _, emp := range emps {
		if !emp.IsActive || emp.TimsUsername == "" {
			continue
		}
		if _, ok := seen[emp.TimsUsername]; ok {
			continue
		}
		seen[emp.TimsUsername] = struct{}{}
		out = append(out, emp.TimsUsername)
	}
	return out, nil
}

// recordOutcome writes the delivered or failed entry for a completed gateway call.
func (e *Engine) recordOutcome(ctx context.Context, entry audit.MessageLog, res gateway.Response, sendErr error) bool {
	kind := string(entry.Type)
	if sendErr != nil {
		entry.Action = audit.ActionFailed
		entry.ErrorMessage = truncate(sendErr.Error())
		e.audit.TryMessage(ctx, entry)
		obs.ObserveDispatch(kind, "error")
		obs.LoggerFrom(ctx).Warn("message delivery failed", zap.String("type", kind), zap.Error(sendErr))
		return false
	}
	delivered := res.Delivered()
	entry.ResponseCode = audit.Code(res.StatusCode)
	if delivered {
		entry.Action = audit.ActionDelivered
		obs.ObserveDispatch(kind, "delivered")
	} else {
		entry.Action = audit.ActionFailed
		entry.ErrorMessage = truncate(string(res.Data))
		obs.ObserveDispatch(kind, "failed")
	}
	e.audit.TryMessage(ctx, entry)
	return delivered
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxErrorMessageLen {
		return s
	}
	return string([]rune(s)[:maxErrorMessageLen])
}

// open fills in the decrypted content of m.
func (e *Engine) open(m Message) Message {
	m.Content = e.codec.OpenOrPlaceholder(m.Sealed)
	return m
}

func (e *Engine) activeGroup(ctx context.Context, id string) (groups.Group, error) {
	g, err := e.groups.Get(ctx, id)
	if err != nil {
		return groups.Group{}, err
	}
	if !g.IsActive {
		return groups.Group{}, fmt.Errorf("%w: %s", groups.ErrInactive, id)
	}
	return g, nil
}
