// Package gateway delivers bot messages through the TIMS HTTP API.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"elaqe.org/internal/obs"
)

const maxResponseBytes = 1 << 20

var (
	ErrNoRecipients = errors.New("gateway: no recipients")
	// ErrUnavailable is returned while the circuit breaker rejects calls.
	ErrUnavailable = errors.New("gateway: temporarily unavailable")
)

// errUpstream marks 5xx responses as breaker failures without turning them into call errors.
var errUpstream = errors.New("gateway: upstream error")

// Request is one bot message addressed to gateway usernames.
type Request struct {
	Recipients     []string
	CorporationIDs []int
	Message        string
	Notify         bool
}

// Credentials authenticate the caller at the gateway. Empty fields fall back to the client defaults.
type Credentials struct {
	UUID        string
	AccessToken string
}

// Response is the gateway reply. Data is the JSON body, or {"raw": body} when the body is not JSON.
type Response struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
}

// Delivered reports a 2xx reply.
func (r Response) Delivered() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Sender is the delivery seam used by the dispatch engine.
type Sender interface {
	Send(ctx context.Context, req Request, creds Credentials) (Response, error)
}

// Client posts bot messages to the gateway. It performs a single attempt per call.
type Client struct {
	url      string
	http     *http.Client
	defaults Credentials
	breaker  *gobreaker.CircuitBreaker
}

var _ Sender = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithDefaults sets the process-wide credentials used when an institution has none.
func WithDefaults(creds Credentials) Option {
	return func(cl *Client) { cl.defaults = creds }
}

// WithBreaker trips after maxFailures consecutive failures and stays open for cooldown.
// An open breaker fails the call; it never schedules a retry.
func WithBreaker(maxFailures int, cooldown time.Duration) Option {
	return func(cl *Client) {
		if maxFailures <= 0 {
			return
		}
		st := gobreaker.Settings{
			Name:        "tims",
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(maxFailures)
			},
			IsSuccessful: func(err error) bool {
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				obs.Logger().Info("circuit breaker state",
					zap.String("name", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		}
		cl.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, http: &http.Client{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type payload struct {
	Users        []string    `json:"users"`
	Corporation  corporation `json:"corporation"`
	Message      string      `json:"message"`
	Notification bool        `json:"notification"`
}

type corporation struct {
	ID []int `json:"id"`
}

// Send posts req once. Transport failures are returned as errors; any HTTP
// reply, including non-2xx, is returned as a Response.
func (c *Client) Send(ctx context.Context, req Request, creds Credentials) (Response, error) {
	if len(req.Recipients) == 0 {
		return Response{}, ErrNoRecipients
	}
	var (
		out Response
		err error
	)
	if c.breaker == nil {
		out, err = c.do(ctx, req, c.resolve(creds))
	} else {
		var v interface{}
		v, err = c.breaker.Execute(func() (interface{}, error) {
			return c.do(ctx, req, c.resolve(creds))
		})
		if r, ok := v.(Response); ok {
			out = r
		}
	}
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, errUpstream):
		return out, nil
	case err != nil:
		return Response{}, err
	}
	return out, nil
}

func (c *Client) resolve(creds Credentials) Credentials {
	if strings.TrimSpace(creds.UUID) == "" {
		creds.UUID = c.defaults.UUID
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		creds.AccessToken = c.defaults.AccessToken
	}
	return creds
}

func (c *Client) do(ctx context.Context, req Request, creds Credentials) (Response, error) {
	ids := req.CorporationIDs
	if ids == nil {
		ids = []int{}
	}
	body, err := json.Marshal(payload{
		Users:        req.Recipients,
		Corporation:  corporation{ID: ids},
		Message:      req.Message,
		Notification: req.Notify,
	})
	if err != nil {
		return Response{}, fmt.Errorf("gateway: encode payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("gateway: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("accessToken", creds.AccessToken)
	httpReq.Header.Set("uuid", creds.UUID)

	start := time.Now()
	res, err := c.http.Do(httpReq)
	if err != nil {
		obs.ObserveGateway(0, time.Since(start))
		return Response{}, fmt.Errorf("gateway: post: %w", err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	obs.ObserveGateway(res.StatusCode, time.Since(start))
	if err != nil {
		return Response{}, fmt.Errorf("gateway: read response: %w", err)
	}

	out := Response{StatusCode: res.StatusCode, Data: decodeBody(raw)}
	if res.StatusCode >= 500 {
		return out, errUpstream
	}
	return out, nil
}

func decodeBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return wrapped
}
