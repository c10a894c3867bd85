package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actorCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elaqe_actor_cache_hits_total",
		Help: "Actor lookups served from the in-process cache.",
	})
	actorCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "elaqe_actor_cache_misses_total",
		Help: "Actor lookups that went to the user store.",
	})
)

// ActorSource loads the current permissions of a platform user.
type ActorSource interface {
	ActorByID(ctx context.Context, userID string) (Actor, error)
}

// Resolver turns verified token subjects into actors, caching lookups for a short TTL.
type Resolver struct {
	tokens *Tokens
	source ActorSource
	cache  *expirable.LRU[string, Actor]
}

// NewResolver builds a resolver. size <= 0 or ttl <= 0 disables caching.
func NewResolver(tokens *Tokens, source ActorSource, size int, ttl time.Duration) *Resolver {
	r := &Resolver{tokens: tokens, source: source}
	if size > 0 && ttl > 0 {
		r.cache = expirable.NewLRU[string, Actor](size, nil, ttl)
	}
	return r
}

// Authenticate verifies a bearer token and returns the actor it names.
func (r *Resolver) Authenticate(ctx context.Context, token string) (Actor, error) {
	claims, err := r.tokens.Parse(token)
	if err != nil {
		return Actor{}, err
	}
	return r.Actor(ctx, claims.Subject)
}

// Actor returns the actor for userID, from cache when possible.
func (r *Resolver) Actor(ctx context.Context, userID string) (Actor, error) {
	if r.cache != nil {
		if actor, ok := r.cache.Get(userID); ok {
			actorCacheHits.Inc()
			return actor, nil
		}
		actorCacheMisses.Inc()
	}
	actor, err := r.source.ActorByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrActorNotFound) || errors.Is(err, ErrActorInactive) {
			return Actor{}, fmt.Errorf("%w: %v", ErrUnauthorized, err)
		}
		return Actor{}, err
	}
	if r.cache != nil {
		r.cache.Add(userID, actor)
	}
	return actor, nil
}

// Forget drops a cached actor, e.g. after its permissions changed.
func (r *Resolver) Forget(userID string) {
	if r.cache != nil {
		r.cache.Remove(userID)
	}
}
