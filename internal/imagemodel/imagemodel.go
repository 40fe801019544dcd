// Package imagemodel picks the image generation model to use when a caller
// does not name one, and remembers the choice for a short while.
//
// The pick comes from the upstream's model listing. Listings differ between
// hosts, so "is this an image model?" is a heuristic over the id, declared
// type/category, tags, modalities and capability flags. The chosen id is kept
// in a single process-wide slot that expires after a TTL and can be dropped
// early when the upstream rejects it.
package imagemodel

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/howard-nolan/apiconsole/internal/provider"
)

// DefaultTTL is how long a resolved id is reused.
const DefaultTTL = 5 * time.Minute

// DefaultFallback is used when nothing better can be found.
const DefaultFallback = "flux"

var (
	imageIDPattern   = regexp.MustCompile(`image|img|vision|flux|turbo|sd|diffusion`)
	imageKindPattern = regexp.MustCompile(`image|vision`)
)

// Lister returns the upstream model listing.
type Lister interface {
	ListModels(ctx context.Context) ([]provider.ModelInfo, error)
}

// entry is the cached state. It is never mutated after being stored; a
// refresh stores a new one.
type entry struct {
	id        string
	fetchedAt time.Time
}

// Resolver resolves and caches the default image model. Safe for
// concurrent use. Concurrent refreshes may both hit the upstream; the last
// one to finish wins the slot.
type Resolver struct {
	lister   Lister
	fallback string
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger

	slot atomic.Pointer[entry]
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithLogger sets the logger used for listing failures.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a Resolver. An empty fallback means DefaultFallback;
// a non-positive ttl means DefaultTTL.
func NewResolver(lister Lister, fallback string, ttl time.Duration, opts ...Option) *Resolver {
	if fallback == "" {
		fallback = DefaultFallback
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Resolver{
		lister:   lister,
		fallback: fallback,
		ttl:      ttl,
		now:      time.Now,
		log:      zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Fallback returns the hardcoded last-resort model id.
func (r *Resolver) Fallback() string { return r.fallback }

// Resolve returns the default image model id. A cached id younger than the
// TTL is returned as is unless forceRefresh is set. If the listing cannot
// be fetched, the fallback is returned and nothing is cached.
func (r *Resolver) Resolve(ctx context.Context, forceRefresh bool) string {
	if !forceRefresh {
		if id, ok := r.Cached(); ok {
			return id
		}
	}

	list, err := r.lister.ListModels(ctx)
	if err != nil {
		r.log.Warn().Err(err).Str("fallback", r.fallback).Msg("model listing failed, using fallback image model")
		return r.fallback
	}

	id := Pick(list, r.fallback)
	r.slot.Store(&entry{id: id, fetchedAt: r.now()})
	r.log.Debug().Str("model", id).Int("listed", len(list)).Msg("resolved default image model")
	return id
}

// Cached returns the cached id if it is still fresh.
func (r *Resolver) Cached() (string, bool) {
	e := r.slot.Load()
	if e == nil || r.now().Sub(e.fetchedAt) >= r.ttl {
		return "", false
	}
	return e.id, true
}

// Invalidate drops the cached id.
func (r *Resolver) Invalidate() {
	r.slot.Store(nil)
}

// Pick chooses a default from a listing, in this order:
//
//  1. an image-capable model flagged as the provider default
//  2. the first image-capable model
//  3. any model flagged as the provider default
//  4. the first model
//  5. fallback
//
// Entries without an id are ignored.
func Pick(list []provider.ModelInfo, fallback string) string {
	var firstImage, firstDefault, first string
	for _, m := range list {
		if m.ID == "" {
			continue
		}
		image := IsImageCapable(m)
		if image && m.Default {
			return m.ID
		}
		if image && firstImage == "" {
			firstImage = m.ID
		}
		if m.Default && firstDefault == "" {
			firstDefault = m.ID
		}
		if first == "" {
			first = m.ID
		}
	}
	for _, id := range []string{firstImage, firstDefault, first} {
		if id != "" {
			return id
		}
	}
	return fallback
}

// IsImageCapable reports whether m looks like an image model.
func IsImageCapable(m provider.ModelInfo) bool {
	if m.ImageCapable {
		return true
	}
	if imageIDPattern.MatchString(strings.ToLower(m.ID)) {
		return true
	}
	if imageKindPattern.MatchString(strings.ToLower(m.Type)) ||
		imageKindPattern.MatchString(strings.ToLower(m.Category)) {
		return true
	}
	for _, tag := range m.Tags {
		if imageKindPattern.MatchString(strings.ToLower(tag)) {
			return true
		}
	}
	for _, mods := range [][]string{m.OutputModalities, m.InputModalities} {
		for _, mod := range mods {
			if strings.Contains(strings.ToLower(mod), "image") {
				return true
			}
		}
	}
	return false
}
