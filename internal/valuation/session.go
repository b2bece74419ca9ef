package valuation

import (
	"context"
	"sync"

	"github.com/couchcryptid/parcel-valuation-service/internal/domain"
	"github.com/couchcryptid/parcel-valuation-service/internal/lru"
)

// Publisher receives every committed Resolution.
type Publisher interface {
	Publish(ctx context.Context, res Resolution) error
}

// Session holds the "current resolution" slot for one interactive client. Each
// new interaction supersedes the previous one: its context is cancelled and, if
// it still completes, its result is discarded instead of overwriting the newer
// one.
type Session struct {
	svc       *Service
	publisher Publisher

	mu      sync.Mutex
	issued  uint64
	cancel  context.CancelFunc
	current *Resolution
}

// NewSession creates an empty session. publisher may be nil.
func NewSession(svc *Service, publisher Publisher) *Session {
	return &Session{svc: svc, publisher: publisher}
}

// Begin starts a new interaction and returns its sequence number together with
// a context that is cancelled when a later interaction begins.
func (s *Session) Begin(ctx context.Context) (uint64, context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	s.issued++
	ctx, s.cancel = context.WithCancel(ctx)
	return s.issued, ctx
}

// Commit stores res if it belongs to the most recent interaction and reports
// whether it did.
func (s *Session) Commit(res Resolution) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if res.Seq != s.issued {
		s.svc.metrics.StaleDiscards.Inc()
		s.svc.logger.Debug("discarding stale resolution",
			"resolution_id", res.ID, "seq", res.Seq, "latest", s.issued)
		return false
	}
	s.current = &res
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return true
}

// Current returns the latest committed resolution.
func (s *Session) Current() (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return Resolution{}, false
	}
	return *s.current, true
}

// Resolve runs a point interaction through Begin, the service, and Commit.
// The boolean is false when a newer interaction superseded this one; the
// returned Resolution is then stale and must not be displayed.
func (s *Session) Resolve(ctx context.Context, point domain.GeoPoint, priorAddress string) (Resolution, bool) {
	seq, rctx := s.Begin(ctx)
	res := s.svc.Resolve(rctx, point, priorAddress)
	res.Seq = seq
	return res, s.finish(ctx, res)
}

// ResolveAddress is Resolve for a typed address.
func (s *Session) ResolveAddress(ctx context.Context, address string) (Resolution, bool) {
	seq, rctx := s.Begin(ctx)
	res := s.svc.ResolveAddress(rctx, address)
	res.Seq = seq
	return res, s.finish(ctx, res)
}

func (s *Session) finish(ctx context.Context, res Resolution) bool {
	if !s.Commit(res) {
		return false
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, res); err != nil {
			s.svc.metrics.PublishErrors.Inc()
			s.svc.logger.Warn("publish resolution failed", "resolution_id", res.ID, "error", err)
		}
	}
	return true
}

// Sessions is a bounded registry of sessions keyed by client-chosen id. The
// least recently used session is forgotten when the registry is full.
type Sessions struct {
	svc       *Service
	publisher Publisher
	cache     *lru.Cache[string, *Session]
}

// NewSessions creates a registry holding at most maxSessions sessions.
func NewSessions(svc *Service, publisher Publisher, maxSessions int) *Sessions {
	return &Sessions{
		svc:       svc,
		publisher: publisher,
		cache:     lru.New[string, *Session](maxSessions),
	}
}

// Get returns the session for id, creating it on first use.
func (r *Sessions) Get(id string) *Session {
	return r.cache.GetOrAdd(id, func() *Session {
		return NewSession(r.svc, r.publisher)
	})
}

// Lookup returns the session for id without creating it.
func (r *Sessions) Lookup(id string) (*Session, bool) {
	return r.cache.Get(id)
}
