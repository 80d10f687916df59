// Package session binds client session ids to the anchor table size they
// negotiated. Sessions live for the lifetime of the process.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/zeusync/xihe/internal/core/anchor"
	"github.com/zeusync/xihe/internal/core/observability/log"
)

const defaultShardCount = 16

// Session is one negotiated client binding.
type Session struct {
	ID        uuid.UUID
	Anchors   *anchor.Table
	CreatedAt time.Time
}

// shard holds a slice of the session map behind its own lock.
type shard struct {
	mx       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// Registry is a hash-sharded session map in front of an anchor cache.
type Registry struct {
	anchors *anchor.Cache
	shards  []shard
	count   atomic.Int64

	newID func() (uuid.UUID, error)
	now   func() time.Time
	log   log.Log
}

// Option configures a Registry.
type Option func(*Registry)

// WithIDSource replaces the uuid generator.
func WithIDSource(fn func() (uuid.UUID, error)) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithShardCount sets the number of map shards.
func WithShardCount(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.shards = make([]shard, n)
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l log.Log) Option {
	return func(r *Registry) { r.log = l.With(log.String("component", "session")) }
}

// NewRegistry creates a registry resolving tables through cache.
func NewRegistry(cache *anchor.Cache, opts ...Option) *Registry {
	r := &Registry{
		anchors: cache,
		shards:  make([]shard, defaultShardCount),
		newID:   uuid.NewRandom,
		now:     time.Now,
		log:     log.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[uuid.UUID]*Session)
	}
	return r
}

func (r *Registry) shardFor(id uuid.UUID) *shard {
	return &r.shards[xxhash.Sum64(id[:])%uint64(len(r.shards))]
}

// Open acquires the table for size and binds it to a fresh session id.
// An id that is already bound fails with ErrSessionConflict; retrying is
// up to the caller.
func (r *Registry) Open(size int) (*Session, error) {
	table, err := r.anchors.Acquire(size)
	if err != nil {
		return nil, err
	}
	id, err := r.newID()
	if err != nil {
		return nil, fmt.Errorf("generate session id: %w", err)
	}

	s := &Session{ID: id, Anchors: table, CreatedAt: r.now()}

	sh := r.shardFor(id)
	sh.mx.Lock()
	if _, exists := sh.sessions[id]; exists {
		sh.mx.Unlock()
		r.log.Warn("session id conflict", log.String("sid", id.String()))
		return nil, fmt.Errorf("%w: %s", ErrSessionConflict, id)
	}
	sh.sessions[id] = s
	sh.mx.Unlock()

	r.count.Add(1)
	r.log.Debug("session opened", log.String("sid", id.String()), log.Int("anchor_size", size))
	return s, nil
}

// Resolve returns the session bound to id.
func (r *Registry) Resolve(id uuid.UUID) (*Session, error) {
	sh := r.shardFor(id)
	sh.mx.RLock()
	s, ok := sh.sessions[id]
	sh.mx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// ResolveString parses raw as a uuid and resolves it.
func (r *Registry) ResolveString(raw string) (*Session, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, raw)
	}
	return r.Resolve(id)
}

// Len returns the number of open sessions.
func (r *Registry) Len() int { return int(r.count.Load()) }

// Anchors returns the underlying anchor cache.
func (r *Registry) Anchors() *anchor.Cache { return r.anchors }
