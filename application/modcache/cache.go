// Package modcache implements the per-engine module cache.
//
// Records live in an append-only arena addressed by index; an identity index
// maps canonical module identities to arena slots. Each identity is fetched at
// most once: concurrent callers wait on the in-flight fetch, permanent failures
// are cached as Failed records, and cancelled or transient fetches leave the
// slot Pending so a later call retries it.
package modcache

import (
	"context"
	"encoding/hex"
	stdErrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/reglet-dev/reglet-script/domain/entities"
	"github.com/reglet-dev/reglet-script/domain/errors"
	"github.com/reglet-dev/reglet-script/domain/ports"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// ErrClosed is returned by a cache after Close.
var ErrClosed = stdErrors.New("module cache closed")

// Fetcher produces the payload of one module. It is called at most once per
// successful or permanently failed load.
type Fetcher func(ctx context.Context) ([]byte, error)

// Load outcomes reported to the metrics recorder.
const (
	OutcomeReady     = "ready"
	OutcomeFailed    = "failed"
	OutcomeAbandoned = "abandoned"
)

// cacheConfig holds configuration for the Cache.
type cacheConfig struct {
	logger   *zap.Logger
	recorder ports.MetricsRecorder
}

// Option configures a Cache.
type Option func(*cacheConfig)

// WithLogger sets the logger used for load events.
func WithLogger(logger *zap.Logger) Option {
	return func(c *cacheConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder observes every completed fetch on r.
func WithRecorder(r ports.MetricsRecorder) Option {
	return func(c *cacheConfig) {
		c.recorder = r
	}
}

// Cache is a module arena plus identity index. It is safe for concurrent use.
type Cache struct {
	index    map[entities.ModuleIdentity]int
	inflight map[entities.ModuleIdentity]*flight
	config   cacheConfig
	records  []*entities.ModuleRecord
	mu       sync.Mutex
	closed   bool
}

type flight struct {
	err  error
	done chan struct{}
	rec  entities.ModuleRecord
}

// New creates an empty Cache.
func New(opts ...Option) *Cache {
	cfg := cacheConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Cache{
		index:    make(map[entities.ModuleIdentity]int),
		inflight: make(map[entities.ModuleIdentity]*flight),
		config:   cfg,
	}
}

// LoadOrGet returns the record for id, running fetch if no Ready or Failed
// record exists and no fetch is in flight. A Failed record is returned together
// with its cached error.
func (c *Cache) LoadOrGet(ctx context.Context, id entities.ModuleIdentity, fetch Fetcher) (entities.ModuleRecord, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return entities.ModuleRecord{}, &errors.LoadError{Identity: id, Err: ErrClosed}
	}

	if i, ok := c.index[id]; ok {
		rec := c.records[i]
		switch rec.State {
		case entities.ModuleStateReady:
			snap := rec.Snapshot()
			c.mu.Unlock()
			return snap, nil
		case entities.ModuleStateFailed:
			snap := rec.Snapshot()
			c.mu.Unlock()
			return snap, snap.Err
		}
	}

	if f, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		return c.wait(ctx, id, f)
	}

	rec := c.slotLocked(id)
	f := &flight{done: make(chan struct{})}
	c.inflight[id] = f
	c.mu.Unlock()

	start := time.Now()
	payload, fetchErr := safeFetch(ctx, fetch)
	elapsed := time.Since(start)

	c.mu.Lock()
	delete(c.inflight, id)
	outcome := c.settleLocked(ctx, rec, payload, fetchErr)
	f.rec = rec.Snapshot()
	switch outcome {
	case OutcomeFailed:
		f.err = rec.Err
	case OutcomeAbandoned:
		f.err = abandonError(ctx, id, fetchErr)
	}
	close(f.done)
	c.mu.Unlock()

	c.observe(rec.Kind, id, outcome, elapsed, fetchErr)
	return f.rec, f.err
}

func safeFetch(ctx context.Context, fetch Fetcher) (payload []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetch panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

func (c *Cache) wait(ctx context.Context, id entities.ModuleIdentity, f *flight) (entities.ModuleRecord, error) {
	select {
	case <-f.done:
		return f.rec, f.err
	case <-ctx.Done():
		return entities.ModuleRecord{}, &errors.LoadError{
			Identity: id,
			Aborted:  true,
			Err:      fmt.Errorf("%w: %w", errors.ErrAborted, ctx.Err()),
		}
	}
}

// slotLocked returns the arena record for id, appending a Pending record if none exists.
func (c *Cache) slotLocked(id entities.ModuleIdentity) *entities.ModuleRecord {
	if i, ok := c.index[id]; ok {
		return c.records[i]
	}
	rec := &entities.ModuleRecord{
		Index:    len(c.records),
		Identity: id,
		Kind:     id.Kind(),
		State:    entities.ModuleStatePending,
	}
	c.records = append(c.records, rec)
	c.index[id] = rec.Index
	return rec
}

func (c *Cache) settleLocked(ctx context.Context, rec *entities.ModuleRecord, payload []byte, err error) string {
	if err == nil {
		sum := blake2b.Sum256(payload)
		rec.Payload = payload
		rec.Digest = hex.EncodeToString(sum[:])
		rec.State = entities.ModuleStateReady
		rec.Err = nil
		return OutcomeReady
	}

	// A classified fetch failure is permanent unless it is transient, even if
	// ctx ended after the fetch returned. Only unclassified errors are blamed
	// on a cancelled ctx.
	var fe *errors.FetchError
	isFetch := stdErrors.As(err, &fe)
	cancelled := stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded)
	if cancelled || (isFetch && fe.Transient()) || (!isFetch && ctx.Err() != nil) {
		rec.State = entities.ModuleStatePending
		return OutcomeAbandoned
	}
	if !isFetch {
		err = &errors.FetchError{Kind: errors.FetchInvalid, Identity: rec.Identity, Err: err}
	}
	rec.State = entities.ModuleStateFailed
	rec.Err = err
	return OutcomeFailed
}

func abandonError(ctx context.Context, id entities.ModuleIdentity, err error) error {
	if ctx.Err() != nil || stdErrors.Is(err, context.Canceled) || stdErrors.Is(err, context.DeadlineExceeded) {
		return &errors.LoadError{Identity: id, Aborted: true, Err: fmt.Errorf("%w: %w", errors.ErrAborted, err)}
	}
	return &errors.LoadError{Identity: id, Err: err}
}

func (c *Cache) observe(kind entities.ModuleKind, id entities.ModuleIdentity, outcome string, d time.Duration, err error) {
	if c.config.recorder != nil {
		c.config.recorder.RecordModuleLoad(kind, outcome, d)
	}
	fields := []zap.Field{
		zap.String("module", id.String()),
		zap.String("outcome", outcome),
		zap.Duration("duration", d),
	}
	if err != nil {
		c.config.logger.Debug("module fetch failed", append(fields, zap.Error(err))...)
		return
	}
	c.config.logger.Debug("module fetched", fields...)
}

// Record returns a snapshot of the record for id.
func (c *Cache) Record(id entities.ModuleIdentity) (entities.ModuleRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return entities.ModuleRecord{}, false
	}
	return c.records[i].Snapshot(), true
}

// At returns a snapshot of the record in arena slot i.
func (c *Cache) At(i int) (entities.ModuleRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.records) {
		return entities.ModuleRecord{}, false
	}
	return c.records[i].Snapshot(), true
}

// Records returns snapshots of every record in arena order.
func (c *Cache) Records() []entities.ModuleRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]entities.ModuleRecord, len(c.records))
	for i, rec := range c.records {
		out[i] = rec.Snapshot()
	}
	return out
}

// Len returns the number of arena slots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Invalidate resets the record for id to Pending so the next LoadOrGet fetches
// it again. The arena slot is kept. It reports false if id is unknown or a
// fetch is in flight.
func (c *Cache) Invalidate(id entities.ModuleIdentity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.index[id]
	if !ok {
		return false
	}
	if _, busy := c.inflight[id]; busy {
		return false
	}
	rec := c.records[i]
	rec.State = entities.ModuleStatePending
	rec.Payload = nil
	rec.Digest = ""
	rec.Err = nil
	return true
}

// Close drops every record. In-flight fetches complete but their results are
// only delivered to callers already waiting.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.records = nil
	c.index = make(map[entities.ModuleIdentity]int)
}
