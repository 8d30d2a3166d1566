package ocr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"ocrapi/internal/metrics"
)

// Pool caches one engine instance per engine tag. Instances are loaded on
// first use, never evicted, and closed only by Close. Concurrent first uses
// of the same tag share a single load; a failed load is not cached.
type Pool struct {
	backend Backend
	logger  zerolog.Logger

	cache *ttlcache.Cache[string, Engine]
	group singleflight.Group

	mu     sync.Mutex // guards closed and cache writes
	closed bool
}

// NewPool creates an empty pool for backend.
func NewPool(backend Backend, logger zerolog.Logger) *Pool {
	return &Pool{
		backend: backend,
		logger:  logger,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, Engine](ttlcache.NoTTL),
		),
	}
}

// Acquire returns the engine instance for engineTag, loading it if needed.
func (p *Pool) Acquire(ctx context.Context, engineTag string) (Engine, error) {
	const op = "Acquire"

	if item := p.cache.Get(engineTag); item != nil {
		metrics.RecordEngineCache(true)
		return item.Value(), nil
	}
	metrics.RecordEngineCache(false)

	v, err, shared := p.group.Do(engineTag, func() (any, error) {
		if item := p.cache.Get(engineTag); item != nil {
			return item.Value(), nil
		}
		// Waiters share this load, so one caller's cancellation must not fail the rest.
		return p.load(context.WithoutCancel(ctx), engineTag)
	})
	if err != nil {
		return nil, WrapOCRError(op, err, engineTag)
	}
	if shared {
		p.logger.Debug().Str("language", engineTag).Msg("Joined in-flight engine load")
	}
	return v.(Engine), nil
}

func (p *Pool) load(ctx context.Context, engineTag string) (Engine, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrPoolClosed
	}

	p.logger.Info().
		Str("engine", p.backend.Name()).
		Str("language", engineTag).
		Msg("Loading OCR engine")

	start := time.Now()
	eng, err := p.backend.NewEngine(ctx, engineTag)
	metrics.RecordEngineLoad(p.backend.Name(), engineTag, err == nil, time.Since(start))
	if err != nil {
		p.logger.Error().
			Err(err).
			Str("engine", p.backend.Name()).
			Str("language", engineTag).
			Msg("Failed to load OCR engine")
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = eng.Close()
		return nil, ErrPoolClosed
	}
	p.cache.Set(engineTag, eng, ttlcache.DefaultTTL)

	p.logger.Info().
		Str("engine", p.backend.Name()).
		Str("language", engineTag).
		Dur("duration", time.Since(start)).
		Msg("OCR engine loaded")
	return eng, nil
}

// Loaded returns the engine tags with a loaded instance, sorted.
func (p *Pool) Loaded() []string {
	keys := p.cache.Keys()
	sort.Strings(keys)
	return keys
}

// Close closes every loaded instance. Acquire fails afterwards.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var errs []error
	for tag, item := range p.cache.Items() {
		if err := item.Value().Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", tag, err))
		}
	}
	p.cache.DeleteAll()
	return errors.Join(errs...)
}
