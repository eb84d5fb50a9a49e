package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
	"github.com/mediagate/mediagate/internal/wash"
)

// MediaOptions tunes MediaService.
type MediaOptions struct {
	// DefaultTTL applies to titles without an airing schedule.
	// Zero means DefaultNonAiringTTL.
	DefaultTTL time.Duration
	// CacheTimeout bounds every cache operation. Zero means no extra bound.
	CacheTimeout time.Duration
	// CoalesceMisses shares one upstream fetch among concurrent misses for
	// the same id. Off by default: concurrent misses each fetch and write.
	CoalesceMisses bool
}

// MediaService resolves single titles through the cache, falling back to the
// upstream query service on a miss.
type MediaService struct {
	queries gateway.QueryService
	cache   gateway.KeyValueCache
	metrics *telemetry.Metrics
	opts    MediaOptions
	group   singleflight.Group
}

// NewMediaService wires a MediaService. metrics may be nil.
func NewMediaService(queries gateway.QueryService, cache gateway.KeyValueCache, metrics *telemetry.Metrics, opts MediaOptions) *MediaService {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultNonAiringTTL
	}
	return &MediaService{queries: queries, cache: cache, metrics: metrics, opts: opts}
}

// Lookup returns the title with the requested id. Cached entries are served
// with their airing countdown and leftUntilExpire recomputed from the live
// cache TTL; misses are fetched, washed and cached under the upstream id.
func (ms *MediaService) Lookup(ctx context.Context, req *gateway.MediaRequest) (*gateway.Media, error) {
	if req.MediaID == nil {
		return nil, gateway.BadRequest("No media id was included")
	}
	if req.MediaType == "" {
		return nil, gateway.BadRequest("No type was included")
	}
	id := *req.MediaID

	ctx, span := telemetry.Tracer("mediagate/app").Start(ctx, "media.lookup")
	defer span.End()
	span.SetAttributes(attribute.Int("media.id", id))

	key := strconv.Itoa(id)
	if m, ok := ms.fromCache(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return m, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	if !ms.opts.CoalesceMisses {
		return ms.fetch(ctx, id, req.MediaType)
	}
	// The shared fetch must not fail every waiter when its first caller leaves.
	fctx := context.WithoutCancel(ctx)
	v, err, shared := ms.group.Do(key+":"+strings.ToUpper(req.MediaType), func() (any, error) {
		return ms.fetch(fctx, id, req.MediaType)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*gateway.Media)
	if shared {
		// Each caller gets its own copy of the top-level struct.
		cp := *m
		m = &cp
	}
	return m, nil
}

// fromCache serves key from the cache. Any failure along the way is a miss:
// absence is logged at debug, store errors at warn.
func (ms *MediaService) fromCache(ctx context.Context, key string) (*gateway.Media, bool) {
	cctx, cancel := ms.cacheContext(ctx)
	defer cancel()

	data, err := ms.cache.Get(cctx, key)
	if err != nil {
		if errors.Is(err, gateway.ErrCacheMiss) {
			slog.DebugContext(ctx, "media not in cache", "key", key)
		} else {
			slog.WarnContext(ctx, "cache read failed", "key", key, "error", err)
			ms.cacheError("get")
		}
		ms.miss()
		return nil, false
	}

	var m gateway.Media
	if err := json.Unmarshal(data, &m); err != nil {
		slog.WarnContext(ctx, "cached media is not decodable", "key", key, "error", err)
		ms.cacheError("decode")
		ms.miss()
		return nil, false
	}

	ttl, err := ms.cache.TTL(cctx, key)
	if err != nil {
		if errors.Is(err, gateway.ErrCacheMiss) {
			slog.DebugContext(ctx, "cached media has no live ttl", "key", key)
		} else {
			slog.WarnContext(ctx, "cache ttl read failed", "key", key, "error", err)
			ms.cacheError("ttl")
		}
		ms.miss()
		return nil, false
	}

	left := int64(ttl / time.Second)
	m.DataFrom = gateway.FromCache
	if n, ok := m.NextAiring(); ok && n.Raw == nil {
		until := left
		n.TimeUntilAiring = &until
	}
	m.LeftUntilExpire = &left

	if ms.metrics != nil {
		ms.metrics.CacheHits.Inc()
	}
	slog.DebugContext(ctx, "serving media from cache", "key", key, "left_until_expire", left)
	return &m, true
}

// fetch queries upstream, washes the result and writes it back to cache.
func (ms *MediaService) fetch(ctx context.Context, id int, mediaType string) (*gateway.Media, error) {
	start := time.Now()
	raw, err := ms.queries.Execute(ctx, gateway.QuerySearch, map[string]any{
		"id":   id,
		"type": strings.ToUpper(mediaType),
	})
	observeUpstream(ms.metrics, gateway.QuerySearch, start, err)
	if err != nil {
		slog.WarnContext(ctx, "media fetch failed", "media_id", id, "media_type", mediaType, "error", err)
		return nil, err
	}

	m := wash.Media(raw)
	ms.store(ctx, m)
	return m, nil
}

// store caches m under its own id with the airing-driven TTL. Failures are
// logged and otherwise ignored; the entity is still returned to the caller.
func (ms *MediaService) store(ctx context.Context, m *gateway.Media) {
	if m.ID == nil {
		slog.WarnContext(ctx, "washed media has no id, not caching")
		return
	}
	key := strconv.Itoa(*m.ID)

	ttl, policy := ExpirationFor(m, ms.opts.DefaultTTL)
	if ttl <= 0 {
		slog.DebugContext(ctx, "next episode already aired, not caching", "key", key, "ttl", ttl)
		return
	}

	data, err := json.Marshal(m)
	if err != nil {
		slog.WarnContext(ctx, "encode media for cache", "key", key, "error", err)
		return
	}

	// The write outlives a client that hangs up mid-request.
	cctx, cancel := ms.cacheContext(context.WithoutCancel(ctx))
	defer cancel()

	if err := ms.cache.Set(cctx, key, data); err != nil {
		slog.WarnContext(ctx, "cache write failed", "key", key, "error", err)
		ms.cacheError("set")
		return
	}
	if err := ms.cache.Expire(cctx, key, ttl); err != nil {
		slog.WarnContext(ctx, "cache expire failed", "key", key, "error", err)
		ms.cacheError("expire")
		return
	}

	if ms.metrics != nil {
		ms.metrics.CacheWriteTTL.WithLabelValues(policy).Observe(ttl.Seconds())
	}
	if policy == PolicyAiring {
		slog.DebugContext(ctx, "title is releasing, cache expires when next episode airs",
			"key", key, "romaji", romaji(m), "ttl", ttl)
	} else {
		slog.DebugContext(ctx, "title is not releasing, using default ttl",
			"key", key, "romaji", romaji(m), "ttl", ttl)
	}
}

func (ms *MediaService) cacheContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ms.opts.CacheTimeout > 0 {
		return context.WithTimeout(ctx, ms.opts.CacheTimeout)
	}
	return context.WithCancel(ctx)
}

func (ms *MediaService) miss() {
	if ms.metrics != nil {
		ms.metrics.CacheMisses.Inc()
	}
}

func (ms *MediaService) cacheError(op string) {
	if ms.metrics != nil {
		ms.metrics.CacheErrors.WithLabelValues(op).Inc()
	}
}

func romaji(m *gateway.Media) string {
	if m.Romaji == nil {
		return ""
	}
	return *m.Romaji
}
