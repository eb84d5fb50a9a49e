package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
	"github.com/mediagate/mediagate/internal/testutil"
)

func mediaBody(id int, timeUntilAiring string) string {
	nodes := "[]"
	if timeUntilAiring != "" {
		nodes = fmt.Sprintf(`[{"airingAt":1700003600,"timeUntilAiring":%s,"episode":7},{"timeUntilAiring":999999,"episode":8}]`, timeUntilAiring)
	}
	return fmt.Sprintf(`{"data":{"Media":{
		"id": %d,
		"title": {"romaji": "Sousou no Frieren"},
		"airingSchedule": {"nodes": %s},
		"status": "RELEASING",
		"genres": ["Adventure"],
		"startDate": {"year": 2023, "month": 9, "day": 29},
		"endDate": {"year": null, "month": null, "day": null}
	}}}`, id, nodes)
}

func intPtr(v int) *int { return &v }

func newMediaService(q gateway.QueryService, c gateway.KeyValueCache, opts MediaOptions) (*MediaService, *telemetry.Metrics) {
	m := telemetry.NewMetrics(prometheus.NewRegistry())
	return NewMediaService(q, c, m, opts), m
}

func TestLookup_MissThenHit(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(101, "3600"))
	c := testutil.NewFakeCache()
	svc, metrics := newMediaService(q, c, MediaOptions{})
	req := &gateway.MediaRequest{MediaID: intPtr(101), MediaType: "anime"}

	first, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, gateway.FromAPI, first.DataFrom)
	assert.Nil(t, first.LeftUntilExpire)
	assert.Equal(t, int64(3600), *first.Airing[0].TimeUntilAiring)

	written, ok := c.WrittenTTL("101")
	require.True(t, ok)
	assert.Equal(t, time.Hour, written)

	second, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, gateway.FromCache, second.DataFrom)
	require.NotNil(t, second.LeftUntilExpire)
	assert.Equal(t, int64(3600), *second.LeftUntilExpire)
	assert.Equal(t, int64(3600), *second.Airing[0].TimeUntilAiring)
	assert.Equal(t, int64(999999), *second.Airing[1].TimeUntilAiring, "only the first node is rewritten")
	assert.Equal(t, "Sousou no Frieren", *second.Romaji)
	assert.Equal(t, "29/9/2023", second.StartDate)

	c.Advance(10 * time.Second)
	third, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, int64(3590), *third.LeftUntilExpire)
	assert.Equal(t, int64(3590), *third.Airing[0].TimeUntilAiring)

	assert.Equal(t, 1, q.CallCount())
	assert.Equal(t, float64(2), promtest.ToFloat64(metrics.CacheHits))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CacheMisses))
}

func TestLookup_ExpiresWhenEpisodeAirs(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(101, "60"))
	c := testutil.NewFakeCache()
	svc, _ := newMediaService(q, c, MediaOptions{})
	req := &gateway.MediaRequest{MediaID: intPtr(101), MediaType: "ANIME"}

	_, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)

	c.Advance(61 * time.Second)
	got, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, gateway.FromAPI, got.DataFrom)
	assert.Equal(t, 2, q.CallCount())
}

func TestLookup_QueryVariables(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(21, ""))
	svc, _ := newMediaService(q, testutil.NewFakeCache(), MediaOptions{})

	_, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(21), MediaType: "manga"})
	require.NoError(t, err)

	calls := q.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, gateway.QuerySearch, calls[0].Name)
	assert.Equal(t, 21, calls[0].Vars["id"])
	assert.Equal(t, "MANGA", calls[0].Vars["type"])
}

func TestLookup_CachesUnderUpstreamID(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(101, ""))
	c := testutil.NewFakeCache()
	svc, _ := newMediaService(q, c, MediaOptions{})
	req := &gateway.MediaRequest{MediaID: intPtr(5), MediaType: "anime"}

	_, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, c.Has("101"))
	assert.False(t, c.Has("5"))

	// The requested id never lands in the cache, so it keeps missing.
	_, err = svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, q.CallCount())
}

func TestLookup_TTLPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		body  string
		opts  MediaOptions
		want  time.Duration
		saved bool
	}{
		{name: "airing", body: mediaBody(1, "7200"), want: 2 * time.Hour, saved: true},
		{name: "not airing", body: mediaBody(1, ""), want: DefaultNonAiringTTL, saved: true},
		{name: "custom default", body: mediaBody(1, ""), opts: MediaOptions{DefaultTTL: time.Hour}, want: time.Hour, saved: true},
		{name: "node without time", body: mediaBody(1, "null"), want: DefaultNonAiringTTL, saved: true},
		{name: "already aired", body: mediaBody(1, "-30"), saved: false},
		{name: "airing now", body: mediaBody(1, "0"), saved: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := testutil.NewFakeCache()
			svc, _ := newMediaService(testutil.RespondWith(tt.body), c, tt.opts)

			got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
			require.NoError(t, err)
			assert.Equal(t, gateway.FromAPI, got.DataFrom)

			written, ok := c.WrittenTTL("1")
			assert.Equal(t, tt.saved, ok)
			assert.Equal(t, tt.saved, c.Has("1"))
			if tt.saved {
				assert.Equal(t, tt.want, written)
			}
		})
	}
}

func TestLookup_BadRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  *gateway.MediaRequest
	}{
		{name: "no id", req: &gateway.MediaRequest{MediaType: "anime"}},
		{name: "no type", req: &gateway.MediaRequest{MediaID: intPtr(1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := testutil.RespondWith(mediaBody(1, ""))
			c := testutil.NewFakeCache()
			svc, _ := newMediaService(q, c, MediaOptions{})

			_, err := svc.Lookup(context.Background(), tt.req)
			require.ErrorIs(t, err, gateway.ErrBadRequest)
			assert.Zero(t, q.CallCount())
			assert.Zero(t, c.SetCount())
		})
	}
}

func TestLookup_UpstreamErrorNotCached(t *testing.T) {
	t.Parallel()

	upErr := &gateway.UpstreamError{Query: gateway.QuerySearch, StatusCode: 404, Body: `{"errors":[{"message":"Not Found."}]}`}
	q := testutil.FailWith(upErr)
	c := testutil.NewFakeCache()
	svc, metrics := newMediaService(q, c, MediaOptions{})

	_, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(9), MediaType: "anime"})
	var got *gateway.UpstreamError
	require.ErrorAs(t, err, &got)
	assert.Equal(t, 404, got.StatusCode)
	assert.Zero(t, c.SetCount())
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.UpstreamErrors.WithLabelValues(gateway.QuerySearch, "404")))
}

func TestLookup_UnavailableNotCached(t *testing.T) {
	t.Parallel()

	q := testutil.FailWith(fmt.Errorf("%w: dial tcp: refused", gateway.ErrUnavailable))
	c := testutil.NewFakeCache()
	svc, _ := newMediaService(q, c, MediaOptions{})

	_, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(9), MediaType: "anime"})
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Zero(t, c.SetCount())
}

func TestLookup_CacheFailuresFallThrough(t *testing.T) {
	t.Parallel()

	boom := errors.New("connection reset")
	tests := []struct {
		name   string
		inject func(c *testutil.FakeCache)
		label  string
	}{
		{name: "get", inject: func(c *testutil.FakeCache) { c.GetErr = boom }, label: "get"},
		{name: "ttl", inject: func(c *testutil.FakeCache) { c.TTLErr = boom }, label: "ttl"},
		{name: "undecodable", inject: func(c *testutil.FakeCache) { c.Put("1", []byte("{not json"), time.Hour) }, label: "decode"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := testutil.RespondWith(mediaBody(1, ""))
			c := testutil.NewFakeCache()
			c.Put("1", []byte(`{"id":1,"dataFrom":"API"}`), time.Hour)
			tt.inject(c)
			svc, metrics := newMediaService(q, c, MediaOptions{})

			got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
			require.NoError(t, err)
			assert.Equal(t, gateway.FromAPI, got.DataFrom)
			assert.Equal(t, 1, q.CallCount())
			assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CacheErrors.WithLabelValues(tt.label)))
		})
	}
}

func TestLookup_EntryWithoutExpiryIsMiss(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(1, ""))
	c := testutil.NewFakeCache()
	c.Put("1", []byte(`{"id":1,"dataFrom":"API"}`), 0)
	svc, metrics := newMediaService(q, c, MediaOptions{})

	got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
	require.NoError(t, err)
	assert.Equal(t, gateway.FromAPI, got.DataFrom)
	assert.Zero(t, promtest.ToFloat64(metrics.CacheErrors.WithLabelValues("ttl")))
}

func TestLookup_WriteFailuresStillServe(t *testing.T) {
	t.Parallel()

	boom := errors.New("read only replica")
	for _, op := range []string{"set", "expire"} {
		t.Run(op, func(t *testing.T) {
			t.Parallel()

			c := testutil.NewFakeCache()
			if op == "set" {
				c.SetErr = boom
			} else {
				c.ExpireErr = boom
			}
			svc, metrics := newMediaService(testutil.RespondWith(mediaBody(1, "")), c, MediaOptions{})

			got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
			require.NoError(t, err)
			assert.Equal(t, 1, *got.ID)
			assert.Equal(t, float64(1), promtest.ToFloat64(metrics.CacheErrors.WithLabelValues(op)))
		})
	}
}

func TestLookup_NoUpstreamIDNotCached(t *testing.T) {
	t.Parallel()

	c := testutil.NewFakeCache()
	svc, _ := newMediaService(testutil.RespondWith(`{"data":{"Media":null}}`), c, MediaOptions{})

	got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
	require.NoError(t, err)
	assert.Nil(t, got.ID)
	assert.Zero(t, c.SetCount())
}

func TestLookup_CachedEntryRoundTrip(t *testing.T) {
	t.Parallel()

	c := testutil.NewFakeCache()
	svc, _ := newMediaService(testutil.RespondWith(mediaBody(101, "3600")), c, MediaOptions{})
	req := &gateway.MediaRequest{MediaID: intPtr(101), MediaType: "anime"}

	fresh, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)
	cached, err := svc.Lookup(context.Background(), req)
	require.NoError(t, err)

	freshJSON, err := json.Marshal(fresh)
	require.NoError(t, err)
	cachedJSON, err := json.Marshal(cached)
	require.NoError(t, err)

	var a, b map[string]any
	require.NoError(t, json.Unmarshal(freshJSON, &a))
	require.NoError(t, json.Unmarshal(cachedJSON, &b))
	delete(b, "leftUntilExpire")
	b["dataFrom"] = "API"
	assert.Equal(t, a, b)
}

func TestLookup_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	q := &testutil.FakeQueryService{
		ExecuteFn: func(context.Context, string, map[string]any) (json.RawMessage, error) {
			<-release
			return json.RawMessage(mediaBody(1, "")), nil
		},
	}
	c := testutil.NewFakeCache()
	svc, _ := newMediaService(q, c, MediaOptions{CoalesceMisses: true})

	const callers = 8
	var wg sync.WaitGroup
	results := make([]*gateway.Media, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
		}()
	}

	// Give every caller time to join the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, 1, *results[i].ID)
	}
	assert.Equal(t, 1, q.CallCount())
	assert.Equal(t, 1, c.SetCount())
}

func TestLookup_ConcurrentMissesFetchIndependently(t *testing.T) {
	t.Parallel()

	const callers = 2
	var arrived sync.WaitGroup
	arrived.Add(callers)
	q := &testutil.FakeQueryService{
		ExecuteFn: func(context.Context, string, map[string]any) (json.RawMessage, error) {
			// Hold each fetch until both callers are inside upstream, so both
			// have already missed the cache.
			arrived.Done()
			waited := make(chan struct{})
			go func() { arrived.Wait(); close(waited) }()
			select {
			case <-waited:
			case <-time.After(2 * time.Second):
				return nil, errors.New("second caller never reached upstream")
			}
			return json.RawMessage(mediaBody(1, "")), nil
		},
	}
	c := testutil.NewFakeCache()
	svc, _ := newMediaService(q, c, MediaOptions{})

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, callers, q.CallCount())
	assert.Equal(t, callers, c.SetCount())
	assert.True(t, c.Has("1"))
}

func TestLookup_CachedNonObjectAiringNodeUntouched(t *testing.T) {
	t.Parallel()

	q := testutil.RespondWith(mediaBody(1, ""))
	c := testutil.NewFakeCache()
	c.Put("1", []byte(`{"id":1,"airing":[null,{"timeUntilAiring":99,"episode":2}],"dataFrom":"API"}`), time.Hour)
	svc, _ := newMediaService(q, c, MediaOptions{})

	got, err := svc.Lookup(context.Background(), &gateway.MediaRequest{MediaID: intPtr(1), MediaType: "anime"})
	require.NoError(t, err)
	assert.Equal(t, gateway.FromCache, got.DataFrom)
	assert.Equal(t, int64(3600), *got.LeftUntilExpire)
	assert.Zero(t, q.CallCount())

	out, err := json.Marshal(got.Airing)
	require.NoError(t, err)
	assert.JSONEq(t, `[null,{"timeUntilAiring":99,"episode":2}]`, string(out))
}
