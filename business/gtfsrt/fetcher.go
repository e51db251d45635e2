package gtfsrt

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultRefreshInterval is how long a retrieved feed is served from the cache
	DefaultRefreshInterval = 60 * time.Second
	// DefaultMaxStale is the oldest cached feed returned when upstream fails
	DefaultMaxStale = 15 * time.Minute
)

// Getter retrieves a url, implemented by httpclient.Client
type Getter interface {
	GetBytes(ctx context.Context, url string, headers map[string]string) ([]byte, error)
}

// FetchResult is the body of a feed and where it came from
type FetchResult struct {
	Bytes       []byte
	LastUpdated time.Time
	FromCache   bool
	// Warning is set when upstream failed and the last good cached body was returned instead
	Warning *FetchError
}

// FetcherConfig controls refresh and upstream request rates
type FetcherConfig struct {
	RefreshInterval time.Duration
	// MaxStale bounds the age of a cached feed used when upstream fails
	MaxStale time.Duration
	// UpstreamRate limits requests per second per agency, zero is unlimited
	UpstreamRate  float64
	UpstreamBurst int
}

// Fetcher retrieves realtime feeds, serving recent copies from a DiskCache.
// Concurrent fetches of the same FeedKey share one upstream request.
type Fetcher struct {
	log     *log.Logger
	client  Getter
	cache   *DiskCache
	metrics *metrics.Metrics
	cfg     FetcherConfig

	group singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewFetcher creates Fetcher
func NewFetcher(log *log.Logger, client Getter, cache *DiskCache, m *metrics.Metrics, cfg FetcherConfig) *Fetcher {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = DefaultMaxStale
	}
	if cfg.UpstreamBurst <= 0 {
		cfg.UpstreamBurst = 2
	}
	return &Fetcher{
		log:      log,
		client:   client,
		cache:    cache,
		metrics:  m,
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// limiter returns the upstream rate limiter shared by every feed of agencyId
func (f *Fetcher) limiter(agencyId string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	limiter, present := f.limiters[agencyId]
	if !present {
		limit := rate.Inf
		if f.cfg.UpstreamRate > 0 {
			limit = rate.Limit(f.cfg.UpstreamRate)
		}
		limiter = rate.NewLimiter(limit, f.cfg.UpstreamBurst)
		f.limiters[agencyId] = limiter
	}
	return limiter
}

// Fetch returns the body of endpoint's feed.
// A cached body younger than the refresh interval is returned without contacting upstream.
// When upstream fails the last cached body is returned with FetchResult.Warning set,
// a *FetchError is only returned when nothing has been cached or the cached body is older than MaxStale.
func (f *Fetcher) Fetch(ctx context.Context, endpoint Endpoint, now time.Time) (FetchResult, error) {
	v, err, _ := f.group.Do(endpoint.Key.String(), func() (interface{}, error) {
		return f.fetch(ctx, endpoint, now)
	})
	if err != nil {
		return FetchResult{}, err
	}
	return v.(FetchResult), nil
}

func (f *Fetcher) fetch(ctx context.Context, endpoint Endpoint, now time.Time) (FetchResult, error) {
	key := endpoint.Key
	cached, err := f.cache.Read(key)
	if err != nil {
		f.log.Printf("unable to read cache for %s, retrieving from upstream. error: %v\n", key, err)
		cached = nil
	}

	if cached != nil && now.Sub(cached.LastUpdated) < f.cfg.RefreshInterval {
		f.record(key, metrics.FetchCache)
		return FetchResult{Bytes: cached.Bytes, LastUpdated: cached.LastUpdated, FromCache: true}, nil
	}

	body, err := f.retrieve(ctx, endpoint)
	if err != nil {
		fetchErr := &FetchError{Key: key, Err: err}
		if cached == nil {
			f.record(key, metrics.FetchFailed)
			return FetchResult{}, fetchErr
		}
		if age := now.Sub(cached.LastUpdated); age > f.cfg.MaxStale {
			f.record(key, metrics.FetchFailed)
			return FetchResult{}, &FetchError{
				Key: key,
				Err: fmt.Errorf("cached copy is %s old, older than %s: %w", age.Round(time.Second), f.cfg.MaxStale, err),
			}
		}
		f.record(key, metrics.FetchFallback)
		return FetchResult{
			Bytes:       cached.Bytes,
			LastUpdated: cached.LastUpdated,
			FromCache:   true,
			Warning:     fetchErr,
		}, nil
	}

	if err = f.cache.Write(key, body, now); err != nil {
		f.log.Printf("unable to cache %s, continuing with retrieved feed. error: %v\n", key, err)
	}
	f.record(key, metrics.FetchNetwork)
	return FetchResult{Bytes: body, LastUpdated: now}, nil
}

func (f *Fetcher) retrieve(ctx context.Context, endpoint Endpoint) ([]byte, error) {
	if err := f.limiter(endpoint.Key.AgencyId).Wait(ctx); err != nil {
		return nil, fmt.Errorf("upstream rate limit: %w", err)
	}
	return f.client.GetBytes(ctx, endpoint.URL, endpoint.Headers)
}

func (f *Fetcher) record(key FeedKey, outcome string) {
	if f.metrics == nil {
		return
	}
	f.metrics.FeedFetchesTotal.WithLabelValues(key.AgencyId, string(key.Kind), outcome).Inc()
}
