package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBuildPipelines(t *testing.T) {
	agencies := loadTestAgencies(t)
	engines := map[string]*fusion.Engine{
		"SF": fusion.NewEngine(testLogger(), &fakeScheduleStore{}),
		"AC": fusion.NewEngine(testLogger(), &fakeScheduleStore{}),
		"CT": fusion.NewEngine(testLogger(), &fakeScheduleStore{}),
	}
	tests := []struct {
		name    string
		env     map[string]string
		engines map[string]*fusion.Engine
		want    []string
	}{
		{
			name:    "missing api key skips agency",
			env:     map[string]string{},
			engines: engines,
			want:    []string{"SF"},
		},
		{
			name:    "all monitored agencies",
			env:     map[string]string{"API_KEY_AC": "secret"},
			engines: engines,
			want:    []string{"SF", "AC"},
		},
		{
			name:    "agency without schedule store",
			env:     map[string]string{"API_KEY_AC": "secret"},
			engines: map[string]*fusion.Engine{"AC": engines["AC"]},
			want:    []string{"AC"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			services := Services{
				Agencies:  agencies,
				Engines:   tt.engines,
				Fetcher:   gtfsrt.NewFetcher(testLogger(), nil, nil, nil, gtfsrt.FetcherConfig{}),
				Snapshots: snapshot.NewStore(agency.Ids(agencies)),
				Metrics:   metrics.New(),
				Getenv: func(key string) string {
					return tt.env[key]
				},
			}
			pipelines := buildPipelines(testLogger(), Config{FetchTimeout: time.Second}, services)
			got := make([]string, 0, len(pipelines))
			for _, p := range pipelines {
				got = append(got, p.agency.Id)
				is.True(p.publisher == nil)
			}
			is.Equal(got, tt.want)
		})
	}
}

func TestRunAgencyLoop(t *testing.T) {
	is := is.New(t)
	tp := newTestPipeline(t)
	tp.fetcher.set(gtfsrt.VehiclePositions, makeFeed(t, vehicleEntity("1001", "T1", 37.77, -122.42)), nil)
	tp.fetcher.set(gtfsrt.TripUpdates, makeFeed(t), nil)

	wg := sync.WaitGroup{}
	shutdown := make(chan bool, 1)
	wg.Add(1)
	go runAgencyLoop(testLogger(), &wg, tp.pipeline, 10*time.Millisecond, 0, shutdown)

	deadline := time.Now().Add(5 * time.Second)
	for testutil.ToFloat64(tp.metrics.FusionPassesTotal.WithLabelValues("SF", "ok")) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("agency loop did not complete two passes")
		}
		time.Sleep(5 * time.Millisecond)
	}
	shutdown <- true
	wg.Wait()

	current, err := tp.snapshots.Current("SF")
	is.NoErr(err)
	is.True(current != nil)
	is.Equal(len(current.Vehicles), 1)
}

// blockingFetcher waits for its context to end
type blockingFetcher struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingFetcher) Fetch(ctx context.Context, endpoint gtfsrt.Endpoint, _ time.Time) (gtfsrt.FetchResult, error) {
	b.once.Do(func() {
		close(b.started)
	})
	<-ctx.Done()
	return gtfsrt.FetchResult{}, &gtfsrt.FetchError{Key: endpoint.Key, Err: ctx.Err()}
}

func TestRunAgencyLoop_ShutdownCancelsPass(t *testing.T) {
	is := is.New(t)
	tp := newTestPipeline(t)
	fetcher := &blockingFetcher{started: make(chan struct{})}
	tp.pipeline.fetcher = fetcher
	tp.pipeline.fetchTimeout = time.Minute

	wg := sync.WaitGroup{}
	shutdown := make(chan bool, 1)
	wg.Add(1)
	go runAgencyLoop(testLogger(), &wg, tp.pipeline, time.Minute, 0, shutdown)

	select {
	case <-fetcher.started:
	case <-time.After(5 * time.Second):
		t.Fatal("agency loop did not start a pass")
	}

	start := time.Now()
	shutdown <- true
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agency loop did not exit while a fetch was in progress")
	}
	is.True(time.Since(start) < 5*time.Second)
	is.Equal(testutil.ToFloat64(tp.metrics.FusionPassesTotal.WithLabelValues("SF", "failed")), float64(0))
}
