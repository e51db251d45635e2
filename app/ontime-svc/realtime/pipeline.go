package realtime

import (
	"context"
	"fmt"
	logger "log"
	"time"

	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"golang.org/x/sync/errgroup"
)

// feedFetcher retrieves raw feed bytes, implemented by gtfsrt.Fetcher
type feedFetcher interface {
	Fetch(ctx context.Context, endpoint gtfsrt.Endpoint, now time.Time) (gtfsrt.FetchResult, error)
}

// fuser runs a fusion pass, implemented by fusion.Engine
type fuser interface {
	Fuse(ctx context.Context, pass fusion.Pass) (*fusion.Result, error)
}

// agencyPipeline fetches, decodes and fuses the feeds of one agency and publishes the result
type agencyPipeline struct {
	log              *logger.Logger
	agency           *agency.Agency
	vehiclesEndpoint gtfsrt.Endpoint
	updatesEndpoint  gtfsrt.Endpoint
	fetcher          feedFetcher
	engine           fuser
	snapshots        *snapshot.Store
	publisher        snapshotPublisher
	metrics          *metrics.Metrics
	fetchTimeout     time.Duration
}

// makeAgencyPipeline builds agencyPipeline from the agency's realtime endpoints
func makeAgencyPipeline(log *logger.Logger,
	a *agency.Agency,
	endpoints []gtfsrt.Endpoint,
	fetcher feedFetcher,
	engine fuser,
	snapshots *snapshot.Store,
	publisher snapshotPublisher,
	m *metrics.Metrics,
	fetchTimeout time.Duration) (*agencyPipeline, error) {

	p := &agencyPipeline{
		log:          log,
		agency:       a,
		fetcher:      fetcher,
		engine:       engine,
		snapshots:    snapshots,
		publisher:    publisher,
		metrics:      m,
		fetchTimeout: fetchTimeout,
	}
	for _, endpoint := range endpoints {
		switch endpoint.Key.Kind {
		case gtfsrt.VehiclePositions:
			p.vehiclesEndpoint = endpoint
		case gtfsrt.TripUpdates:
			p.updatesEndpoint = endpoint
		}
	}
	if len(p.vehiclesEndpoint.URL) == 0 || len(p.updatesEndpoint.URL) == 0 {
		return nil, fmt.Errorf("agency %s requires vehicle positions and trip updates endpoints", a.Id)
	}
	return p, nil
}

// fetchFeeds retrieves both feeds in parallel, bounded by fetchTimeout.
// Trip updates that can not be retrieved at all leave the pass with vehicle positions only.
func (p *agencyPipeline) fetchFeeds(ctx context.Context, now time.Time) (gtfsrt.FetchResult, *gtfsrt.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var vehiclesResult gtfsrt.FetchResult
	var updatesResult *gtfsrt.FetchResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result, err := p.fetcher.Fetch(gctx, p.vehiclesEndpoint, now)
		if err != nil {
			return err
		}
		vehiclesResult = result
		return nil
	})
	g.Go(func() error {
		result, err := p.fetcher.Fetch(gctx, p.updatesEndpoint, now)
		if err != nil {
			p.log.Printf("agency %s continuing without trip updates. error: %v\n", p.agency.Id, err)
			return nil
		}
		updatesResult = &result
		return nil
	})
	if err := g.Wait(); err != nil {
		return gtfsrt.FetchResult{}, nil, err
	}

	for _, result := range []*gtfsrt.FetchResult{&vehiclesResult, updatesResult} {
		if result != nil && result.Warning != nil {
			p.log.Printf("agency %s using cached feed from %s. warning: %v\n", p.agency.Id,
				result.LastUpdated.Format(time.RFC3339), result.Warning)
		}
	}
	return vehiclesResult, updatesResult, nil
}

// runPass performs a single fetch, decode and fusion pass and publishes the new snapshot.
// Any error leaves the previously published snapshot in place.
func (p *agencyPipeline) runPass(ctx context.Context, now time.Time) (*snapshot.Snapshot, error) {
	vehiclesResult, updatesResult, err := p.fetchFeeds(ctx, now)
	if err != nil {
		return nil, err
	}

	vehicles, err := gtfsrt.DecodeVehiclePositions(vehiclesResult.Bytes)
	if err != nil {
		p.metrics.DecodeErrorsTotal.WithLabelValues(p.agency.Id, string(gtfsrt.VehiclePositions)).Inc()
		return nil, err
	}
	var tripUpdates []gtfsrt.TripUpdate
	if updatesResult != nil {
		tripUpdates, err = gtfsrt.DecodeTripUpdates(updatesResult.Bytes)
		if err != nil {
			p.metrics.DecodeErrorsTotal.WithLabelValues(p.agency.Id, string(gtfsrt.TripUpdates)).Inc()
			return nil, err
		}
	}

	serviceDate := p.agency.ServiceDate(now)
	result, err := p.engine.Fuse(ctx, fusion.Pass{
		AgencyId:    p.agency.Id,
		Location:    p.agency.Location(),
		ServiceDate: serviceDate,
		Holiday:     p.agency.HolidayName(serviceDate),
		Vehicles:    vehicles,
		TripUpdates: tripUpdates,
	})
	if err != nil {
		return nil, err
	}

	snap := snapshot.New(result, now)
	if err = p.snapshots.Publish(snap); err != nil {
		return nil, fmt.Errorf("publishing snapshot for agency %s: %w", p.agency.Id, err)
	}
	p.metrics.VehiclesPublished.WithLabelValues(p.agency.Id).Set(float64(len(snap.Vehicles)))
	p.metrics.UnscheduledVehicles.WithLabelValues(p.agency.Id).Set(float64(snap.Unscheduled))

	if p.publisher != nil {
		if err = p.publisher.Publish(snap); err != nil {
			p.log.Printf("agency %s unable to publish snapshot. error: %v\n", p.agency.Id, err)
		}
	}
	return snap, nil
}
