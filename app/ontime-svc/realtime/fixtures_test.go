package realtime

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/ontime/business/agency"
	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/business/snapshot"
	"github.com/OpenTransitTools/ontime/foundation/metrics"
	"google.golang.org/protobuf/proto"
)

const testAgencies = `
agencies:
  - id: SF
    name: San Francisco Municipal Transportation Agency
    timezone: America/Los_Angeles
    monitored: true
    holidays: us
    schedule:
      driver: sqlite3
      path: SF.db
    realtime:
      vehicle_positions_url: http://feeds.example.com/SF/vehicles
      trip_updates_url: http://feeds.example.com/SF/tripupdates
  - id: AC
    name: AC Transit
    timezone: America/Los_Angeles
    monitored: true
    schedule:
      driver: sqlite3
      path: AC.db
    realtime:
      vehicle_positions_url: http://feeds.example.com/AC/vehicles
      trip_updates_url: http://feeds.example.com/AC/tripupdates
      api_key_env: API_KEY_AC
  - id: CT
    name: Caltrain
    timezone: America/Los_Angeles
    schedule:
      driver: sqlite3
      path: CT.db
`

// passTime is 8:00am Monday 2024-01-15 in Los Angeles
var passTime = time.Date(2024, time.January, 15, 16, 0, 0, 0, time.UTC)

func testLogger() *log.Logger {
	return log.New(&bytes.Buffer{}, "", 0)
}

func loadTestAgencies(t *testing.T) []agency.Agency {
	t.Helper()
	agencies, err := agency.Parse([]byte(testAgencies))
	if err != nil {
		t.Fatalf("unable to parse test agencies: %v", err)
	}
	return agencies
}

func makeFeed(t *testing.T, entities ...*gtfsrtpb.FeedEntity) []byte {
	t.Helper()
	feedMessage := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(passTime.Unix())),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(feedMessage)
	if err != nil {
		t.Fatalf("unable to marshal test feed: %v", err)
	}
	return b
}

func vehicleEntity(vehicleId string, tripId string, lat float32, lon float32) *gtfsrtpb.FeedEntity {
	vehicle := &gtfsrtpb.VehiclePosition{
		Position: &gtfsrtpb.Position{
			Latitude:  proto.Float32(lat),
			Longitude: proto.Float32(lon),
		},
		Vehicle: &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleId)},
	}
	if tripId != "" {
		vehicle.Trip = &gtfsrtpb.TripDescriptor{TripId: proto.String(tripId)}
	}
	return &gtfsrtpb.FeedEntity{Id: proto.String("vp-" + vehicleId), Vehicle: vehicle}
}

func delayedTripEntity(tripId string, stopSequence uint32, delaySeconds int32) *gtfsrtpb.FeedEntity {
	return &gtfsrtpb.FeedEntity{
		Id: proto.String("tu-" + tripId),
		TripUpdate: &gtfsrtpb.TripUpdate{
			Trip: &gtfsrtpb.TripDescriptor{TripId: proto.String(tripId)},
			StopTimeUpdate: []*gtfsrtpb.TripUpdate_StopTimeUpdate{
				{
					StopSequence: proto.Uint32(stopSequence),
					Departure:    &gtfsrtpb.TripUpdate_StopTimeEvent{Delay: proto.Int32(delaySeconds)},
				},
			},
		},
	}
}

// fakeFetcher returns configured results by feed kind
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[gtfsrt.Kind][]byte
	errs    map[gtfsrt.Kind]error
	fetched []gtfsrt.Endpoint
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{bodies: make(map[gtfsrt.Kind][]byte), errs: make(map[gtfsrt.Kind]error)}
}

func (f *fakeFetcher) set(kind gtfsrt.Kind, body []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies[kind] = body
	f.errs[kind] = err
}

func (f *fakeFetcher) Fetch(_ context.Context, endpoint gtfsrt.Endpoint, now time.Time) (gtfsrt.FetchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, endpoint)
	kind := endpoint.Key.Kind
	if err := f.errs[kind]; err != nil {
		return gtfsrt.FetchResult{}, &gtfsrt.FetchError{Key: endpoint.Key, Err: err}
	}
	return gtfsrt.FetchResult{Bytes: f.bodies[kind], LastUpdated: now}, nil
}

// fakeScheduleStore serves trip T1 of service WKDY
type fakeScheduleStore struct {
	err error
}

func (f *fakeScheduleStore) Calendars(_ context.Context) ([]gtfs.Calendar, error) {
	return []gtfs.Calendar{{ServiceId: "WKDY", Monday: 1, Tuesday: 1, Wednesday: 1, Thursday: 1, Friday: 1}}, f.err
}

func (f *fakeScheduleStore) CalendarDates(_ context.Context, _ gtfs.ServiceDate) ([]gtfs.CalendarDate, error) {
	return nil, nil
}

func (f *fakeScheduleStore) ScheduledStops(_ context.Context, tripIds []string, _ []string) (map[string][]gtfs.ScheduledStop, error) {
	result := make(map[string][]gtfs.ScheduledStop)
	for _, tripId := range tripIds {
		if tripId != "T1" {
			continue
		}
		result[tripId] = []gtfs.ScheduledStop{
			scheduledStop("T1", 1, "S1", "Main & 1st", 28800),
			scheduledStop("T1", 2, "S2", "Main & 2nd", 29400),
		}
	}
	return result, nil
}

func scheduledStop(tripId string, sequence uint32, stopId string, stopName string, seconds int) gtfs.ScheduledStop {
	return gtfs.ScheduledStop{
		StopTime: gtfs.StopTime{
			TripId:        tripId,
			StopSequence:  sequence,
			StopId:        stopId,
			ArrivalTime:   seconds,
			DepartureTime: seconds,
		},
		StopName:  stopName,
		ServiceId: "WKDY",
		RouteId:   "R1",
	}
}

// recordingPublisher keeps published snapshots
type recordingPublisher struct {
	published []*snapshot.Snapshot
	err       error
}

func (r *recordingPublisher) Publish(s *snapshot.Snapshot) error {
	r.published = append(r.published, s)
	return r.err
}

type testPipeline struct {
	pipeline  *agencyPipeline
	fetcher   *fakeFetcher
	snapshots *snapshot.Store
	metrics   *metrics.Metrics
	publisher *recordingPublisher
}

// newTestPipeline builds a pipeline for agency SF with a real fusion.Engine over fakeScheduleStore
func newTestPipeline(t *testing.T) testPipeline {
	t.Helper()
	agencies := loadTestAgencies(t)
	sf := &agencies[0]
	endpoints, err := sf.Endpoints(func(string) string { return "" })
	if err != nil {
		t.Fatalf("unable to build endpoints: %v", err)
	}
	fetcher := newFakeFetcher()
	snapshots := snapshot.NewStore(agency.Ids(agencies))
	m := metrics.New()
	publisher := &recordingPublisher{}
	engine := fusion.NewEngine(testLogger(), &fakeScheduleStore{})
	pipeline, err := makeAgencyPipeline(testLogger(), sf, endpoints, fetcher, engine, snapshots, publisher, m,
		5*time.Second)
	if err != nil {
		t.Fatalf("unable to build pipeline: %v", err)
	}
	return testPipeline{
		pipeline:  pipeline,
		fetcher:   fetcher,
		snapshots: snapshots,
		metrics:   m,
		publisher: publisher,
	}
}

var errUpstream = errors.New("upstream returned 503")
