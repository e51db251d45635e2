package fusion

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
)

// Pass is the input of one fusion pass for one agency.
// ServiceDate is supplied by the caller, the engine never reads the clock.
type Pass struct {
	AgencyId    string
	Location    *time.Location
	ServiceDate gtfs.ServiceDate
	Holiday     string
	Vehicles    []gtfsrt.VehiclePosition
	TripUpdates []gtfsrt.TripUpdate
}

// Result is the output of a fusion pass
type Result struct {
	AgencyId   string
	ServiceDay gtfs.ServiceDay
	Vehicles   []FusedVehicle
	// Unscheduled counts vehicles without an active scheduled trip
	Unscheduled int
}

// Engine fuses realtime feeds of one agency with its schedule store
type Engine struct {
	log   *log.Logger
	store ScheduleStore
}

// NewEngine creates Engine reading schedules from store
func NewEngine(log *log.Logger, store ScheduleStore) *Engine {
	return &Engine{log: log, store: store}
}

// tripUpdateIndex locates trip updates by trip and by vehicle
type tripUpdateIndex struct {
	byTrip    map[string]*gtfsrt.TripUpdate
	byVehicle map[string]*gtfsrt.TripUpdate
}

func makeTripUpdateIndex(tripUpdates []gtfsrt.TripUpdate) tripUpdateIndex {
	index := tripUpdateIndex{
		byTrip:    make(map[string]*gtfsrt.TripUpdate, len(tripUpdates)),
		byVehicle: make(map[string]*gtfsrt.TripUpdate, len(tripUpdates)),
	}
	for i := range tripUpdates {
		update := &tripUpdates[i]
		if _, present := index.byTrip[update.TripId]; !present {
			index.byTrip[update.TripId] = update
		}
		if update.VehicleId != nil {
			if _, present := index.byVehicle[*update.VehicleId]; !present {
				index.byVehicle[*update.VehicleId] = update
			}
		}
	}
	return index
}

// resolveTripId uses the vehicle's own trip reference, then the trip update naming the vehicle
func (idx *tripUpdateIndex) resolveTripId(vehicle *gtfsrt.VehiclePosition) *string {
	if vehicle.TripId != nil && len(*vehicle.TripId) > 0 {
		return vehicle.TripId
	}
	if update, present := idx.byVehicle[vehicle.Id]; present {
		tripId := update.TripId
		return &tripId
	}
	return nil
}

// tripUpdateFor prefers the update for tripId reported by the vehicle itself
func (idx *tripUpdateIndex) tripUpdateFor(vehicleId string, tripId string) *gtfsrt.TripUpdate {
	if update, present := idx.byVehicle[vehicleId]; present && update.TripId == tripId {
		return update
	}
	return idx.byTrip[tripId]
}

// Fuse produces a FusedVehicle for every vehicle in pass, in feed order.
// Stop data for all vehicles is loaded with a single schedule query restricted to the services active on pass.ServiceDate.
// Any schedule store failure discards the pass with a *ScheduleStoreError.
func (e *Engine) Fuse(ctx context.Context, pass Pass) (*Result, error) {
	location := pass.Location
	if location == nil {
		location = time.UTC
	}

	index := makeTripUpdateIndex(pass.TripUpdates)
	resolvedTripIds := make([]*string, len(pass.Vehicles))
	tripIdSet := make(map[string]bool)
	for i := range pass.Vehicles {
		tripId := index.resolveTripId(&pass.Vehicles[i])
		resolvedTripIds[i] = tripId
		if tripId != nil {
			tripIdSet[*tripId] = true
		}
	}

	services, err := gtfs.GetActiveServiceIds(ctx, e.store, pass.ServiceDate)
	if err != nil {
		return nil, &ScheduleStoreError{AgencyId: pass.AgencyId, Op: "load active services", Err: err}
	}

	tripIds := make([]string, 0, len(tripIdSet))
	for tripId := range tripIdSet {
		tripIds = append(tripIds, tripId)
	}
	sort.Strings(tripIds)
	scheduledStops, err := e.store.ScheduledStops(ctx, tripIds, services.Ids())
	if err != nil {
		return nil, &ScheduleStoreError{AgencyId: pass.AgencyId, Op: "load scheduled stops", Err: err}
	}

	result := &Result{
		AgencyId:   pass.AgencyId,
		ServiceDay: gtfs.NewServiceDay(pass.ServiceDate, services, pass.Holiday),
		Vehicles:   make([]FusedVehicle, 0, len(pass.Vehicles)),
	}
	midnight := pass.ServiceDate.Midnight(location)
	seen := make(map[gtfs.EntityKey]bool, len(pass.Vehicles))
	for i := range pass.Vehicles {
		vehicle := &pass.Vehicles[i]
		fused := makeFusedVehicle(pass.AgencyId, vehicle, location)
		key := fused.Key()
		if seen[key] {
			e.log.Printf("vehicle %s appears more than once in feed, keeping first\n", key)
			continue
		}
		seen[key] = true

		fused.TripId = resolvedTripIds[i]
		if fused.TripId != nil {
			stops := scheduledStops[*fused.TripId]
			if len(stops) > 0 {
				update := index.tripUpdateFor(vehicle.Id, *fused.TripId)
				applySchedule(&fused, stops, update, midnight, location)
			}
		}
		if !fused.Scheduled {
			result.Unscheduled++
		}
		result.Vehicles = append(result.Vehicles, fused)
	}
	return result, nil
}

func makeFusedVehicle(agencyId string, vehicle *gtfsrt.VehiclePosition, location *time.Location) FusedVehicle {
	fused := FusedVehicle{
		Id:                  vehicle.Id,
		AgencyId:            agencyId,
		Label:               vehicle.Label,
		Latitude:            vehicle.Latitude,
		Longitude:           vehicle.Longitude,
		Bearing:             vehicle.Bearing,
		OccupancyStatus:     vehicle.OccupancyStatus,
		CurrentStopSequence: vehicle.StopSequence,
		Stops:               []FusedStop{},
	}
	if !vehicle.VehicleStopStatus.IsUnknown() {
		status := vehicle.VehicleStopStatus.String()
		fused.CurrentStatus = &status
	}
	if vehicle.Timestamp != nil {
		timestamp := time.Unix(*vehicle.Timestamp, 0).In(location)
		fused.Timestamp = &timestamp
	}
	if vehicle.RouteId != nil {
		fused.Route = &FusedRoute{RouteId: *vehicle.RouteId}
	}
	return fused
}

// applySchedule attaches route metadata and the ordered stops of the vehicle's trip
func applySchedule(fused *FusedVehicle,
	stops []gtfs.ScheduledStop,
	update *gtfsrt.TripUpdate,
	midnight time.Time,
	location *time.Location) {

	first := &stops[0]
	fused.Scheduled = true
	fused.Headsign = first.Trip().TripHeadsign
	route := first.Route()
	fused.Route = &FusedRoute{
		RouteId:   route.RouteId,
		ShortName: route.RouteShortName,
		LongName:  route.RouteLongName,
		Color:     route.RouteColor,
	}

	fusedStops := make([]FusedStop, 0, len(stops))
	for i := range stops {
		stop := &stops[i]
		stopRecord := stop.Stop()
		fusedStop := FusedStop{
			StopSequence:       stop.StopSequence,
			StopId:             stopRecord.StopId,
			StopName:           stopRecord.StopName,
			ScheduledArrival:   gtfs.MakeScheduleTime(midnight, stop.ArrivalTime),
			ScheduledDeparture: gtfs.MakeScheduleTime(midnight, stop.DepartureTime),
		}
		if stopUpdate := findStopTimeUpdate(update, stop); stopUpdate != nil {
			fusedStop.Skipped = stopUpdate.Skipped
			if !stopUpdate.Skipped {
				fusedStop.Predicted = predictedTime(stopUpdate, fusedStop.ScheduledArrival, fusedStop.ScheduledDeparture, location)
			}
		}
		fusedStops = append(fusedStops, fusedStop)
	}
	sort.SliceStable(fusedStops, func(i, j int) bool {
		return fusedStops[i].StopSequence < fusedStops[j].StopSequence
	})
	fused.Stops = fusedStops
}

// findStopTimeUpdate matches on stop_sequence, or on stop_id for updates that carry no sequence
func findStopTimeUpdate(update *gtfsrt.TripUpdate, stop *gtfs.ScheduledStop) *gtfsrt.StopTimeUpdate {
	if update == nil {
		return nil
	}
	for i := range update.StopTimeUpdates {
		stu := &update.StopTimeUpdates[i]
		if stu.StopSequence != nil {
			if *stu.StopSequence == stop.StopSequence {
				return stu
			}
			continue
		}
		if stu.StopId != nil && *stu.StopId == stop.StopId {
			return stu
		}
	}
	return nil
}

// predictedTime takes the predicted departure, else the predicted arrival.
// Events carrying only a delay are applied to the matching scheduled time after absolute times are considered.
func predictedTime(stu *gtfsrt.StopTimeUpdate,
	scheduledArrival time.Time,
	scheduledDeparture time.Time,
	location *time.Location) *time.Time {

	if stu.Departure != nil && stu.Departure.Time != nil {
		t := time.Unix(*stu.Departure.Time, 0).In(location)
		return &t
	}
	if stu.Arrival != nil && stu.Arrival.Time != nil {
		t := time.Unix(*stu.Arrival.Time, 0).In(location)
		return &t
	}
	if stu.Departure != nil && stu.Departure.Delay != nil {
		t := scheduledDeparture.Add(time.Duration(*stu.Departure.Delay) * time.Second)
		return &t
	}
	if stu.Arrival != nil && stu.Arrival.Delay != nil {
		t := scheduledArrival.Add(time.Duration(*stu.Arrival.Delay) * time.Second)
		return &t
	}
	return nil
}
