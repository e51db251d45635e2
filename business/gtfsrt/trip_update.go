package gtfsrt

import (
	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// StopTimeEvent is a predicted arrival or departure. Time is unix seconds, Delay is seconds from schedule
type StopTimeEvent struct {
	Time  *int64
	Delay *int32
}

// StopTimeUpdate is the realtime prediction for one stop of a trip
type StopTimeUpdate struct {
	StopSequence *uint32
	StopId       *string
	Arrival      *StopTimeEvent
	Departure    *StopTimeEvent
	Skipped      bool
}

// TripUpdate contains fields read from a GTFS-RT trip updates feed
type TripUpdate struct {
	EntityId        string
	TripId          string
	RouteId         *string
	VehicleId       *string
	Timestamp       *int64
	Delay           *int32
	StopTimeUpdates []StopTimeUpdate
}

func makeStopTimeEvent(event *gtfsrtpb.TripUpdate_StopTimeEvent) *StopTimeEvent {
	if event == nil || (event.Time == nil && event.Delay == nil) {
		return nil
	}
	return &StopTimeEvent{Time: event.Time, Delay: event.Delay}
}

// DecodeTripUpdates loads the trip updates of a gtfs-realtime FeedMessage.
// Deleted entities and updates without a trip id are skipped.
func DecodeTripUpdates(feedBytes []byte) ([]TripUpdate, error) {
	feedMessage, err := unmarshalFeed(TripUpdates, feedBytes)
	if err != nil {
		return nil, err
	}
	tripUpdates := make([]TripUpdate, 0, len(feedMessage.Entity))
	for _, entity := range feedMessage.Entity {
		update := entity.GetTripUpdate()
		if update == nil || entity.GetIsDeleted() {
			continue
		}
		trip := update.GetTrip()
		if trip.GetTripId() == "" {
			continue
		}
		tripUpdate := TripUpdate{
			EntityId:        entity.GetId(),
			TripId:          trip.GetTripId(),
			RouteId:         trip.RouteId,
			Delay:           update.Delay,
			StopTimeUpdates: make([]StopTimeUpdate, 0, len(update.StopTimeUpdate)),
		}
		if vehicle := update.GetVehicle(); vehicle != nil && vehicle.GetId() != "" {
			vehicleId := vehicle.GetId()
			tripUpdate.VehicleId = &vehicleId
		}
		if update.Timestamp != nil {
			timestamp := int64(update.GetTimestamp())
			tripUpdate.Timestamp = &timestamp
		}
		for _, stu := range update.StopTimeUpdate {
			tripUpdate.StopTimeUpdates = append(tripUpdate.StopTimeUpdates, StopTimeUpdate{
				StopSequence: stu.StopSequence,
				StopId:       stu.StopId,
				Arrival:      makeStopTimeEvent(stu.GetArrival()),
				Departure:    makeStopTimeEvent(stu.GetDeparture()),
				Skipped:      stu.GetScheduleRelationship() == gtfsrtpb.TripUpdate_StopTimeUpdate_SKIPPED,
			})
		}
		tripUpdates = append(tripUpdates, tripUpdate)
	}
	return tripUpdates, nil
}
