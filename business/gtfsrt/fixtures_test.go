package gtfsrt

import (
	"testing"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

func makeFeed(t *testing.T, entities ...*gtfsrtpb.FeedEntity) []byte {
	t.Helper()
	feedMessage := &gtfsrtpb.FeedMessage{
		Header: &gtfsrtpb.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfsrtpb.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(1705334400),
		},
		Entity: entities,
	}
	b, err := proto.Marshal(feedMessage)
	if err != nil {
		t.Fatalf("unable to marshal test feed: %v", err)
	}
	return b
}

func vehicleEntity(entityId string, vehicleId string, tripId string, lat float32, lon float32) *gtfsrtpb.FeedEntity {
	vehicle := &gtfsrtpb.VehiclePosition{
		Position: &gtfsrtpb.Position{
			Latitude:  proto.Float32(lat),
			Longitude: proto.Float32(lon),
		},
	}
	if vehicleId != "" {
		vehicle.Vehicle = &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleId)}
	}
	if tripId != "" {
		vehicle.Trip = &gtfsrtpb.TripDescriptor{TripId: proto.String(tripId)}
	}
	return &gtfsrtpb.FeedEntity{Id: proto.String(entityId), Vehicle: vehicle}
}

func tripUpdateEntity(entityId string, tripId string, vehicleId string, updates ...*gtfsrtpb.TripUpdate_StopTimeUpdate) *gtfsrtpb.FeedEntity {
	update := &gtfsrtpb.TripUpdate{
		Trip:           &gtfsrtpb.TripDescriptor{TripId: proto.String(tripId)},
		StopTimeUpdate: updates,
	}
	if vehicleId != "" {
		update.Vehicle = &gtfsrtpb.VehicleDescriptor{Id: proto.String(vehicleId)}
	}
	return &gtfsrtpb.FeedEntity{Id: proto.String(entityId), TripUpdate: update}
}
