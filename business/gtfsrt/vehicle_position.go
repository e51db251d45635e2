package gtfsrt

import (
	"bytes"
	"strconv"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

// VehiclePosition contains fields read from a GTFS-RT vehicle positions feed.
// fields that are optional are pointers and will be nil if they were not present in the feed
type VehiclePosition struct {
	EntityId  string
	Id        string
	Label     string
	TripId    *string
	RouteId   *string
	Latitude  float64
	Longitude float64
	Bearing   *float64
	// OccupancyStatus is the feed's enum name, for example MANY_SEATS_AVAILABLE
	OccupancyStatus   *string
	VehicleStopStatus VehicleStopStatus
	StopSequence      *uint32
	StopId            *string
	Timestamp         *int64
}

// String implements Stringer interface for VehiclePosition
func (v *VehiclePosition) String() string {
	var buffer bytes.Buffer
	buffer.WriteString("VehiclePosition{ id:")
	buffer.WriteString(v.Id)
	buffer.WriteString(", Label:\"")
	buffer.WriteString(v.Label)
	buffer.WriteString("\", TripId:")
	if v.TripId == nil {
		buffer.WriteString("unknown")
	} else {
		buffer.WriteString(*v.TripId)
	}
	buffer.WriteString(", StopSequence:")
	if v.StopSequence == nil {
		buffer.WriteString("unknown")
	} else {
		buffer.WriteString(strconv.FormatInt(int64(*v.StopSequence), 10))
	}
	buffer.WriteString(", StopStatus:")
	buffer.WriteString(v.VehicleStopStatus.String())
	buffer.WriteString(" }")
	return buffer.String()
}

// VehicleStopStatus defines the possible relationship a vehicle has to a stop in GTFS
type VehicleStopStatus int

const (
	Unknown VehicleStopStatus = -1
	// IncomingAt indicates vehicle is just about to arrive at the stop (on a stop
	// display, the vehicle symbol typically flashes).
	IncomingAt VehicleStopStatus = 0
	// StoppedAt indicates vehicle is at the stop.
	StoppedAt VehicleStopStatus = 1
	// InTransitTo indicates vehicle has departed a previous stop and is in transit to the next stop.
	InTransitTo VehicleStopStatus = 2
)

// String - Stringer interface for VehicleStopStatus
func (s VehicleStopStatus) String() string {
	switch s {
	case IncomingAt:
		return "INCOMING_AT"
	case StoppedAt:
		return "STOPPED_AT"
	case InTransitTo:
		return "IN_TRANSIT_TO"
	}
	return "UNKNOWN"
}

// IsUnknown convenience method to test for unknown VehicleStopStatus
func (s VehicleStopStatus) IsUnknown() bool {
	return s == Unknown
}

// getVehicleStopStatus converts gtfs status to VehicleStopStatus
func getVehicleStopStatus(status *gtfsrtpb.VehiclePosition_VehicleStopStatus) VehicleStopStatus {
	if status == nil {
		return Unknown
	}
	switch *status {
	case gtfsrtpb.VehiclePosition_INCOMING_AT:
		return IncomingAt
	case gtfsrtpb.VehiclePosition_STOPPED_AT:
		return StoppedAt
	case gtfsrtpb.VehiclePosition_IN_TRANSIT_TO:
		return InTransitTo
	default:
		return Unknown
	}
}

func unmarshalFeed(kind Kind, feedBytes []byte) (*gtfsrtpb.FeedMessage, error) {
	feedMessage := &gtfsrtpb.FeedMessage{}
	if err := proto.Unmarshal(feedBytes, feedMessage); err != nil {
		return nil, &DecodeError{Kind: kind, Err: err}
	}
	return feedMessage, nil
}

/*
DecodeVehiclePositions loads the vehicles of a gtfs-realtime FeedMessage into non-protocol buffer objects.
Any changes to the GTFS-realtime protocol or generated code can be handled here and not elsewhere in the program.
Deleted entities and vehicles without a position are skipped. The vehicle id is the vehicle descriptor's id,
or the entity id when the feed does not provide one.
*/
func DecodeVehiclePositions(feedBytes []byte) ([]VehiclePosition, error) {
	feedMessage, err := unmarshalFeed(VehiclePositions, feedBytes)
	if err != nil {
		return nil, err
	}
	vehiclePositions := make([]VehiclePosition, 0, len(feedMessage.Entity))
	for _, entity := range feedMessage.Entity {
		vehicle := entity.GetVehicle()
		if vehicle == nil || entity.GetIsDeleted() {
			continue
		}
		vehPos := vehicle.GetPosition()
		if vehPos == nil {
			continue
		}
		position := VehiclePosition{
			EntityId:          entity.GetId(),
			Id:                entity.GetId(),
			Latitude:          float64(vehPos.GetLatitude()),
			Longitude:         float64(vehPos.GetLongitude()),
			StopSequence:      vehicle.CurrentStopSequence,
			StopId:            vehicle.StopId,
			VehicleStopStatus: getVehicleStopStatus(vehicle.CurrentStatus),
		}
		if vehicleDescriptor := vehicle.GetVehicle(); vehicleDescriptor != nil {
			if vehicleDescriptor.GetId() != "" {
				position.Id = vehicleDescriptor.GetId()
			}
			position.Label = vehicleDescriptor.GetLabel()
		}
		if trip := vehicle.GetTrip(); trip != nil {
			position.TripId = trip.TripId
			position.RouteId = trip.RouteId
		}
		if vehPos.Bearing != nil {
			bearing := float64(vehPos.GetBearing())
			position.Bearing = &bearing
		}
		if vehicle.OccupancyStatus != nil {
			occupancy := vehicle.GetOccupancyStatus().String()
			position.OccupancyStatus = &occupancy
		}
		if vehicle.Timestamp != nil {
			timestamp := int64(vehicle.GetTimestamp())
			position.Timestamp = &timestamp
		}

		vehiclePositions = append(vehiclePositions, position)
	}
	return vehiclePositions, nil
}
