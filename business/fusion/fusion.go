// Package fusion joins realtime vehicle positions and trip updates with the static schedule
package fusion

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTransitTools/ontime/business/data/gtfs"
)

// FusedStop is a scheduled stop of a vehicle's trip with its live prediction
type FusedStop struct {
	StopSequence       uint32     `json:"stop_sequence"`
	StopId             string     `json:"stop_id"`
	StopName           string     `json:"stop_name"`
	ScheduledArrival   time.Time  `json:"scheduled_arrival"`
	ScheduledDeparture time.Time  `json:"scheduled_departure"`
	Predicted          *time.Time `json:"predicted"`
	Skipped            bool       `json:"skipped,omitempty"`
}

// FusedRoute is the route metadata of a vehicle's trip
type FusedRoute struct {
	RouteId   string  `json:"route_id"`
	ShortName *string `json:"short_name"`
	LongName  *string `json:"long_name"`
	Color     *string `json:"color"`
}

// FusedVehicle is a live vehicle with its upcoming stops.
// Stops is empty, never nil, when the vehicle could not be matched to an active scheduled trip.
type FusedVehicle struct {
	Id                  string      `json:"id"`
	AgencyId            string      `json:"agency_id"`
	Label               string      `json:"label,omitempty"`
	Latitude            float64     `json:"lat"`
	Longitude           float64     `json:"lon"`
	Bearing             *float64    `json:"bearing"`
	OccupancyStatus     *string     `json:"occupancy_status"`
	CurrentStatus       *string     `json:"current_status"`
	CurrentStopSequence *uint32     `json:"current_stop_sequence"`
	Timestamp           *time.Time  `json:"timestamp"`
	TripId              *string     `json:"trip_id"`
	Headsign            *string     `json:"headsign"`
	Route               *FusedRoute `json:"route"`
	Scheduled           bool        `json:"scheduled"`
	Stops               []FusedStop `json:"stops"`
}

// Key returns the vehicle's identity within its agency
func (v *FusedVehicle) Key() gtfs.EntityKey {
	return gtfs.EntityKey{AgencyId: v.AgencyId, LocalId: v.Id}
}

// ScheduleStore provides the static schedule data a fusion pass needs, implemented by gtfs.Store
type ScheduleStore interface {
	Calendars(ctx context.Context) ([]gtfs.Calendar, error)
	CalendarDates(ctx context.Context, serviceDate gtfs.ServiceDate) ([]gtfs.CalendarDate, error)
	ScheduledStops(ctx context.Context, tripIds []string, serviceIds []string) (map[string][]gtfs.ScheduledStop, error)
}

// ScheduleStoreError is produced when the schedule store could not be read, the whole pass is unusable
type ScheduleStoreError struct {
	AgencyId string
	Op       string
	Err      error
}

func (e *ScheduleStoreError) Error() string {
	return fmt.Sprintf("schedule store for agency %s failed to %s: %v", e.AgencyId, e.Op, e.Err)
}

func (e *ScheduleStoreError) Unwrap() error {
	return e.Err
}
