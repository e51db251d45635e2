package gtfs

import (
	"context"
	"fmt"

	"github.com/OpenTransitTools/ontime/foundation/database"
)

// StopTime contains a record from a gtfs stop_times.txt file
// represents a scheduled arrival and departure at a stop.
type StopTime struct {
	TripId        string `db:"trip_id" json:"trip_id"`
	StopSequence  uint32 `db:"stop_sequence" json:"stop_sequence"`
	StopId        string `db:"stop_id" json:"stop_id"`
	ArrivalTime   int    `db:"arrival_time" json:"arrival_time"`
	DepartureTime int    `db:"departure_time" json:"departure_time"`
}

// ScheduledStop is a StopTime joined with its trip, stop and route
type ScheduledStop struct {
	StopTime
	StopName       string  `db:"stop_name"`
	ServiceId      string  `db:"service_id"`
	TripHeadsign   *string `db:"trip_headsign"`
	RouteId        string  `db:"route_id"`
	RouteShortName *string `db:"route_short_name"`
	RouteLongName  *string `db:"route_long_name"`
	RouteColor     *string `db:"route_color"`
}

// Trip returns the trip record of the stop
func (s *ScheduledStop) Trip() Trip {
	return Trip{
		TripId:       s.TripId,
		RouteId:      s.RouteId,
		ServiceId:    s.ServiceId,
		TripHeadsign: s.TripHeadsign,
	}
}

// Route returns the route record of the stop
func (s *ScheduledStop) Route() Route {
	return Route{
		RouteId:        s.RouteId,
		RouteShortName: s.RouteShortName,
		RouteLongName:  s.RouteLongName,
		RouteColor:     s.RouteColor,
	}
}

// Stop returns the stop record of the stop
func (s *ScheduledStop) Stop() Stop {
	return Stop{StopId: s.StopId, StopName: s.StopName}
}

// ScheduledStops collects ScheduledStops for tripIds whose service is in serviceIds in a single query.
// Results are keyed by tripId and ordered by stop_sequence. Trips without rows are absent from the map.
func (s *Store) ScheduledStops(ctx context.Context, tripIds []string, serviceIds []string) (map[string][]ScheduledStop, error) {
	results := make(map[string][]ScheduledStop)
	// sqlx.In rejects empty slices, and nothing could match anyway
	if len(tripIds) == 0 || len(serviceIds) == 0 {
		return results, nil
	}

	statementString := "select st.trip_id, st.stop_sequence, st.stop_id, " +
		"st.arrival_timestamp as arrival_time, st.departure_timestamp as departure_time, " +
		"coalesce(s.stop_name, '') as stop_name, " +
		"t.service_id, t.trip_headsign, " +
		"t.route_id, r.route_short_name, r.route_long_name, r.route_color " +
		"from stop_times st " +
		"join trips t on t.trip_id = st.trip_id " +
		"left join stops s on s.stop_id = st.stop_id " +
		"left join routes r on r.route_id = t.route_id " +
		"where st.trip_id in (:trip_ids) and t.service_id in (:service_ids) " +
		"order by st.trip_id, st.stop_sequence"
	query, args, err := database.PrepareNamedQueryFromMap(statementString, s.db, map[string]interface{}{
		"trip_ids":    tripIds,
		"service_ids": serviceIds,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to prepare scheduled stop query: %w", err)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query scheduled stops for %d trips: %w", len(tripIds), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		stop := ScheduledStop{}
		err = rows.StructScan(&stop)
		if err != nil {
			return nil, fmt.Errorf("unable to read scheduled stop row: %w", err)
		}
		results[stop.TripId] = append(results[stop.TripId], stop)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scheduled stops: %w", err)
	}
	return results, nil
}
