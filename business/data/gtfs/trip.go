package gtfs

// Trip contains data from a gtfs trip definition in a trips.txt file
type Trip struct {
	TripId       string  `db:"trip_id" json:"trip_id"`
	RouteId      string  `db:"route_id" json:"route_id"`
	ServiceId    string  `db:"service_id" json:"service_id"`
	TripHeadsign *string `db:"trip_headsign" json:"trip_headsign"`
}

// Route contains data from a gtfs routes.txt record
type Route struct {
	RouteId        string  `db:"route_id" json:"route_id"`
	RouteShortName *string `db:"route_short_name" json:"route_short_name"`
	RouteLongName  *string `db:"route_long_name" json:"route_long_name"`
	RouteColor     *string `db:"route_color" json:"route_color"`
}

// Stop contains data from a gtfs stops.txt record
type Stop struct {
	StopId   string `db:"stop_id" json:"stop_id"`
	StopName string `db:"stop_name" json:"stop_name"`
}
