package gtfs

import (
	"context"
	"testing"
	"time"

	"github.com/OpenTransitTools/ontime/foundation/database"
	"github.com/matryer/is"
)

const storeFixture = `
insert into routes values ('R1', '1', 'California', 'FF0000');
insert into stops values ('S1', 'Main & 1st', 37.79, -122.40);
insert into stops values ('S2', 'Main & 2nd', 37.80, -122.41);
insert into stops values ('S3', 'Main & 3rd', 37.81, -122.42);
insert into trips values ('T1', 'R1', 'WKDY', 'Downtown');
insert into trips values ('T2', 'R1', 'SAT', null);
insert into stop_times values ('T1', 2, 'S2', 29100, 29130);
insert into stop_times values ('T1', 1, 'S1', 28800, 28800);
insert into stop_times values ('T1', 3, 'S3', 29400, 29400);
insert into stop_times values ('T2', 1, 'S1', 36000, 36000);
insert into calendar values ('WKDY', 1, 1, 1, 1, 1, 0, 0, 20240101, 20241231);
insert into calendar values ('SAT', 0, 0, 0, 0, 0, 1, 0, 20240101, 20241231);
insert into calendar_dates values ('WKDY', 20240115, 2);
insert into calendar_dates values ('SAT', 20240115, 1);
insert into calendar_dates values ('WKDY', 20240116, 2);
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(database.Config{Driver: database.DriverSQLite, Path: ":memory:"})
	if err != nil {
		t.Fatalf("unable to open test database: %v", err)
	}
	if _, err = db.Exec(Schema); err != nil {
		t.Fatalf("unable to create schema: %v", err)
	}
	if _, err = db.Exec(storeFixture); err != nil {
		t.Fatalf("unable to load fixture: %v", err)
	}
	store := NewStore(db)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestStore_ScheduledStops(t *testing.T) {
	is := is.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	results, err := store.ScheduledStops(ctx, []string{"T1", "T2", "MISSING"}, []string{"WKDY"})
	is.NoErr(err)
	is.Equal(len(results), 1)

	stops := results["T1"]
	is.Equal(len(stops), 3)
	for i, stop := range stops {
		is.Equal(stop.StopSequence, uint32(i+1))
	}
	first := stops[0]
	is.Equal(first.StopName, "Main & 1st")
	is.Equal(first.ArrivalTime, 28800)
	is.Equal(stops[1].DepartureTime, 29130)
	is.Equal(*first.Trip().TripHeadsign, "Downtown")
	is.Equal(*first.Route().RouteShortName, "1")
	is.Equal(*first.Route().RouteColor, "FF0000")
	is.Equal(first.Stop(), Stop{StopId: "S1", StopName: "Main & 1st"})

	results, err = store.ScheduledStops(ctx, []string{"T2"}, []string{"WKDY", "SAT"})
	is.NoErr(err)
	is.Equal(len(results["T2"]), 1)
	is.True(results["T2"][0].TripHeadsign == nil)
}

func TestStore_ScheduledStopsEmptyArguments(t *testing.T) {
	is := is.New(t)
	store := newTestStore(t)

	results, err := store.ScheduledStops(context.Background(), nil, []string{"WKDY"})
	is.NoErr(err)
	is.Equal(len(results), 0)

	results, err = store.ScheduledStops(context.Background(), []string{"T1"}, nil)
	is.NoErr(err)
	is.Equal(len(results), 0)
}

func TestStore_GetActiveServiceIds(t *testing.T) {
	is := is.New(t)
	store := newTestStore(t)
	ctx := context.Background()

	// monday: WKDY removed, SAT added
	services, err := GetActiveServiceIds(ctx, store, ServiceDate{Year: 2024, Month: time.January, Day: 15})
	is.NoErr(err)
	is.Equal(services.Ids(), []string{"SAT"})

	// wednesday: no exceptions
	services, err = GetActiveServiceIds(ctx, store, ServiceDate{Year: 2024, Month: time.January, Day: 17})
	is.NoErr(err)
	is.Equal(services.Ids(), []string{"WKDY"})

	calendarDates, err := store.CalendarDates(ctx, ServiceDate{Year: 2024, Month: time.January, Day: 16})
	is.NoErr(err)
	is.Equal(calendarDates, []CalendarDate{{ServiceId: "WKDY", Date: 20240116, ExceptionType: ExceptionRemoved}})
}

func TestStore_ClosedDatabase(t *testing.T) {
	is := is.New(t)
	store := newTestStore(t)
	is.NoErr(store.Close())

	_, err := store.Calendars(context.Background())
	is.True(err != nil)
	_, err = store.ScheduledStops(context.Background(), []string{"T1"}, []string{"WKDY"})
	is.True(err != nil)
}
