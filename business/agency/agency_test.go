package agency

import (
	"strings"
	"testing"
	"time"

	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/foundation/database"
	"github.com/matryer/is"
	"github.com/rickar/cal/v2/us"
)

func testEnv(values map[string]string) func(string) string {
	return func(key string) string {
		return values[key]
	}
}

func TestLoadFile(t *testing.T) {
	is := is.New(t)
	agencies, err := LoadFile("testdata/agencies.yaml")
	is.NoErr(err)
	is.Equal(Ids(agencies), []string{"SF", "AC", "CT"})

	sf := agencies[0]
	is.True(sf.Monitored)
	is.Equal(sf.Location().String(), "America/Los_Angeles")
	is.Equal(sf.DatabaseConfig(testEnv(nil)), database.Config{Driver: database.DriverSQLite, Path: "data/SF.db"})

	ct := agencies[2]
	is.True(!ct.Monitored)
	is.True(ct.Realtime == nil)

	ac := agencies[1]
	cfg := ac.DatabaseConfig(testEnv(map[string]string{"AC_DB_PASSWORD": "secret"}))
	is.Equal(cfg.Driver, database.DriverPostgres)
	is.Equal(cfg.Password, "secret")
	is.True(cfg.DisableTLS)
}

func TestAgency_Endpoints(t *testing.T) {
	is := is.New(t)
	agencies, err := LoadFile("testdata/agencies.yaml")
	is.NoErr(err)
	env := testEnv(map[string]string{"API_KEY_SF": "abc123", "API_KEY_AC": "xyz"})

	endpoints, err := agencies[0].Endpoints(env)
	is.NoErr(err)
	is.Equal(len(endpoints), 2)
	is.Equal(endpoints[0].Key, gtfsrt.FeedKey{AgencyId: "SF", Kind: gtfsrt.VehiclePositions})
	is.Equal(endpoints[0].URL, "http://api.511.org/Transit/VehiclePositions?agency=SF&api_key=abc123")
	is.Equal(endpoints[1].Key.Kind, gtfsrt.TripUpdates)
	is.True(endpoints[0].Headers == nil)

	endpoints, err = agencies[1].Endpoints(env)
	is.NoErr(err)
	is.Equal(endpoints[1].URL, "https://api.actransit.org/transit/gtfsrt/tripupdates")
	is.Equal(endpoints[1].Headers, map[string]string{"X-Api-Key": "xyz"})

	_, err = agencies[0].Endpoints(testEnv(nil))
	is.True(err != nil)

	_, err = agencies[2].Endpoints(env)
	is.True(err != nil)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no agencies",
			yaml:    "agencies: []",
			wantErr: "Agencies",
		},
		{
			name: "bad timezone",
			yaml: `
agencies:
  - id: SF
    name: Muni
    timezone: Pacific/Nowhere
    schedule: {driver: sqlite3, path: SF.db}`,
			wantErr: "Timezone",
		},
		{
			name: "monitored without realtime",
			yaml: `
agencies:
  - id: SF
    name: Muni
    timezone: America/Los_Angeles
    monitored: true
    schedule: {driver: sqlite3, path: SF.db}`,
			wantErr: "Realtime",
		},
		{
			name: "sqlite without path",
			yaml: `
agencies:
  - id: SF
    name: Muni
    timezone: America/Los_Angeles
    schedule: {driver: sqlite3}`,
			wantErr: "Path",
		},
		{
			name: "unknown driver",
			yaml: `
agencies:
  - id: SF
    name: Muni
    timezone: America/Los_Angeles
    schedule: {driver: oracle, path: SF.db}`,
			wantErr: "Driver",
		},
		{
			name: "id with path characters",
			yaml: `
agencies:
  - id: ../SF
    name: Muni
    timezone: America/Los_Angeles
    schedule: {driver: sqlite3, path: SF.db}`,
			wantErr: "Id",
		},
		{
			name: "duplicate id",
			yaml: `
agencies:
  - id: SF
    name: Muni
    timezone: America/Los_Angeles
    schedule: {driver: sqlite3, path: SF.db}
  - id: SF
    name: Muni again
    timezone: America/Los_Angeles
    schedule: {driver: sqlite3, path: SF2.db}`,
			wantErr: "more than once",
		},
		{
			name:    "not yaml",
			yaml:    "agencies: [",
			wantErr: "yaml",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatalf("Parse() produced no error, but we want one")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestAgency_HolidayName(t *testing.T) {
	is := is.New(t)
	agencies, err := LoadFile("testdata/agencies.yaml")
	is.NoErr(err)
	sf, ct := agencies[0], agencies[2]

	mlkDay := gtfs.ServiceDate{Year: 2024, Month: time.January, Day: 15}
	is.Equal(sf.HolidayName(mlkDay), us.MlkDay.Name)
	is.Equal(sf.HolidayName(gtfs.ServiceDate{Year: 2024, Month: time.January, Day: 16}), "")
	is.Equal(ct.HolidayName(mlkDay), "")

	// 7pm pacific on the 15th is the 16th in UTC
	is.Equal(sf.ServiceDate(time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)), mlkDay)
}
