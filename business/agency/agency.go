// Package agency loads the transit agencies served by ontime
package agency

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/gtfsrt"
	"github.com/OpenTransitTools/ontime/foundation/database"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ScheduleSource locates an agency's schedule store
type ScheduleSource struct {
	Driver      string `yaml:"driver" validate:"required,oneof=sqlite3 pgx"`
	Path        string `yaml:"path" validate:"required_if=Driver sqlite3"`
	Host        string `yaml:"host" validate:"required_if=Driver pgx"`
	Name        string `yaml:"name" validate:"required_if=Driver pgx"`
	User        string `yaml:"user"`
	PasswordEnv string `yaml:"password_env"`
	DisableTLS  bool   `yaml:"disable_tls"`
}

// RealtimeSource locates an agency's gtfs-realtime feeds.
// The api key is read from the environment variable APIKeyEnv and sent as the APIKeyParam query parameter
// or, when APIKeyHeader is set, as that header.
type RealtimeSource struct {
	VehiclePositionsURL string `yaml:"vehicle_positions_url" validate:"required,url"`
	TripUpdatesURL      string `yaml:"trip_updates_url" validate:"required,url"`
	APIKeyEnv           string `yaml:"api_key_env"`
	APIKeyParam         string `yaml:"api_key_param"`
	APIKeyHeader        string `yaml:"api_key_header"`
}

// Agency is a transit operator with a schedule store and, when Monitored, realtime feeds
type Agency struct {
	Id        string          `yaml:"id" json:"id" validate:"required,alphanum"`
	Name      string          `yaml:"name" json:"name" validate:"required"`
	Timezone  string          `yaml:"timezone" json:"timezone" validate:"required,timezone"`
	Monitored bool            `yaml:"monitored" json:"monitored"`
	Holidays  string          `yaml:"holidays" json:"-" validate:"omitempty,oneof=us none"`
	Schedule  ScheduleSource  `yaml:"schedule" json:"-" validate:"required"`
	Realtime  *RealtimeSource `yaml:"realtime" json:"-" validate:"required_if=Monitored true"`

	location *time.Location
	holidays *holidayCalendar
}

type agencyFile struct {
	Agencies []Agency `yaml:"agencies" validate:"required,min=1,dive"`
}

// LoadFile reads and validates the agencies in the yaml file at path
func LoadFile(path string) ([]Agency, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read agency file %s: %w", path, err)
	}
	agencies, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("agency file %s: %w", path, err)
	}
	return agencies, nil
}

// Parse validates yaml agency definitions
func Parse(data []byte) ([]Agency, error) {
	var file agencyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	v := validator.New()
	if err := v.Struct(file); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(file.Agencies))
	for i := range file.Agencies {
		a := &file.Agencies[i]
		if seen[a.Id] {
			return nil, fmt.Errorf("agency %s is defined more than once", a.Id)
		}
		seen[a.Id] = true

		location, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return nil, fmt.Errorf("agency %s timezone: %w", a.Id, err)
		}
		a.location = location
		a.holidays = makeHolidayCalendar(a.Holidays)
	}
	return file.Agencies, nil
}

// Location returns the agency's timezone
func (a *Agency) Location() *time.Location {
	if a.location == nil {
		return time.UTC
	}
	return a.location
}

// ServiceDate returns the agency's service date at instant now
func (a *Agency) ServiceDate(now time.Time) gtfs.ServiceDate {
	return gtfs.ServiceDateAt(now, a.Location())
}

// HolidayName returns the observed holiday on date, or an empty string
func (a *Agency) HolidayName(date gtfs.ServiceDate) string {
	if a.holidays == nil {
		return ""
	}
	return a.holidays.holidayName(date.Midnight(a.Location()).Add(12 * time.Hour))
}

// DatabaseConfig returns the connection settings of the agency's schedule store
func (a *Agency) DatabaseConfig(getenv func(string) string) database.Config {
	cfg := database.Config{
		Driver:     a.Schedule.Driver,
		Path:       a.Schedule.Path,
		User:       a.Schedule.User,
		Host:       a.Schedule.Host,
		Name:       a.Schedule.Name,
		DisableTLS: a.Schedule.DisableTLS,
	}
	if a.Schedule.PasswordEnv != "" {
		cfg.Password = getenv(a.Schedule.PasswordEnv)
	}
	return cfg
}

// Endpoints returns the vehicle positions and trip updates endpoints with credentials applied
func (a *Agency) Endpoints(getenv func(string) string) ([]gtfsrt.Endpoint, error) {
	if a.Realtime == nil {
		return nil, fmt.Errorf("agency %s has no realtime feeds", a.Id)
	}
	apiKey := ""
	if a.Realtime.APIKeyEnv != "" {
		apiKey = getenv(a.Realtime.APIKeyEnv)
		if apiKey == "" {
			return nil, fmt.Errorf("agency %s api key environment variable %s is not set", a.Id, a.Realtime.APIKeyEnv)
		}
	}

	feeds := []struct {
		kind gtfsrt.Kind
		url  string
	}{
		{gtfsrt.VehiclePositions, a.Realtime.VehiclePositionsURL},
		{gtfsrt.TripUpdates, a.Realtime.TripUpdatesURL},
	}
	endpoints := make([]gtfsrt.Endpoint, 0, len(feeds))
	for _, feed := range feeds {
		endpoint := gtfsrt.Endpoint{
			Key: gtfsrt.FeedKey{AgencyId: a.Id, Kind: feed.kind},
			URL: feed.url,
		}
		if apiKey != "" {
			if a.Realtime.APIKeyHeader != "" {
				endpoint.Headers = map[string]string{a.Realtime.APIKeyHeader: apiKey}
			} else {
				u, err := url.Parse(feed.url)
				if err != nil {
					return nil, fmt.Errorf("agency %s feed url: %w", a.Id, err)
				}
				param := a.Realtime.APIKeyParam
				if param == "" {
					param = "api_key"
				}
				q := u.Query()
				q.Set(param, apiKey)
				u.RawQuery = q.Encode()
				endpoint.URL = u.String()
			}
		}
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

// Ids returns the ids of agencies in order
func Ids(agencies []Agency) []string {
	ids := make([]string, 0, len(agencies))
	for i := range agencies {
		ids = append(ids, agencies[i].Id)
	}
	return ids
}
