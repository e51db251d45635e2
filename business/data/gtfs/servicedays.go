package gtfs

import (
	"fmt"
	"sort"
	"time"
)

// ServiceDate is a civil date in an agency's timezone. Trips are scheduled relative to it.
type ServiceDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ServiceDateAt returns the service date of instant at in location
func ServiceDateAt(at time.Time, location *time.Location) ServiceDate {
	local := at.In(location)
	return ServiceDate{Year: local.Year(), Month: local.Month(), Day: local.Day()}
}

// GTFSDate returns the date as the YYYYMMDD integer used by calendar_dates
func (d ServiceDate) GTFSDate() int {
	return d.Year*10000 + int(d.Month)*100 + d.Day
}

// Weekday is independent of any timezone
func (d ServiceDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).Weekday()
}

// Midnight returns 12am of the service date in location
func (d ServiceDate) Midnight(location *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, location)
}

func (d ServiceDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// MarshalText renders the date as YYYY-MM-DD
func (d ServiceDate) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ServiceSet is the set of service ids active on one service date
type ServiceSet map[string]bool

// Ids returns the active service ids in ascending order
func (s ServiceSet) Ids() []string {
	return trueStringsFromMap(s)
}

// ActiveServices determines the services running on date.
// A service is active when calendar_dates adds it on date, or when its calendar weekday flag is set
// and calendar_dates does not remove it on date. An add and a remove on the same date leaves the service active.
func ActiveServices(date ServiceDate, calendars []Calendar, calendarDates []CalendarDate) ServiceSet {
	gtfsDate := date.GTFSDate()
	added := make(map[string]bool)
	removed := make(map[string]bool)
	for _, calendarDate := range calendarDates {
		if calendarDate.Date != gtfsDate {
			continue
		}
		switch calendarDate.ExceptionType {
		case ExceptionAdded:
			added[calendarDate.ServiceId] = true
		case ExceptionRemoved:
			removed[calendarDate.ServiceId] = true
		}
	}

	result := make(ServiceSet)
	weekday := date.Weekday()
	for i := range calendars {
		calendar := &calendars[i]
		if calendar.RunsOn(weekday) && !removed[calendar.ServiceId] {
			result[calendar.ServiceId] = true
		}
	}
	for serviceId := range added {
		result[serviceId] = true
	}
	return result
}

// ServiceDay describes a resolved service date
type ServiceDay struct {
	Date             ServiceDate `json:"date"`
	Weekday          string      `json:"weekday"`
	Holiday          string      `json:"holiday,omitempty"`
	ActiveServiceIds []string    `json:"active_service_ids"`
}

// NewServiceDay builds ServiceDay from the active services on date
func NewServiceDay(date ServiceDate, services ServiceSet, holiday string) ServiceDay {
	return ServiceDay{
		Date:             date,
		Weekday:          date.Weekday().String(),
		Holiday:          holiday,
		ActiveServiceIds: services.Ids(),
	}
}

// trueStringsFromMap returns sorted keys whose value is true
func trueStringsFromMap(m map[string]bool) []string {
	result := make([]string, 0, len(m))
	for key, value := range m {
		if value {
			result = append(result, key)
		}
	}
	sort.Strings(result)
	return result
}
