package agency

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// holidayCalendar holds the holidays observed by a transit agency, used to describe service days
type holidayCalendar struct {
	calendar *cal.BusinessCalendar
}

// makeHolidayCalendar builds holidayCalendar for a named set of holidays, nil when name is "none"
func makeHolidayCalendar(name string) *holidayCalendar {
	if name == "none" {
		return nil
	}
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.PresidentsDay,
		us.MemorialDay,
		us.Juneteenth,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
	)
	return &holidayCalendar{calendar: calendar}
}

// holidayName returns the name of the holiday observed at at, or an empty string
func (t *holidayCalendar) holidayName(at time.Time) string {
	_, observed, holiday := t.calendar.IsHoliday(at)
	if !observed || holiday == nil {
		return ""
	}
	return holiday.Name
}
