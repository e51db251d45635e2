package gtfs

import (
	"context"
	"fmt"
	"time"
)

// calendar_dates.txt exception types
const (
	ExceptionAdded   = 1
	ExceptionRemoved = 2
)

// Calendar contains data from a record in a gtfs calendar.txt file
type Calendar struct {
	ServiceId string `db:"service_id"`
	Monday    int
	Tuesday   int
	Wednesday int
	Thursday  int
	Friday    int
	Saturday  int
	Sunday    int
	StartDate *int `db:"start_date"`
	EndDate   *int `db:"end_date"`
}

// RunsOn reports if the calendar's weekday flag is set for weekday
func (c *Calendar) RunsOn(weekday time.Weekday) bool {
	switch weekday {
	case time.Monday:
		return c.Monday == 1
	case time.Tuesday:
		return c.Tuesday == 1
	case time.Wednesday:
		return c.Wednesday == 1
	case time.Thursday:
		return c.Thursday == 1
	case time.Friday:
		return c.Friday == 1
	case time.Saturday:
		return c.Saturday == 1
	case time.Sunday:
		return c.Sunday == 1
	}
	return false
}

// CalendarDate contains data from a record in a gtfs calendar_dates.txt file
type CalendarDate struct {
	ServiceId string `db:"service_id"`
	// Date is YYYYMMDD as found in the gtfs file
	Date          int
	ExceptionType int `db:"exception_type"`
}

// Calendars retrieves every calendar record
func (s *Store) Calendars(ctx context.Context) ([]Calendar, error) {
	query := "select service_id, monday, tuesday, wednesday, thursday, friday, saturday, sunday, " +
		"start_date, end_date from calendar"
	var results []Calendar
	err := s.db.SelectContext(ctx, &results, query)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve calendar records. query:%s error: %w", query, err)
	}
	return results, nil
}

// CalendarDates retrieves the calendar exceptions on serviceDate
func (s *Store) CalendarDates(ctx context.Context, serviceDate ServiceDate) ([]CalendarDate, error) {
	query := s.db.Rebind("select service_id, date, exception_type from calendar_dates where date = ?")
	var results []CalendarDate
	err := s.db.SelectContext(ctx, &results, query, serviceDate.GTFSDate())
	if err != nil {
		return nil, fmt.Errorf("unable to query calendar_dates table. query:%s error: %w", query, err)
	}
	return results, nil
}

// CalendarSource provides the calendar records used to resolve active services, implemented by Store
type CalendarSource interface {
	Calendars(ctx context.Context) ([]Calendar, error)
	CalendarDates(ctx context.Context, serviceDate ServiceDate) ([]CalendarDate, error)
}

// GetActiveServiceIds retrieves the active serviceIds on provided serviceDate.
// both calendar and calendar_dates are used
func GetActiveServiceIds(ctx context.Context, source CalendarSource, serviceDate ServiceDate) (ServiceSet, error) {
	calendars, err := source.Calendars(ctx)
	if err != nil {
		return nil, err
	}
	calendarDates, err := source.CalendarDates(ctx, serviceDate)
	if err != nil {
		return nil, err
	}
	return ActiveServices(serviceDate, calendars, calendarDates), nil
}
