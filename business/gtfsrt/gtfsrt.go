// Package gtfsrt retrieves and decodes gtfs-realtime feeds
package gtfsrt

import (
	"fmt"
)

// Kind is the type of realtime feed
type Kind string

const (
	VehiclePositions Kind = "vehicle_positions"
	TripUpdates      Kind = "trip_updates"
)

// FeedKey identifies one realtime feed of one agency
type FeedKey struct {
	AgencyId string
	Kind     Kind
}

func (k FeedKey) String() string {
	return fmt.Sprintf("%s/%s", k.AgencyId, k.Kind)
}

// Endpoint is where a feed is retrieved from
type Endpoint struct {
	Key     FeedKey
	URL     string
	Headers map[string]string
}

// FetchError is produced when a feed could not be retrieved from upstream
type FetchError struct {
	Key FeedKey
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("unable to fetch %s: %v", e.Key, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// DecodeError is produced when feed bytes are not a valid gtfs-realtime FeedMessage
type DecodeError struct {
	Kind Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("unable to decode %s feed: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
