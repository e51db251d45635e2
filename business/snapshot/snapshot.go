// Package snapshot holds the most recent fused vehicles of each agency
package snapshot

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/OpenTransitTools/ontime/business/data/gtfs"
	"github.com/OpenTransitTools/ontime/business/fusion"
	"github.com/tidwall/rtree"
)

// BoundingBox is an area in WGS84 degrees
type BoundingBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// ParseBoundingBox reads "minLon,minLat,maxLon,maxLat"
func ParseBoundingBox(value string) (BoundingBox, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 4 {
		return BoundingBox{}, fmt.Errorf("bounding box %q must have four comma separated values", value)
	}
	var values [4]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return BoundingBox{}, fmt.Errorf("invalid bounding box value %q: %w", part, err)
		}
		values[i] = v
	}
	box := BoundingBox{MinLon: values[0], MinLat: values[1], MaxLon: values[2], MaxLat: values[3]}
	if box.MinLon > box.MaxLon || box.MinLat > box.MaxLat {
		return BoundingBox{}, fmt.Errorf("bounding box %q has minimum greater than maximum", value)
	}
	if box.MinLat < -90 || box.MaxLat > 90 || box.MinLon < -180 || box.MaxLon > 180 {
		return BoundingBox{}, fmt.Errorf("bounding box %q is outside of valid coordinates", value)
	}
	return box, nil
}

// Snapshot is the immutable result of one successful fusion pass
type Snapshot struct {
	AgencyId    string                `json:"agency_id"`
	GeneratedAt time.Time             `json:"generated_at"`
	ServiceDay  gtfs.ServiceDay       `json:"service_day"`
	Unscheduled int                   `json:"unscheduled"`
	Vehicles    []fusion.FusedVehicle `json:"vehicles"`

	byKey map[gtfs.EntityKey]int
	index rtree.RTreeG[int]
}

// New builds Snapshot from result, indexing vehicles by id and position
func New(result *fusion.Result, generatedAt time.Time) *Snapshot {
	vehicles := result.Vehicles
	if vehicles == nil {
		vehicles = []fusion.FusedVehicle{}
	}
	s := &Snapshot{
		AgencyId:    result.AgencyId,
		GeneratedAt: generatedAt,
		ServiceDay:  result.ServiceDay,
		Unscheduled: result.Unscheduled,
		Vehicles:    vehicles,
		byKey:       make(map[gtfs.EntityKey]int, len(vehicles)),
	}
	for i := range vehicles {
		v := &vehicles[i]
		s.byKey[v.Key()] = i
		point := [2]float64{v.Longitude, v.Latitude}
		s.index.Insert(point, point, i)
	}
	return s
}

// Vehicle returns the vehicle with vehicleId
func (s *Snapshot) Vehicle(vehicleId string) (fusion.FusedVehicle, bool) {
	i, present := s.byKey[gtfs.EntityKey{AgencyId: s.AgencyId, LocalId: vehicleId}]
	if !present {
		return fusion.FusedVehicle{}, false
	}
	return s.Vehicles[i], true
}

// Within returns the vehicles inside box in feed order
func (s *Snapshot) Within(box BoundingBox) []fusion.FusedVehicle {
	var matches []int
	s.index.Search([2]float64{box.MinLon, box.MinLat}, [2]float64{box.MaxLon, box.MaxLat},
		func(_, _ [2]float64, i int) bool {
			matches = append(matches, i)
			return true
		})
	sort.Ints(matches)
	results := make([]fusion.FusedVehicle, 0, len(matches))
	for _, i := range matches {
		results = append(results, s.Vehicles[i])
	}
	return results
}
