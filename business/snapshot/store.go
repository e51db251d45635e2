package snapshot

import (
	"errors"
	"sort"
	"sync/atomic"

	"github.com/OpenTransitTools/ontime/business/fusion"
)

// ErrUnknownAgency is returned for agency ids the Store was not created with
var ErrUnknownAgency = errors.New("unknown agency")

// Store holds the current Snapshot of each agency.
// Publishing swaps a pointer, readers never wait on a fusion pass.
type Store struct {
	current map[string]*atomic.Pointer[Snapshot]
}

// NewStore creates Store for agencyIds, none of which have a Snapshot yet
func NewStore(agencyIds []string) *Store {
	current := make(map[string]*atomic.Pointer[Snapshot], len(agencyIds))
	for _, agencyId := range agencyIds {
		current[agencyId] = &atomic.Pointer[Snapshot]{}
	}
	return &Store{current: current}
}

// AgencyIds returns the known agencies in ascending order
func (s *Store) AgencyIds() []string {
	ids := make([]string, 0, len(s.current))
	for id := range s.current {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Publish replaces the agency's Snapshot
func (s *Store) Publish(snapshot *Snapshot) error {
	pointer, present := s.current[snapshot.AgencyId]
	if !present {
		return ErrUnknownAgency
	}
	pointer.Store(snapshot)
	return nil
}

// Current returns the most recently published Snapshot, nil when no pass has completed
func (s *Store) Current(agencyId string) (*Snapshot, error) {
	pointer, present := s.current[agencyId]
	if !present {
		return nil, ErrUnknownAgency
	}
	return pointer.Load(), nil
}

// Vehicles returns the vehicles of the current Snapshot, empty when no pass has completed
func (s *Store) Vehicles(agencyId string) ([]fusion.FusedVehicle, error) {
	snapshot, err := s.Current(agencyId)
	if err != nil {
		return nil, err
	}
	if snapshot == nil {
		return []fusion.FusedVehicle{}, nil
	}
	return snapshot.Vehicles, nil
}
