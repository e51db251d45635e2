// Package gtfs provides typed access to a static gtfs schedule store and resolves which services run on a day
package gtfs

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// EntityKey identifies a realtime or schedule entity within an agency.
// Ids from different agencies may collide, so lookups always carry both parts.
type EntityKey struct {
	AgencyId string `json:"agency_id"`
	LocalId  string `json:"id"`
}

func (k EntityKey) String() string {
	return fmt.Sprintf("%s/%s", k.AgencyId, k.LocalId)
}

// Store reads gtfs records from one agency's schedule database
type Store struct {
	db *sqlx.DB
}

// NewStore creates Store on an open schedule database
func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close releases the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
