package models

import "time"

// Entity is an accounting unit: a person, fund, or business whose wallets
// are tracked together under one ledger and one tax run.
type Entity struct {
	ID            uint64
	Name          string
	BaseCurrency  string // e.g. "USD"
	DeletedAt     *time.Time
}

// IsDeleted reports whether the entity has been soft-deleted.
func (e *Entity) IsDeleted() bool {
	return e.DeletedAt != nil
}
