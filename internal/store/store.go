package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("not found")

// ErrUnsupportedVersion is returned when a stored record was written by a
// newer schema than this build understands.
var ErrUnsupportedVersion = errors.New("unsupported record version")

// SchemaVersion is the version written with every lamp record.
const SchemaVersion = 1

// Store defines the persistence interface.
type Store interface {
	// LoadLampState returns the state stored for a config entry.
	// Returns ErrNotFound if nothing was saved yet.
	LoadLampState(id string) (*DeviceState, error)
	SaveLampState(id string, state *DeviceState) error
	DeleteLampState(id string) error
	ListLampIDs() ([]string, error)

	// Close the store
	Close() error
}
