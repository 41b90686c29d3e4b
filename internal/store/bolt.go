package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketLamps = []byte("lamps")

// lampRecord is the on-disk form of a DeviceState, tagged with the schema version.
type lampRecord struct {
	Version       int      `json:"version"`
	Settings      Settings `json:"settings"`
	Presets       []Preset `json:"presets"`
	CurrentPreset int      `json:"current_preset"`
	CurrentGroup  int      `json:"current_group"`
	NetworkKey    string   `json:"network_key,omitempty"`
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLamps)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveLampState(id string, state *DeviceState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLamps)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLamps)
		}
		rec := lampRecord{
			Version:       SchemaVersion,
			Settings:      state.Settings,
			Presets:       state.Presets,
			CurrentPreset: state.CurrentPreset,
			CurrentGroup:  state.CurrentGroup,
			NetworkKey:    state.NetworkKey,
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), data)
	})
}

func (s *BoltStore) LoadLampState(id string) (*DeviceState, error) {
	var state DeviceState
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLamps)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLamps)
		}
		data := b.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("lamp %s: %w", id, ErrNotFound)
		}
		var rec lampRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decode lamp %s: %w", id, err)
		}
		if rec.Version > SchemaVersion {
			return fmt.Errorf("lamp %s version %d: %w", id, rec.Version, ErrUnsupportedVersion)
		}
		state = DeviceState{
			Settings:      rec.Settings,
			Presets:       rec.Presets,
			CurrentPreset: rec.CurrentPreset,
			CurrentGroup:  rec.CurrentGroup,
			NetworkKey:    rec.NetworkKey,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *BoltStore) DeleteLampState(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLamps)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLamps)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListLampIDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLamps)
		if b == nil {
			return nil // no bucket = no lamps
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
