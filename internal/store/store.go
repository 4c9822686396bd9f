// Package store is the gorm-backed persistence layer for users, messages,
// notifications and events recorded for offline users.
package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a record does not exist or is not visible
	// to the caller.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a unique field is already taken.
	ErrConflict = errors.New("record already exists")
	// ErrInvalid is returned when required fields are missing.
	ErrInvalid = errors.New("invalid record")
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Config wires a Store.
type Config struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider func() string
}

// Store implements the persistence collaborators the real-time core depends on.
type Store struct {
	db    *gorm.DB
	clock func() time.Time
	newID func() string
}

// New constructs a Store.
func New(cfg Config) (*Store, error) {
	if cfg.Database == nil {
		return nil, errors.New("database dependency required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.IDProvider
	if newID == nil {
		newID = uuid.NewString
	}
	return &Store{db: cfg.Database, clock: clock, newID: newID}, nil
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConflict
	}
	return err
}
