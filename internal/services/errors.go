package services

import (
	"errors"
	"fmt"

	"github.com/isdelr/ender-monitor-be/internal/database"
)

var (
	// ErrStoreUnavailable is matched by every read or write failure against a backend.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrSchemaInit marks a fatal schema creation failure at startup.
	ErrSchemaInit = database.ErrSchemaInit
	// ErrEncoding marks a failure to serialize an export document.
	ErrEncoding = errors.New("encoding failure")
)

// StoreError wraps a backend failure with the store and operation it came from.
type StoreError struct {
	Store string // "events" or "stats"
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func eventsErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: "events", Op: op, Err: err}
}

func statsErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: "stats", Op: op, Err: err}
}
