package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when no owner is signed in.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNotFound is returned when a record does not exist or is not
	// visible to the current owner.
	ErrNotFound = errors.New("not found")
)

// StorageError wraps a failure reported by the backing store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err == nil {
		return e.Op + ": storage failure"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNotAuthenticated) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
