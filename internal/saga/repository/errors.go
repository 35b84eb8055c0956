package repository

import "errors"

var (
	ErrSagaNotFound = errors.New("saga not found")

	// ErrSagaAlreadyExists means an instance with this correlation id was
	// created by another consumer first, typically on duplicate delivery of
	// the initiating event.
	ErrSagaAlreadyExists = errors.New("saga already exists")

	// ErrConcurrentUpdate means an optimistic write lost the race on the
	// saga row. The caller re-reads and re-applies its change.
	ErrConcurrentUpdate = errors.New("saga was updated concurrently")
)
