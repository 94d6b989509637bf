package storage

import (
	"errors"

	"github.com/iudanet/gophgrade/internal/models"
)

// Common client storage errors
var (
	// ErrAuthNotFound indicates that no authentication data exists
	ErrAuthNotFound = errors.New("authentication data not found")

	// ErrEntityNotFound indicates that no entity is stored under the key
	ErrEntityNotFound = errors.New("entity not found")

	// ErrEmptyKey indicates an attempt to store an entity without identity
	ErrEmptyKey = errors.New("entity key is empty")

	// ErrChangesPending indicates that a full replace would drop unsent changes
	ErrChangesPending = errors.New("unsent changes pending")

	// ErrStorageClosed indicates that storage is closed
	ErrStorageClosed = errors.New("storage is closed")

	// ErrUnknownType indicates a namespace for an unknown entity type
	ErrUnknownType = models.ErrUnknownType
)
