package sync

import (
	"errors"

	"github.com/iudanet/gophgrade/internal/client/storage"
)

var (
	// ErrTransport wraps every failed call to the server. Pending changes stay queued.
	ErrTransport = errors.New("transport failure")

	// ErrPendingChanges is returned by Refresh while unsent changes remain queued
	ErrPendingChanges = storage.ErrChangesPending

	// ErrNotAuthenticated is returned when there is no stored session
	ErrNotAuthenticated = errors.New("not authenticated")
)
