package scheduler

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileDraft reads the summary text from a file edited outside the client.
// Points and authorization are set by the caller.
type FileDraft struct {
	path       string
	mu         sync.Mutex
	points     float64
	authorized bool
}

var _ DraftSource = (*FileDraft)(nil)

// NewFileDraft creates a draft source backed by path
func NewFileDraft(path string, points float64) *FileDraft {
	return &FileDraft{path: path, points: points}
}

// Path returns the watched file
func (d *FileDraft) Path() string {
	return d.path
}

// SetPoints sets the points of the draft
func (d *FileDraft) SetPoints(points float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.points = points
}

// Authorize marks the draft as final
func (d *FileDraft) Authorize() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.authorized = true
}

// Draft reads the current file content
func (d *FileDraft) Draft(ctx context.Context) (Draft, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return Draft{}, fmt.Errorf("failed to read %s: %w", d.path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return Draft{
		Text:       strings.TrimRight(string(data), "\r\n"),
		Points:     d.points,
		Authorized: d.authorized,
	}, nil
}
