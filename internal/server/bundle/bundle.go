// Package bundle reads task bundles imported into the server.
//
// A bundle is a JSON document with the task settings, its reference data
// and the correctors allowed to grade it:
//
//	{
//	  "task":        {"title": "Essay", "max_points": 20, "correction_end": 1767225600},
//	  "users":       [{"id": "u1", "username": "alice", "name": "Alice", "password": "..."}],
//	  "items":       [{"key": "12", "title": "Essay", "name": "Student A", "text": "..."}],
//	  "assignments": [{"key": "a1", "item_key": "12", "corrector_key": "u1", "position": 0}],
//	  "criteria":    [{"key": "k1", "title": "Structure", "points": 10}],
//	  "grades":      [{"key": "g1", "grade": "good", "points": 10, "passed": true}]
//	}
//
// Passwords are given in plain text and hashed on import.
package bundle

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/gophgrade/internal/crypto"
	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/internal/server/storage"
	"github.com/iudanet/gophgrade/internal/validation"
)

// User is a corrector account as written in the bundle
type User struct {
	ID       string `json:"id"` // пустой ID генерируется при импорте
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// File is the on-disk bundle format
type File struct {
	Task        models.Payload   `json:"task"`
	Users       []User           `json:"users"`
	Items       []models.Payload `json:"items"`
	Assignments []models.Payload `json:"assignments"`
	Criteria    []models.Payload `json:"criteria"`
	Grades      []models.Payload `json:"grades"`
}

// Read decodes and validates a bundle, hashing user passwords
func Read(r io.Reader) (*storage.Bundle, error) {
	var f File
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode bundle: %w", err)
	}
	return f.Build()
}

// Build validates the bundle and converts it for storage
func (f *File) Build() (*storage.Bundle, error) {
	task := models.NewTask(f.Task)
	if err := validation.ValidateTask(task); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}

	grades := make([]models.Grade, 0, len(f.Grades))
	for _, p := range f.Grades {
		grades = append(grades, models.NewGrade(p))
	}
	if err := validation.ValidateGrades(grades, task.MaxPoints); err != nil {
		return nil, fmt.Errorf("invalid grades: %w", err)
	}

	users, err := f.buildUsers()
	if err != nil {
		return nil, err
	}

	items := make(map[string]bool, len(f.Items))
	for _, p := range f.Items {
		it := models.NewItem(p)
		if it.Key == "" {
			return nil, fmt.Errorf("item without key")
		}
		items[it.Key] = true
	}

	correctors := make(map[string]bool, len(users))
	for _, u := range users {
		correctors[u.ID] = true
	}
	for _, p := range f.Assignments {
		a := models.NewAssignment(p)
		if !items[a.ItemKey] {
			return nil, fmt.Errorf("assignment %s: unknown item %q", a.Key, a.ItemKey)
		}
		if !correctors[a.CorrectorKey] {
			return nil, fmt.Errorf("assignment %s: unknown corrector %q", a.Key, a.CorrectorKey)
		}
	}

	return &storage.Bundle{
		Task:  task,
		Users: users,
		Entities: map[models.EntityType][]models.Payload{
			models.TypeItem:       f.Items,
			models.TypeAssignment: f.Assignments,
			models.TypeCriterion:  f.Criteria,
			models.TypeGrade:      f.Grades,
		},
	}, nil
}

func (f *File) buildUsers() ([]*models.User, error) {
	now := time.Now()
	seen := make(map[string]bool, len(f.Users))
	users := make([]*models.User, 0, len(f.Users))

	for _, u := range f.Users {
		if err := validation.ValidateUsername(u.Username); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if err := validation.ValidatePassword(u.Password); err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}
		if seen[u.Username] {
			return nil, fmt.Errorf("user %q listed twice", u.Username)
		}
		seen[u.Username] = true

		hash, err := crypto.HashPassword(u.Password)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", u.Username, err)
		}

		id := u.ID
		if id == "" {
			id = uuid.New().String()
		}
		name := u.Name
		if name == "" {
			name = u.Username
		}

		users = append(users, &models.User{
			ID:           id,
			Username:     u.Username,
			Name:         name,
			PasswordHash: hash,
			CreatedAt:    now,
		})
	}
	return users, nil
}
