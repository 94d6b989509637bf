package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityType is the tag of an entity collection (and of its storage namespace)
type EntityType string

const (
	TypeComment    EntityType = "comment"
	TypePoints     EntityType = "points"
	TypeSummary    EntityType = "summary"
	TypeSnippet    EntityType = "snippet"
	TypeCriterion  EntityType = "criterion"
	TypeGrade      EntityType = "grade"
	TypeItem       EntityType = "item"
	TypeAssignment EntityType = "assignment"
)

// ChangeTypes are the entity types edited on the client and sent back to the server.
// The order is the dependency order used to build a flush batch:
// referenced entities go before the entities that reference them.
var ChangeTypes = []EntityType{TypeSnippet, TypeComment, TypePoints, TypeSummary}

// ReferenceTypes are read-only collections delivered by a full refresh
var ReferenceTypes = []EntityType{TypeItem, TypeAssignment, TypeCriterion, TypeGrade}

// AllTypes lists every storage namespace
var AllTypes = append(append([]EntityType{}, ReferenceTypes...), ChangeTypes...)

// TempKeyPrefix marks keys assigned on the client and not yet acknowledged by the server
const TempKeyPrefix = "temp"

// ErrUnknownType is returned for an entity type tag the model does not know
var ErrUnknownType = errors.New("unknown entity type")

// IsChangeType reports whether entities of t are tracked in the change log
func IsChangeType(t EntityType) bool {
	for _, c := range ChangeTypes {
		if c == t {
			return true
		}
	}
	return false
}

// IsKnownType reports whether t is any of the entity types
func IsKnownType(t EntityType) bool {
	for _, c := range AllTypes {
		if c == t {
			return true
		}
	}
	return false
}

// NewTempKey returns a fresh client-side key
func NewTempKey() string {
	return TempKeyPrefix + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsTempKey reports whether key was assigned on the client
func IsTempKey(key string) bool {
	return strings.HasPrefix(key, TempKeyPrefix)
}

// Reference is a foreign key held by an entity
type Reference struct {
	Type  EntityType
	Field string
	Key   string
}

// Entity is implemented by every record kept in the local store.
//
// Implementations are value records: WithKey and RemapReference return
// modified copies and never change the receiver.
type Entity interface {
	Type() EntityType
	GetKey() string
	GetItemKey() string

	// WithKey returns a copy carrying a new identity
	WithKey(key string) Entity

	// References lists non-empty foreign keys
	References() []Reference

	// RemapReference returns a copy with every reference to the entity (t, oldKey)
	// rewritten to newKey, or cleared when newKey is nil.
	// The bool is false when nothing referenced it.
	RemapReference(t EntityType, oldKey string, newKey *string) (Entity, bool)

	// Payload projects the persisted fields
	Payload() Payload
}

// FromPayload is the single validated-construction path for all entity types.
// Malformed fields fall back to defaults; only an unknown type is an error.
func FromPayload(t EntityType, p Payload) (Entity, error) {
	if p == nil {
		p = Payload{}
	}
	switch t {
	case TypeComment:
		return NewComment(p), nil
	case TypePoints:
		return NewPoints(p), nil
	case TypeSummary:
		return NewSummary(p), nil
	case TypeSnippet:
		return NewSnippet(p), nil
	case TypeCriterion:
		return NewCriterion(p), nil
	case TypeGrade:
		return NewGrade(p), nil
	case TypeItem:
		return NewItem(p), nil
	case TypeAssignment:
		return NewAssignment(p), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
}

// Decode builds an entity from its stored JSON form
func Decode(t EntityType, data []byte) (Entity, error) {
	p, err := DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", t, err)
	}
	return FromPayload(t, p)
}

// Encode serializes the persisted fields of e
func Encode(e Entity) ([]byte, error) {
	data, err := json.Marshal(e.Payload())
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Type(), err)
	}
	return data, nil
}

// remap rewrites one foreign key field in place on a copy
func remap(field *string, oldKey string, newKey *string) bool {
	if *field == "" || *field != oldKey {
		return false
	}
	if newKey == nil {
		*field = ""
	} else {
		*field = *newKey
	}
	return true
}
