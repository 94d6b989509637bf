package models

import (
	"math"
	"sort"
)

// Summary is the free-text correction summary of one corrector for one item.
// It is a singleton per (item, corrector) and is keyed by SummaryKey.
type Summary struct {
	Key          string  `json:"key"`
	ItemKey      string  `json:"item_key"`
	CorrectorKey string  `json:"corrector_key"`
	Text         string  `json:"text"`
	GradeKey     string  `json:"grade_key"`
	Points       float64 `json:"points"`
	LastChange   int64   `json:"last_change"`   // LastChange серверное время последнего изменения, мс
	IsAuthorized bool    `json:"is_authorized"` // IsAuthorized проверка завершена, правки запрещены
}

// SummaryKey is the composite identity of the summary of corrector for item
func SummaryKey(itemKey, correctorKey string) string {
	if itemKey == "" || correctorKey == "" {
		return ""
	}
	return itemKey + ":" + correctorKey
}

// NewSummary builds a summary from an untyped payload.
// A missing key is derived from item and corrector.
func NewSummary(p Payload) Summary {
	var s Summary
	p.readString("key", &s.Key)
	p.readString("item_key", &s.ItemKey)
	p.readString("corrector_key", &s.CorrectorKey)
	p.readString("text", &s.Text)
	p.readString("grade_key", &s.GradeKey)
	p.readFloat("points", &s.Points)
	p.readInt("last_change", &s.LastChange)
	p.readBool("is_authorized", &s.IsAuthorized)
	if s.Key == "" {
		s.Key = SummaryKey(s.ItemKey, s.CorrectorKey)
	}
	return s
}

func (s Summary) Type() EntityType { return TypeSummary }
func (s Summary) GetKey() string { return s.Key }
func (s Summary) GetItemKey() string { return s.ItemKey }

func (s Summary) WithKey(key string) Entity {
	s.Key = key
	return s
}

func (s Summary) References() []Reference {
	if s.GradeKey == "" {
		return nil
	}
	return []Reference{{Type: TypeGrade, Field: "grade_key", Key: s.GradeKey}}
}

func (s Summary) RemapReference(t EntityType, oldKey string, newKey *string) (Entity, bool) {
	if t != TypeGrade {
		return s, false
	}
	changed := remap(&s.GradeKey, oldKey, newKey)
	return s, changed
}

func (s Summary) Payload() Payload {
	return Payload{
		"key":           s.Key,
		"item_key":      s.ItemKey,
		"corrector_key": s.CorrectorKey,
		"text":          s.Text,
		"grade_key":     s.GradeKey,
		"points":        s.Points,
		"last_change":   s.LastChange,
		"is_authorized": s.IsAuthorized,
	}
}

// SameContent compares everything a corrector edits, ignoring the change timestamp
func (s Summary) SameContent(other Summary) bool {
	s.LastChange = 0
	other.LastChange = 0
	return s == other
}

// ClampPoints limits points to [0, maxPoints]; maxPoints <= 0 means no upper bound
func ClampPoints(points, maxPoints float64) float64 {
	if math.IsNaN(points) || points < 0 {
		return 0
	}
	if maxPoints > 0 && points > maxPoints {
		return maxPoints
	}
	return points
}

// GradeFor picks the grade with the highest lower bound not above points.
// Returns an empty key when no grade level is reached.
func GradeFor(grades []Grade, points float64) string {
	sorted := make([]Grade, len(grades))
	copy(sorted, grades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Points > sorted[j].Points
	})

	for _, g := range sorted {
		if g.Points <= points {
			return g.Key
		}
	}
	return ""
}
