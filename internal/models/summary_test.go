package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryKey(t *testing.T) {
	assert.Equal(t, "i1:u1", SummaryKey("i1", "u1"))
	assert.Empty(t, SummaryKey("", "u1"))
	assert.Empty(t, SummaryKey("i1", ""))
}

func TestNewSummary_DerivesKey(t *testing.T) {
	s := NewSummary(Payload{"item_key": "i1", "corrector_key": "u1", "is_authorized": "true"})

	assert.Equal(t, "i1:u1", s.Key)
	assert.True(t, s.IsAuthorized)
}

func TestSummary_SameContent(t *testing.T) {
	a := Summary{Key: "i1:u1", Text: "x", Points: 3, LastChange: 1}
	b := a
	b.LastChange = 99

	assert.True(t, a.SameContent(b))

	b.Text = "y"
	assert.False(t, a.SameContent(b))
}

func TestClampPoints(t *testing.T) {
	tests := []struct {
		name      string
		points    float64
		maxPoints float64
		want      float64
	}{
		{name: "in range", points: 5, maxPoints: 10, want: 5},
		{name: "negative", points: -3, maxPoints: 10, want: 0},
		{name: "above max", points: 12, maxPoints: 10, want: 10},
		{name: "no max", points: 120, maxPoints: 0, want: 120},
		{name: "nan", points: math.NaN(), maxPoints: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampPoints(tt.points, tt.maxPoints))
		})
	}
}

func TestGradeFor(t *testing.T) {
	grades := []Grade{
		{Key: "g-good", Points: 15},
		{Key: "g-fail", Points: 0},
		{Key: "g-excellent", Points: 18},
		{Key: "g-pass", Points: 10},
	}

	tests := []struct {
		name   string
		want   string
		points float64
	}{
		{name: "zero", points: 0, want: "g-fail"},
		{name: "between", points: 12.5, want: "g-pass"},
		{name: "exact bound", points: 15, want: "g-good"},
		{name: "top", points: 20, want: "g-excellent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GradeFor(grades, tt.points))
		})
	}

	assert.Empty(t, GradeFor([]Grade{{Key: "g", Points: 5}}, 4))
	assert.Empty(t, GradeFor(nil, 4))
}
