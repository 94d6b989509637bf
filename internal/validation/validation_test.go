package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/gophgrade/internal/models"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		errMsg   string
		wantErr  bool
	}{
		{name: "valid lowercase", username: "alice"},
		{name: "valid with dot and dash", username: "a.smith-2"},
		{name: "valid with underscore", username: "corrector_1"},
		{name: "minimum length", username: "abc"},
		{name: "maximum length", username: strings.Repeat("a", MaxUsernameLen)},
		{name: "empty", username: "", wantErr: true, errMsg: "cannot be empty"},
		{name: "too short", username: "ab", wantErr: true, errMsg: "at least 3"},
		{name: "too long", username: strings.Repeat("a", MaxUsernameLen+1), wantErr: true, errMsg: "must not exceed"},
		{name: "space", username: "alice smith", wantErr: true, errMsg: "can only contain"},
		{name: "cyrillic", username: "алиса", wantErr: true, errMsg: "can only contain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("password1"))
	assert.Error(t, ValidatePassword(""))
	assert.Error(t, ValidatePassword("short"))
}

func TestValidateTask(t *testing.T) {
	tests := []struct {
		name    string
		task    models.Task
		wantErr bool
	}{
		{name: "valid", task: models.Task{Title: "Essay", MaxPoints: 20, CorrectionEnd: 1700000000}},
		{name: "no deadline", task: models.Task{Title: "Essay"}},
		{name: "no title", task: models.Task{MaxPoints: 20}, wantErr: true},
		{name: "negative points", task: models.Task{Title: "Essay", MaxPoints: -1}, wantErr: true},
		{name: "negative deadline", task: models.Task{Title: "Essay", CorrectionEnd: -5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTask(tt.task)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateGrades(t *testing.T) {
	valid := []models.Grade{{Key: "g1", Points: 0}, {Key: "g2", Points: 10}, {Key: "g3", Points: 15}}
	assert.NoError(t, ValidateGrades(valid, 20))

	err := ValidateGrades([]models.Grade{{Key: "g1", Points: 10}, {Key: "g2", Points: 10}}, 20)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share threshold")

	assert.Error(t, ValidateGrades([]models.Grade{{Key: "g1", Points: 25}}, 20))
	assert.Error(t, ValidateGrades([]models.Grade{{Points: 5}}, 20))
	assert.NoError(t, ValidateGrades([]models.Grade{{Key: "g1", Points: 25}}, 0))
}
