// Package validation checks user input shared by the client and the server.
package validation

import (
	"fmt"
	"math"
	"regexp"

	"github.com/iudanet/gophgrade/internal/models"
)

// UsernamePattern: латинские буквы, цифры, точка, дефис и подчеркивание
var UsernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

const (
	// MinUsernameLen минимальная длина логина
	MinUsernameLen = 3
	// MaxUsernameLen максимальная длина логина
	MaxUsernameLen = 32
	// MinPasswordLen минимальная длина пароля
	MinPasswordLen = 8
)

// ValidateUsername checks the corrector login
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLen {
		return fmt.Errorf("username must be at least %d characters long", MinUsernameLen)
	}
	if len(username) > MaxUsernameLen {
		return fmt.Errorf("username must not exceed %d characters", MaxUsernameLen)
	}
	if !UsernamePattern.MatchString(username) {
		return fmt.Errorf("username can only contain letters, numbers, '.', '-' and '_'")
	}
	return nil
}

// ValidatePassword checks the minimal password requirements
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if len(password) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	return nil
}

// ValidateTask checks imported task settings
func ValidateTask(task models.Task) error {
	if task.Title == "" {
		return fmt.Errorf("task title cannot be empty")
	}
	if task.MaxPoints < 0 || math.IsNaN(task.MaxPoints) {
		return fmt.Errorf("max points must not be negative")
	}
	if task.CorrectionEnd < 0 {
		return fmt.Errorf("correction end must not be negative")
	}
	return nil
}

// ValidateGrades checks that grade thresholds are unique and within max points
func ValidateGrades(grades []models.Grade, maxPoints float64) error {
	seen := make(map[float64]string, len(grades))
	for _, g := range grades {
		if g.Key == "" {
			return fmt.Errorf("grade key cannot be empty")
		}
		if g.Points < 0 || (maxPoints > 0 && g.Points > maxPoints) {
			return fmt.Errorf("grade %s: threshold %v out of range", g.Key, g.Points)
		}
		if other, ok := seen[g.Points]; ok {
			return fmt.Errorf("grades %s and %s share threshold %v", other, g.Key, g.Points)
		}
		seen[g.Points] = g.Key
	}
	return nil
}
