package models

import "time"

// User представляет корректора на сервере
type User struct {
	CreatedAt    time.Time `json:"created_at"`    // время создания
	ID           string    `json:"id"`            // CorrectorKey корректора
	Username     string    `json:"username"`      // уникальный логин
	Name         string    `json:"name"`          // отображаемое имя
	PasswordHash string    `json:"password_hash"` // bcrypt хеш пароля
}
