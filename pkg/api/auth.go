package api

// LoginRequest представляет запрос на аутентификацию корректора
type LoginRequest struct {
	Username string `json:"username"` // логин корректора
	Password string `json:"password"` // пароль в открытом виде (только поверх TLS)
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	Token        string `json:"token"`         // JWT access token
	CorrectorKey string `json:"corrector_key"` // идентификатор корректора
	Username     string `json:"username"`      // логин корректора
	ExpiresIn    int64  `json:"expires_in"`    // время жизни токена в секундах
	ServerTime   int64  `json:"server_time"`   // серверное время, мс
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status     string `json:"status"`
	ServerTime int64  `json:"server_time"`
}
