package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// CorrectorKeyKey ключ для хранения ключа корректора в контексте
	CorrectorKeyKey contextKey = "corrector_key"
	// UsernameKey ключ для хранения username в контексте
	UsernameKey contextKey = "username"
)

// WithCorrector returns ctx carrying the authenticated corrector
func WithCorrector(ctx context.Context, correctorKey, username string) context.Context {
	ctx = context.WithValue(ctx, CorrectorKeyKey, correctorKey)
	return context.WithValue(ctx, UsernameKey, username)
}

// GetCorrectorKey извлекает ключ корректора из контекста запроса
func GetCorrectorKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(CorrectorKeyKey).(string)
	return key, ok && key != ""
}

// GetUsername извлекает username из контекста запроса
func GetUsername(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(UsernameKey).(string)
	return username, ok
}
