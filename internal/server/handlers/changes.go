package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/gophgrade/internal/models"
	"github.com/iudanet/gophgrade/internal/server/storage"
	"github.com/iudanet/gophgrade/pkg/api"
)

// maxBatchSize ограничивает число изменений в одном запросе
const maxBatchSize = 1000

// ChangesHandler принимает пакеты изменений и отдает данные корректора
type ChangesHandler struct {
	logger    *slog.Logger
	storage   storage.DataStorage
	jwtConfig JWTConfig
	now       func() time.Time
}

// NewChangesHandler creates a new changes handler
func NewChangesHandler(logger *slog.Logger, storage storage.DataStorage, jwtConfig JWTConfig) *ChangesHandler {
	return &ChangesHandler{
		logger:    logger,
		storage:   storage,
		jwtConfig: jwtConfig,
		now:       time.Now,
	}
}

// Send обрабатывает POST /api/v1/changes
func (h *ChangesHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correctorKey, ok := GetCorrectorKey(ctx)
	if !ok {
		h.logger.Error("Corrector key not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req api.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode changes request", "error", err)
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Changes) > maxBatchSize {
		sendError(h.logger, w, "too many changes in one request", http.StatusRequestEntityTooLarge)
		return
	}

	changes := make([]storage.Change, 0, len(req.Changes))
	for _, ch := range req.Changes {
		changes = append(changes, storage.Change{
			Payload:    ch.Payload,
			Action:     models.ChangeAction(ch.Action),
			Type:       models.EntityType(ch.Type),
			Key:        ch.Key,
			ItemKey:    ch.ItemKey,
			LastChange: ch.LastChange,
		})
	}

	now := h.now().UnixMilli()
	keyMap, err := h.storage.ApplyChanges(ctx, correctorKey, changes, now)
	if err != nil {
		h.logger.Error("Failed to apply changes", "error", err, "corrector_key", correctorKey)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	token, ok := h.renewToken(w, r)
	if !ok {
		return
	}

	removed := 0
	for _, v := range keyMap {
		if v == nil {
			removed++
		}
	}
	h.logger.Info("Changes applied",
		"corrector_key", correctorKey,
		"received", len(changes),
		"removed", removed)

	sendJSON(h.logger, w, api.SendResponse{
		Accepted:   true,
		KeyMap:     keyMap,
		Token:      token,
		ServerTime: now,
	}, http.StatusOK)
}

// Data обрабатывает GET /api/v1/data
func (h *ChangesHandler) Data(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	correctorKey, ok := GetCorrectorKey(ctx)
	if !ok {
		h.logger.Error("Corrector key not found in context")
		sendError(h.logger, w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ds, err := h.storage.LoadData(ctx, correctorKey)
	if err != nil {
		if errors.Is(err, storage.ErrTaskNotFound) {
			sendError(h.logger, w, "no task imported", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to load data", "error", err, "corrector_key", correctorKey)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	token, ok := h.renewToken(w, r)
	if !ok {
		return
	}

	entities := make(map[string][]map[string]any, len(ds.Entities))
	total := 0
	for t, rows := range ds.Entities {
		out := make([]map[string]any, 0, len(rows))
		for _, p := range rows {
			out = append(out, p)
		}
		entities[string(t)] = out
		total += len(out)
	}

	h.logger.Info("Data delivered", "corrector_key", correctorKey, "entities", total)

	sendJSON(h.logger, w, api.DataResponse{
		Task:       ds.Task.Payload(),
		Entities:   entities,
		Token:      token,
		ServerTime: h.now().UnixMilli(),
	}, http.StatusOK)
}

// renewToken mints the token returned with every authenticated response
func (h *ChangesHandler) renewToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	correctorKey, _ := GetCorrectorKey(r.Context())
	username, _ := GetUsername(r.Context())

	token, _, err := GenerateToken(h.jwtConfig, correctorKey, username)
	if err != nil {
		h.logger.Error("Failed to renew token", "error", err)
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return "", false
	}
	return token, true
}
