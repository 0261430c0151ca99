package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// UpdatesHandler streams state updates as Server-Sent Events.
type UpdatesHandler struct {
	deps      Dependencies
	heartbeat time.Duration
	logger    logger.Logger
}

// NewUpdatesHandler creates a new updates handler.
func NewUpdatesHandler(deps Dependencies, heartbeat time.Duration) *UpdatesHandler {
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}
	return &UpdatesHandler{deps: deps, heartbeat: heartbeat, logger: logger.Nop()}
}

// HandleUpdates handles GET /v1/updates[?tabId=N] requests.
func (h *UpdatesHandler) HandleUpdates(w http.ResponseWriter, r *http.Request) {
	const op = "api.updates"

	filter := notify.AllTabs()
	if raw := r.URL.Query().Get("tabId"); raw != "" {
		id, ok := parseTabID(raw)
		if !ok {
			writeJSON(w, http.StatusBadRequest, types.ErrorResponse(types.ErrMissingTabID))
			return
		}
		filter = notify.ForTab(id)
	}

	rc := http.NewResponseController(w)
	// Streams outlive the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrStreaming, err))
		return
	}

	updates, cancel, err := h.deps.Subscribe(filter)
	if err != nil {
		h.logger.Warn(r.Context(), "update stream unavailable", requestFields(r, logger.Error(err))...)
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
		return
	}
	defer cancel()

	h.logger.Debug(r.Context(), "update stream opened", requestFields(r)...)
	defer h.logger.Debug(r.Context(), "update stream closed", requestFields(r)...)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(u)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
