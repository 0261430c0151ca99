package api

import (
	"net/http"

	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// TabsHandler exposes per-tab REST conveniences over the message protocol.
type TabsHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewTabsHandler creates a new tabs handler.
func NewTabsHandler(deps Dependencies) *TabsHandler {
	return &TabsHandler{deps: deps, logger: logger.Nop()}
}

// HandleGetState handles GET /v1/tabs/{id}/state requests.
func (h *TabsHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, types.MessageGetTabState)
}

// HandleClearState handles DELETE /v1/tabs/{id}/state requests.
func (h *TabsHandler) HandleClearState(w http.ResponseWriter, r *http.Request) {
	h.request(w, r, types.MessageClearTabState)
}

func (h *TabsHandler) request(w http.ResponseWriter, r *http.Request, msgType string) {
	id, ok := parseTabID(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse(types.ErrMissingTabID))
		return
	}
	resp, _ := h.deps.HandleMessage(r.Context(), types.NewTabMessage(msgType, id), types.Sender{})
	status := http.StatusOK
	if !resp.OK {
		status = http.StatusInternalServerError
		h.logger.Warn(r.Context(), "tab request failed",
			requestFields(r, logger.String("type", msgType), logger.TabID(id), logger.String("error", resp.Error))...)
	}
	writeJSON(w, status, resp)
}

// HandleTabClosed handles POST /v1/tabs/{id}/closed requests.
func (h *TabsHandler) HandleTabClosed(w http.ResponseWriter, r *http.Request) {
	id, ok := parseTabID(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse(types.ErrMissingTabID))
		return
	}
	h.deps.TabClosed(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}
