package api

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// MessagesHandler relays protocol messages to the aggregator.
type MessagesHandler struct {
	deps   Dependencies
	logger logger.Logger
}

// NewMessagesHandler creates a new messages handler.
func NewMessagesHandler(deps Dependencies) *MessagesHandler {
	return &MessagesHandler{deps: deps, logger: logger.Nop()}
}

// HandlePostMessage handles POST /v1/messages requests.
//
// Requests answer 200 with the protocol response. Messages without a reply
// (captures, unknown types, JSON that is not a message object) answer 204
// with an empty body. Only unreadable bodies get a 400.
func (h *MessagesHandler) HandlePostMessage(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_message"

	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes)).Decode(&raw); err != nil {
		err = WrapKind(op, ErrBadRequest, err)
		h.logger.Debug(r.Context(), "unreadable message rejected", requestFields(r, logger.Error(err))...)
		writeJSON(w, http.StatusBadRequest, types.ErrorResponse(err.Error()))
		return
	}

	var msg types.Message
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) || json.Unmarshal(raw, &msg) != nil {
		h.logger.Debug(r.Context(), "message outside the protocol ignored", requestFields(r)...)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var sender types.Sender
	if id, ok := parseTabID(r.Header.Get(SenderTabHeader)); ok {
		sender = types.SenderTab(id)
	}

	resp, reply := h.deps.HandleMessage(r.Context(), msg, sender)
	if !reply {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
