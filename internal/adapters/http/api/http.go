// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/abrantes/internal/adapters/notify"
	"github.com/okian/abrantes/internal/domain/types"
	"github.com/okian/abrantes/pkg/logger"
)

// SenderTabHeader carries the tab a capture message originates from. The
// relay attributes captures from this header, never from the payload.
const SenderTabHeader = "X-Sender-Tab-Id"

const (
	maxMessageBytes          = 1 << 20
	defaultHeartbeatInterval = 15 * time.Second
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// HandleMessage routes a relay message; the boolean reports whether there is a reply.
	HandleMessage(ctx context.Context, msg types.Message, sender types.Sender) (types.Response, bool)

	// TabClosed releases state for a tab the host reports as closed.
	TabClosed(ctx context.Context, tabID int)

	// Subscribe follows state updates matching filter.
	Subscribe(filter notify.Filter) (<-chan types.Update, func(), error)
}

// Server wires HTTP routes for the relay API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	messagesHandler *MessagesHandler
	tabsHandler     *TabsHandler
	updatesHandler  *UpdatesHandler
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	heartbeat time.Duration
	logger    logger.Logger
}

// WithHeartbeatInterval sets how often idle update streams get a keep-alive comment.
func WithHeartbeatInterval(d time.Duration) ServerOption {
	return func(c *serverConfig) {
		if d > 0 {
			c.heartbeat = d
		}
	}
}

// WithLogger sets the logger handlers report rejected and failed requests to.
func WithLogger(l logger.Logger) ServerOption {
	return func(c *serverConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	cfg := serverConfig{heartbeat: defaultHeartbeatInterval, logger: logger.Nop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	messages := NewMessagesHandler(deps)
	messages.logger = cfg.logger
	tabs := NewTabsHandler(deps)
	tabs.logger = cfg.logger
	updates := NewUpdatesHandler(deps, cfg.heartbeat)
	updates.logger = cfg.logger
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		messagesHandler: messages,
		tabsHandler:     tabs,
		updatesHandler:  updates,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("POST /v1/messages", MetricsMiddleware(s.messagesHandler.HandlePostMessage, "messages"))
	mux.HandleFunc("GET /v1/tabs/{id}/state", MetricsMiddleware(s.tabsHandler.HandleGetState, "tab_state"))
	mux.HandleFunc("DELETE /v1/tabs/{id}/state", MetricsMiddleware(s.tabsHandler.HandleClearState, "tab_state"))
	mux.HandleFunc("POST /v1/tabs/{id}/closed", MetricsMiddleware(s.tabsHandler.HandleTabClosed, "tab_closed"))
	mux.HandleFunc("GET /v1/updates", MetricsMiddleware(s.updatesHandler.HandleUpdates, "updates"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// requestFields tags a log line with the request id.
func requestFields(r *http.Request, fields ...logger.Field) []logger.Field {
	return append([]logger.Field{logger.String("request_id", RequestID(r.Context()))}, fields...)
}

// parseTabID reads a decimal tab id from a header, path or query value.
func parseTabID(raw string) (int, bool) {
	return types.ParseTabIDString(raw)
}
