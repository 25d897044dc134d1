package http

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"docpulse/internal/config"
	"docpulse/internal/infrastructure"
	ws "docpulse/internal/websocket"
)

// WSHandler upgrades HTTP requests to the progress event stream.
type WSHandler struct {
	hub        *ws.Hub
	upgrader   websocket.Upgrader
	clientOpts ws.Options
	logger     *slog.Logger
}

// NewWSHandler creates the websocket upgrade handler. allowedOrigins
// restricts cross-origin upgrades; an empty list allows same-origin
// only.
func NewWSHandler(hub *ws.Hub, cfg config.WebSocketConfig, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}

	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &WSHandler{
		hub: hub,
		clientOpts: ws.Options{
			PongWait:   cfg.PongWait,
			PingPeriod: cfg.PingPeriod,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if origins["*"] || origins[origin] {
					return true
				}
				return origin == "http://"+r.Host || origin == "https://"+r.Host
			},
		},
		logger: logger.With(slog.String("handler", "websocket")),
	}
}

// Serve upgrades the connection and hands it to the hub.
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own response on handshake errors;
		// only log here.
		h.logger.Warn("websocket upgrade failed",
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
		return
	}

	traceID := infrastructure.GetTraceID(r.Context())
	ws.NewClient(h.hub, conn, traceID, h.clientOpts, h.logger).Serve()
}
