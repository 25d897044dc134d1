package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"docpulse/internal/config"
	ws "docpulse/internal/websocket"
)

func TestWSHandlerUsesConfiguredSettings(t *testing.T) {
	cfg := config.WebSocketConfig{
		ReadBufferSize:  4096,
		WriteBufferSize: 2048,
		PingPeriod:      15 * time.Second,
		PongWait:        45 * time.Second,
	}

	h := NewWSHandler(ws.NewHub(nil, nil), cfg, nil, nil)

	assert.Equal(t, 4096, h.upgrader.ReadBufferSize)
	assert.Equal(t, 2048, h.upgrader.WriteBufferSize)
	assert.Equal(t, 15*time.Second, h.clientOpts.PingPeriod)
	assert.Equal(t, 45*time.Second, h.clientOpts.PongWait)
}

func TestWSHandlerCheckOrigin(t *testing.T) {
	h := NewWSHandler(ws.NewHub(nil, nil), config.WebSocketConfig{},
		[]string{"http://app.example.com"}, nil)

	mkReq := func(origin, host string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Host = host
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		return req
	}

	assert.True(t, h.upgrader.CheckOrigin(mkReq("", "localhost:8080")))
	assert.True(t, h.upgrader.CheckOrigin(mkReq("http://app.example.com", "localhost:8080")))
	assert.True(t, h.upgrader.CheckOrigin(mkReq("http://localhost:8080", "localhost:8080")))
	assert.False(t, h.upgrader.CheckOrigin(mkReq("http://evil.example.com", "localhost:8080")))
}
