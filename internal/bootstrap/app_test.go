package bootstrap

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		ServerPort:        "0",
		AppEnv:            "test",
		LogLevel:          "warn",
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimitMax:      100,
		RateLimitWindow:   time.Second,
		HistoryCapacity:   100,
		RoomIdleTTL:       time.Hour,
		RoomSweepSchedule: "@every 1m",
		RejectionNotices:  true,
		WSMaxMessageSize:  64 * 1024,
		WSEventsPerSecond: 50,
		ChatMaxLength:     2000,
	}
}

func TestNewApp_RoutesWithoutRedis(t *testing.T) {
	app, err := NewApp(testConfig())
	require.NoError(t, err)
	assert.Nil(t, app.RedisClient)
	assert.Nil(t, app.AsynqServer)
	handler := app.HttpServer.Handler

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/rooms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var created struct {
		RoomID string `json:"roomId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Len(t, created.RoomID, 6)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/NOPE42", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/rooms", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewApp_NilConfig(t *testing.T) {
	_, err := NewApp(nil)
	assert.Error(t, err)
}
