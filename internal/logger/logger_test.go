package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"ecofin/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	log := New(config.LogConfig{Level: "debug", Format: "json", Output: "stderr"})
	require.NotNil(t, log)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	quiet := New(config.LogConfig{Level: "error"})
	assert.False(t, quiet.Core().Enabled(zapcore.InfoLevel))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(GinMiddleware(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) {
		assert.NotNil(t, FromContext(c.Request.Context(), nil))
		c.Status(http.StatusOK)
	})
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.ErrorLevel)

	r := gin.New()
	r.Use(Recovery(zap.New(core)))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, 1, logs.FilterMessage("Panic recovered").Len())
}

func TestFromContextFallback(t *testing.T) {
	fallback := zap.NewExample()
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.NotNil(t, FromContext(context.Background(), nil))
}
