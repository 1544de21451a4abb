package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ecofin/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var secret = []byte("test-secret")

func signed(t *testing.T, role string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "user-1",
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func newServer(t *testing.T, hub *Hub) *httptest.Server {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ServeWs(hub, c, secret) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestServeWs_RejectsBadTokens(t *testing.T) {
	hub := NewHub(zap.NewNop())
	srv := newServer(t, hub)

	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/ws?token=" + signed(t, "guest"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_PublishReachesClient(t *testing.T) {
	hub := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := newServer(t, hub)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signed(t, "staff")
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(context.Background(), events.New(events.InvoiceIssued, "inv-1", nil)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var e events.Event
	require.NoError(t, json.Unmarshal(msg, &e))
	assert.Equal(t, events.InvoiceIssued, e.Type)
	assert.Equal(t, "inv-1", e.EntityID)
}
