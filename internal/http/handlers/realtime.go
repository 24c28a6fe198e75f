package handlers

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/migralert/migralert-backend/internal/observability"
	"github.com/migralert/migralert-backend/internal/platform/ctxutil"
	"github.com/migralert/migralert-backend/internal/platform/logger"
	"github.com/migralert/migralert-backend/internal/realtime"
)

type RealtimeHandler struct {
	Log     *logger.Logger
	Hub     *realtime.SSEHub
	Metrics *observability.Metrics

	// OnSessionClosed runs when a session's last stream disconnects.
	OnSessionClosed func(sessionID uuid.UUID)

	mu      sync.Mutex
	clients map[uuid.UUID]*realtime.SSEClient // key: SessionID (UserToken.ID)
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, m *observability.Metrics) *RealtimeHandler {
	return &RealtimeHandler{
		Log:     log.With("handler", "RealtimeHandler"),
		Hub:     hub,
		Metrics: m,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// ReportsStream is the public map feed.
func (h *RealtimeHandler) ReportsStream(c *gin.Context) {
	client := h.Hub.NewSSEClient(uuid.Nil)
	h.Hub.AddChannel(client, realtime.ReportsChannel)
	h.serve(c, client)
	h.Hub.CloseClient(client)
}

// UserStream carries the caller's private events. A session holds one stream;
// reconnecting replaces the previous one.
func (h *RealtimeHandler) UserStream(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	sessionID := ctxutil.GetRequestData(c.Request.Context()).SessionID

	h.mu.Lock()
	if existing, ok := h.clients[sessionID]; ok {
		h.Hub.CloseClient(existing)
	}
	client := h.Hub.NewSSEClient(userID)
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.Hub.AddChannel(client, realtime.UserChannel(userID))
	h.Log.Info("SSE stream open", "user_id", userID, "session_id", sessionID, "client_id", client.ID)
	h.serve(c, client)

	h.mu.Lock()
	last := h.clients[sessionID] == client
	if last {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.Hub.CloseClient(client)

	if last && h.OnSessionClosed != nil {
		h.OnSessionClosed(sessionID)
	}
}

func (h *RealtimeHandler) serve(c *gin.Context, client *realtime.SSEClient) {
	h.Metrics.SSEClientOpened()
	defer h.Metrics.SSEClientClosed()
	h.Hub.ServeHTTP(c.Writer, c.Request, client)
}
