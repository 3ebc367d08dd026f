package ws

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"support-console/internal/auth"
	"support-console/internal/observability"
)

// EventPanelSnapshot is the first frame a UI client receives.
const EventPanelSnapshot = "panel_snapshot"

// PanelWebSocketHandler accepts UI websocket connections.
type PanelWebSocketHandler struct {
	hub      *Hub
	verifier *auth.Verifier
	adminID  string
	snapshot func() interface{}
	upgrader websocket.Upgrader
}

// NewPanelWebSocketHandler constructs a PanelWebSocketHandler. Only sessions of
// adminID may connect; allowedOrigins empty means any origin.
func NewPanelWebSocketHandler(hub *Hub, verifier *auth.Verifier, adminID string, snapshot func() interface{}, allowedOrigins []string) *PanelWebSocketHandler {
	h := &PanelWebSocketHandler{hub: hub, verifier: verifier, adminID: adminID, snapshot: snapshot}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

// Handle upgrades the connection, sends a snapshot and registers the client.
func (h *PanelWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("support-console/ws").Start(c.Request.Context(), "ws.panel.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if h.adminID != "" && claims.Subject != h.adminID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another admin"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	meta := observability.ClientMetaFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		AdminID:     claims.Subject,
		Role:        claims.Role,
		IP:          meta.IP,
		RequestID:   meta.RequestID,
		ConnectedAt: time.Now(),
	}

	if h.snapshot != nil {
		if err := h.hub.Send(conn, EventPanelSnapshot, h.snapshot()); err != nil {
			conn.Close()
			return
		}
	}
	h.hub.AddClient(conn, info)
	log.Printf("panel client connected conn_id=%s admin_id=%s ip=%s request_id=%s", info.ConnID, info.AdminID, info.IP, info.RequestID)
	observability.IncWSActive("panel")
	observability.IncWSEvent("panel", "ws_connect")

	go func() {
		defer func() {
			h.hub.RemoveClient(conn)
			observability.DecWSActive("panel")
			observability.IncWSEvent("panel", "ws_disconnect")
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("panel", "ws_error")
				}
				return
			}
		}
	}()
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
