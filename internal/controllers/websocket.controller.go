package controllers

import (
	"context"
	"net/http"
	"time"

	"deskbridge/internal/middleware"
	"deskbridge/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// WebSocketController upgrades view connections and serves the message loop
type WebSocketController struct {
	hub        *services.WebSocketHub
	dispatcher *services.Dispatcher
	auth       *services.AuthService
	security   *middleware.SecurityLogger
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewWebSocketController(
	hub *services.WebSocketHub,
	dispatcher *services.Dispatcher,
	auth *services.AuthService,
	security *middleware.SecurityLogger,
	allowedOrigins []string,
	authRequired bool,
	logger *zap.Logger,
) *WebSocketController {
	return &WebSocketController{
		hub:        hub,
		dispatcher: dispatcher,
		auth:       auth,
		security:   security,
		logger:     logger.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins, authRequired),
		},
	}
}

// checkOrigin accepts requests without an Origin header (native clients) and
// otherwise applies the same origin policy as CORS
func checkOrigin(allowedOrigins []string, authRequired bool) func(r *http.Request) bool {
	allowed := middleware.OriginPolicy(allowedOrigins, authRequired)
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed(origin)
	}
}

// HandleWebSocket upgrades the request and attaches the connection to the view
// resolved by middleware.ViewMiddleware
func (wc *WebSocketController) HandleWebSocket(c *gin.Context) {
	view := middleware.ViewFromContext(c)

	ws, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		wc.logger.Warn("upgrade failed", zap.String("ip", c.ClientIP()), zap.Error(err))
		return
	}

	client := services.NewClientConnection(uuid.NewString(), view, ws)
	if err := wc.hub.Register(client); err != nil {
		wc.logger.Warn("rejecting connection", zap.Error(err))
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		ws.Close()
		return
	}
	wc.security.LogWebSocketConnected(c.ClientIP(), view)

	go wc.writePump(client)
	go wc.readPump(client, c.ClientIP())
}

// readPump reads messages from the view until the connection drops
func (wc *WebSocketController) readPump(client *services.ClientConnection, ip string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		close(client.Close)
		wc.hub.Unregister(client.ID)
		client.Conn.Close()
		wc.security.LogWebSocketDisconnected(ip, client.ID)
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		return client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg services.WebSocketMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				wc.logger.Warn("read error", zap.String("client", client.ID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case services.MessagePing:
			wc.reply(client, services.WebSocketMessage{Type: services.MessagePong, ID: msg.ID})

		case services.MessageInvoke:
			wc.invoke(ctx, client, msg)

		case services.MessageAuth:
			wc.authenticate(client, ip, msg)

		case services.MessageSubscribe:
			// connections receive every event for their view already
			wc.logger.Debug("client subscribed", zap.String("client", client.ID))

		case services.MessageUnsubscribe:
			return

		default:
			wc.logger.Debug("unknown message type", zap.String("client", client.ID), zap.String("type", msg.Type))
			wc.reply(client, services.WebSocketMessage{
				Type:  services.MessageError,
				ID:    msg.ID,
				Error: "unknown message type: " + msg.Type,
			})
		}
	}
}

func (wc *WebSocketController) invoke(ctx context.Context, client *services.ClientConnection, msg services.WebSocketMessage) {
	result, err := wc.dispatcher.Invoke(ctx, msg.Command, services.Invocation{
		View: client.View,
		Args: msg.Args,
	})
	if err != nil {
		wc.reply(client, services.WebSocketMessage{Type: services.MessageError, ID: msg.ID, Command: msg.Command, Error: err.Error()})
		return
	}
	wc.reply(client, services.WebSocketMessage{Type: services.MessageResult, ID: msg.ID, Command: msg.Command, Data: result})
}

// authenticate checks a token sent after connecting. The connection keeps its
// view; the message only confirms the token is good for it.
func (wc *WebSocketController) authenticate(client *services.ClientConnection, ip string, msg services.WebSocketMessage) {
	claims, err := wc.auth.ValidateToken(msg.Token)
	if err == nil && claims.View != client.View {
		err = services.ErrInvalidView
	}
	if err != nil {
		wc.security.LogFailedAuth(ip, "websocket auth message: "+err.Error())
		wc.reply(client, services.WebSocketMessage{Type: services.MessageAuthError, ID: msg.ID, Error: "invalid token"})
		return
	}
	wc.reply(client, services.WebSocketMessage{
		Type: services.MessageAuthSuccess,
		ID:   msg.ID,
		Data: map[string]interface{}{"view": claims.View},
	})
}

func (wc *WebSocketController) reply(client *services.ClientConnection, msg services.WebSocketMessage) {
	msg.Timestamp = time.Now()
	if !wc.hub.SendMessage(client.ID, msg) {
		wc.logger.Debug("reply dropped", zap.String("client", client.ID), zap.String("type", msg.Type))
	}
}

// writePump writes queued messages and keepalive pings to the view
func (wc *WebSocketController) writePump(client *services.ClientConnection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// hub closed the queue
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteJSON(msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					wc.logger.Warn("write error", zap.String("client", client.ID), zap.Error(err))
				}
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-client.Close:
			return
		}
	}
}
