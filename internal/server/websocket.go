package server

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/metrics"
	"github.com/analyticsai/insight-service/internal/models"
)

const (
	wsWriteTimeout      = 10 * time.Second
	wsHeartbeatInterval = 30 * time.Second
	wsMaxMessageBytes   = 64 * 1024
)

// wsInbound is a chat turn sent by the client.
type wsInbound struct {
	Message   string `json:"message"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// wsOutbound is a frame pushed to the client.
type wsOutbound struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	SessionID string `json:"session_id,omitempty"`
}

// wsConn wraps a WebSocket connection with a write lock and a
// per-connection context so in-flight work stops when the peer leaves.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *wsConn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return err
	}
	metrics.WebSocketMessagesTotal.WithLabelValues("outbound").Inc()
	return nil
}

func (c *wsConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.cfg.Server.AllowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &wsConn{conn: conn, ctx: ctx, cancel: cancel}

	metrics.WebSocketConnections.Inc()
	s.logger.Info("websocket connected", zap.String("remote", r.RemoteAddr))

	defer func() {
		cancel()
		conn.Close()
		metrics.WebSocketConnections.Dec()
		s.logger.Info("websocket disconnected", zap.String("remote", r.RemoteAddr))
	}()

	go s.heartbeat(c)

	conn.SetReadLimit(wsMaxMessageBytes)

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		metrics.WebSocketMessagesTotal.WithLabelValues("inbound").Inc()

		if err := s.handleWSMessage(c, in); err != nil {
			return
		}
	}
}

func (s *Server) handleWSMessage(c *wsConn, in wsInbound) error {
	resp, err := s.chat.ProcessMessage(c.ctx, in.Message, in.UserID, in.SessionID)
	if err != nil {
		return c.send(wsOutbound{
			Type:      "error",
			Message:   err.Error(),
			Timestamp: nowRFC3339(),
			SessionID: in.SessionID,
		})
	}

	frameType := "message"
	if resp.Role == models.RoleError {
		frameType = "error"
	}

	return c.send(wsOutbound{
		Type:      frameType,
		Message:   resp.Message,
		Timestamp: resp.Timestamp.UTC().Format(time.RFC3339),
		SessionID: resp.SessionID,
	})
}

// heartbeat pings the peer until the connection context ends.
func (s *Server) heartbeat(c *wsConn) {
	ticker := time.NewTicker(wsHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				c.cancel()
				return
			}
		}
	}
}
