package chat

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kindred-platform/kindred/internal/engine"
	"github.com/kindred-platform/kindred/internal/quota"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Auth already ran in the middleware chain; origin policy is handled by
	// the CORS layer for the rest of the API, so mirror it here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn serializes writes to the underlying connection. gorilla/websocket
// supports only one concurrent writer, and the ping loop writes from its own
// goroutine.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsConn) writeJSON(out wsOutbound) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(out)
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// wsInbound is a single user message over the socket.
type wsInbound struct {
	Content     string     `json:"content"`
	CharacterID *uuid.UUID `json:"character_id"`
	SessionID   *uuid.UUID `json:"session_id"`
}

// wsOutbound is the assistant's reply.
type wsOutbound struct {
	Role           string                `json:"role"`
	Content        string                `json:"content"`
	AdaptiveTraits *engine.TraitSnapshot `json:"adaptive_traits,omitempty"`
	Trigger        string                `json:"trigger,omitempty"`
	Degraded       bool                  `json:"degraded,omitempty"`
	Error          string                `json:"error,omitempty"`
}

// WebSocket upgrades the connection and runs a turn loop: each inbound JSON
// message produces one assistant reply on the same socket.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID, ok := requesterID(w, r)
	if !ok {
		return
	}

	sock, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("upgrading websocket", "error", err)
		return
	}
	defer sock.Close()

	sock.SetReadLimit(wsMaxMessage)
	sock.SetReadDeadline(time.Now().Add(wsPongTimeout))
	sock.SetPongHandler(func(string) error {
		return sock.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	conn := &wsConn{conn: sock}
	done := make(chan struct{})
	defer close(done)
	go pingLoop(conn, done)

	for {
		_, raw, err := sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("websocket read", "user_id", userID, "error", err)
			}
			return
		}
		sock.SetReadDeadline(time.Now().Add(wsPongTimeout))

		var in wsInbound
		if err := json.Unmarshal(raw, &in); err != nil || in.Content == "" {
			h.writeWS(conn, wsOutbound{Role: "system", Error: "invalid message"})
			continue
		}

		h.writeWS(conn, h.turn(r, userID, in))
	}
}

// turn runs one conversational exchange for the socket loop.
func (h *Handler) turn(r *http.Request, userID uuid.UUID, in wsInbound) wsOutbound {
	character, err := h.lookupCharacter(r, in.CharacterID)
	if err != nil {
		return wsOutbound{Role: "system", Error: err.Error()}
	}

	if h.quotaSvc != nil {
		if err := h.quotaSvc.Check(r.Context(), userID); err != nil {
			var exceeded *quota.ErrQuotaExceeded
			if errors.As(err, &exceeded) {
				return wsOutbound{Role: "system", Error: exceeded.Detail}
			}
			slog.Warn("quota check failed, allowing message", "error", err)
		}
	}

	binding := h.characterSvc.Binding(character)
	outcome := h.orch.HandleTurn(r.Context(), userID.String(), binding, in.Content)

	if !outcome.Degraded && outcome.Trigger == "" {
		outcome.Text = h.characterSvc.Embellish(character, outcome.Text)
	}

	if in.SessionID != nil && h.sessionSvc != nil {
		assistantText := outcome.Text
		if outcome.Degraded {
			assistantText = ""
		}
		if err := h.sessionSvc.RecordTurn(r.Context(), *in.SessionID, userID, in.Content, assistantText); err != nil {
			slog.Warn("recording session turn", "session_id", in.SessionID, "error", err)
		}
	}

	if h.quotaSvc != nil && !outcome.Degraded {
		h.quotaSvc.Record(r.Context(), userID)
	}

	return wsOutbound{
		Role:           string(engine.RoleAssistant),
		Content:        outcome.Text,
		AdaptiveTraits: outcome.Traits,
		Trigger:        outcome.Trigger,
		Degraded:       outcome.Degraded,
	}
}

func (h *Handler) writeWS(conn *wsConn, out wsOutbound) {
	if err := conn.writeJSON(out); err != nil {
		slog.Warn("websocket write", "error", err)
	}
}

func pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
