package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/engine"
	"github.com/coder/websocket"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 10 * time.Second
)

type eventPayload struct {
	Type     string          `json:"type"`
	BattleID string          `json:"battleId,omitempty"`
	State    string          `json:"state,omitempty"`
	Advisor  string          `json:"advisor,omitempty"`
	Message  *domain.Message `json:"message,omitempty"`
	Notice   *noticePayload  `json:"notice,omitempty"`
	Battle   *battlePayload  `json:"battle,omitempty"`
}

func toEventPayload(ev engine.Event) eventPayload {
	p := eventPayload{Type: string(ev.Type), BattleID: ev.BattleID}
	switch ev.Type {
	case engine.EventState:
		p.State = ev.State.String()
	case engine.EventThinking:
		p.Advisor = ev.Advisor.String()
	case engine.EventMessage:
		p.Message = ev.Message
	case engine.EventNotice:
		p.Notice = toNoticePayload(ev.Notice)
	}
	return p
}

type streamConn struct {
	events chan eventPayload
}

// Streams tracks the open WebSocket streams of each device and fans engine
// events out to them.
type Streams struct {
	mu     sync.RWMutex
	active map[string]map[*streamConn]struct{}
}

// NewStreams creates an empty registry.
func NewStreams() *Streams {
	return &Streams{active: make(map[string]map[*streamConn]struct{})}
}

func (s *Streams) register(ownerID string) *streamConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[ownerID]; !exists {
		s.active[ownerID] = make(map[*streamConn]struct{})
	}
	c := &streamConn{events: make(chan eventPayload, streamBuffer)}
	s.active[ownerID][c] = struct{}{}
	slog.Info("Battle stream registered", "owner_id", ownerID)
	return c
}

func (s *Streams) unregister(ownerID string, c *streamConn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conns, ok := s.active[ownerID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(s.active, ownerID)
		}
		slog.Info("Battle stream unregistered", "owner_id", ownerID)
	}
}

// Count returns the number of open streams for ownerID.
func (s *Streams) Count(ownerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active[ownerID])
}

// Broadcast delivers ev to the owner's streams. It is an engine.Observer and
// never blocks: a stream whose buffer is full misses the event.
func (s *Streams) Broadcast(ev engine.Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := s.active[ev.OwnerID]
	if len(conns) == 0 {
		return
	}
	p := toEventPayload(ev)
	for c := range conns {
		select {
		case c.events <- p:
		default:
			slog.Warn("Battle stream buffer full, dropping event", "owner_id", ev.OwnerID, "type", p.Type)
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// Stream upgrades to a WebSocket and pushes turn events for the device's
// live battle, starting with a snapshot.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	owner := ownerID(r)
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "owner_id", owner)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "stream ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "owner_id", owner)
		}
	}()

	conn := h.streams.register(owner)
	defer h.streams.unregister(owner, conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	e := h.arena.Get(owner)
	snapshot := toBattlePayload(e.Battle())
	snapshot.State = e.State().String()
	if err := writeJSON(ctx, ws, eventPayload{Type: "snapshot", BattleID: snapshot.ID, Battle: &snapshot}); err != nil {
		slog.Debug("Failed to send snapshot", "error", err, "owner_id", owner)
		return
	}

	go func() {
		defer cancel()
		h.readLoop(ctx, ws, owner)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-conn.events:
			if err := writeJSON(ctx, ws, p); err != nil {
				slog.Debug("WebSocket write error", "error", err, "owner_id", owner)
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, owner string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "owner_id", owner)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "owner_id", owner)
			}
			return
		}

		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
