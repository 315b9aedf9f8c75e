//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/quarrel-labs/internal/domain"
	"github.com/ashureev/quarrel-labs/internal/engine"
	"github.com/coder/websocket"
)

func readEvent(ctx context.Context, t *testing.T, ws *websocket.Conn) eventPayload {
	t.Helper()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("decode event %s: %v", data, err)
	}
	return p
}

func TestStreamDeliversTurnEvents(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, nil)
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/battle", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	snap := readEvent(ctx, t, ws)
	if snap.Type != "snapshot" || snap.Battle == nil || snap.Battle.State != "idle" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	body, _ := json.Marshal(turnRequest{Scenario: "s", OpponentLine: "o"})
	resp, err := http.Post(srv.URL+"/api/battle/turns", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post turn: %v", err)
	}
	_ = resp.Body.Close()

	var speakers []string
	for {
		ev := readEvent(ctx, t, ws)
		if ev.Type == string(engine.EventMessage) {
			speakers = append(speakers, ev.Message.Speaker)
		}
		if ev.Type == string(engine.EventState) && ev.State == "idle" {
			break
		}
	}
	want := []string{domain.UserSpeaker, "DINGZUI", "FALI", "ARBITER"}
	if strings.Join(speakers, ",") != strings.Join(want, ",") {
		t.Fatalf("speakers = %v, want %v", speakers, want)
	}
}

func TestStreamAnswersPing(t *testing.T) {
	t.Parallel()
	a := newTestAPI(t, nil)
	srv := httptest.NewServer(a.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ws, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/battle", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	readEvent(ctx, t, ws)
	if err := ws.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if ev := readEvent(ctx, t, ws); ev.Type != "pong" {
		t.Fatalf("got %q, want pong", ev.Type)
	}
}

func TestBroadcastSkipsOtherOwners(t *testing.T) {
	t.Parallel()
	s := NewStreams()
	mine := s.register("a")
	theirs := s.register("b")
	defer s.unregister("a", mine)
	defer s.unregister("b", theirs)

	s.Broadcast(engine.Event{Type: engine.EventState, OwnerID: "a", State: engine.StateSelecting})

	select {
	case p := <-mine.events:
		if p.State != "selecting" {
			t.Errorf("state = %q", p.State)
		}
	default:
		t.Fatal("expected event for owner a")
	}
	select {
	case p := <-theirs.events:
		t.Fatalf("owner b received %+v", p)
	default:
	}
	if s.Count("a") != 1 {
		t.Errorf("Count = %d", s.Count("a"))
	}
}
