package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/b00ls0ck3t/Polyglot/internal/broadcast"
	"github.com/b00ls0ck3t/Polyglot/internal/events"
	"github.com/b00ls0ck3t/Polyglot/internal/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *Relay, *broadcast.Hub, *broadcast.History) {
	t.Helper()

	hub := broadcast.NewHub()
	history := broadcast.NewHistory(100)
	relay := NewRelay(hub, events.New(nil))

	s, err := New(":0", hub, history, relay)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, relay, hub, history
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env models.Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read envelope: %v", err)
	}
	return env
}

func TestServer_Health(t *testing.T) {
	ts, _, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestServer_UnitFlowsToSubscriber(t *testing.T) {
	ts, _, hub, _ := newTestServer(t)

	live := dialWS(t, wsURL(ts, "/v1/live"))
	waitForSubscribers(t, hub, 1)

	ingest := dialWS(t, wsURL(ts, "/v1/ingest"))
	unit := models.SpeechUnit{SessionID: "s-1", Seq: 0, Text: "Dobrý den", Speaker: "SPEAKER_00"}
	if err := ingest.WriteJSON(models.Envelope{Type: models.EventUnit, Unit: &unit}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}

	env := readEnvelope(t, live)
	if env.Type != models.EventUnit {
		t.Fatalf("expected unit envelope, got %s", env.Type)
	}
	if env.Unit.Text != "Dobrý den" {
		t.Errorf("unexpected unit text: %q", env.Unit.Text)
	}
}

func TestServer_TurnQueuesForTranslation(t *testing.T) {
	ts, relay, _, _ := newTestServer(t)

	ingest := dialWS(t, wsURL(ts, "/v1/ingest"))
	turn := models.BufferedTurn{ID: "t-1", SessionID: "s-1", Speaker: "SPEAKER_00", Text: "Ahoj"}
	if err := ingest.WriteJSON(models.Envelope{Type: models.EventTurn, Turn: &turn}); err != nil {
		t.Fatalf("write envelope: %v", err)
	}

	select {
	case got := <-relay.Turns():
		if got.ID != "t-1" || got.Text != "Ahoj" {
			t.Errorf("unexpected turn: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued turn")
	}
}

func TestServer_HistoryEndpoint(t *testing.T) {
	ts, _, _, history := newTestServer(t)

	history.Add(models.TranslatedTurn{
		Turn:        models.BufferedTurn{ID: "t-1", Text: "Dobrý den"},
		Translation: "Good day",
	})

	resp, err := http.Get(ts.URL + "/v1/history")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Turns []models.TranslatedTurn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Turns) != 1 || body.Turns[0].Translation != "Good day" {
		t.Errorf("unexpected history: %+v", body.Turns)
	}
}

func TestServer_HistoryClear(t *testing.T) {
	ts, _, hub, history := newTestServer(t)

	history.Add(models.TranslatedTurn{
		Turn:        models.BufferedTurn{ID: "t-1", Text: "Dobrý den"},
		Translation: "Good day",
	})

	live := dialWS(t, wsURL(ts, "/v1/live"))
	waitForSubscribers(t, hub, 1)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/v1/history", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	if got := len(history.Snapshot()); got != 0 {
		t.Errorf("expected empty history after clear, got %d turns", got)
	}

	env := readEnvelope(t, live)
	if env.Type != models.EventClear {
		t.Errorf("expected clear envelope for subscribers, got %s", env.Type)
	}
}

func TestRelay_FanOut(t *testing.T) {
	hub := broadcast.NewHub()
	history := broadcast.NewHistory(100)
	relay := NewRelay(hub, events.New(nil))

	sub := hub.Subscribe()
	defer hub.Unsubscribe(sub)

	translated := make(chan models.TranslatedTurn, 1)
	translated <- models.TranslatedTurn{
		Turn:        models.BufferedTurn{ID: "t-1", SessionID: "s-1", Text: "Ahoj"},
		Translation: "Hi",
	}
	close(translated)

	relay.FanOut(context.Background(), translated, history)

	select {
	case env := <-sub.Events():
		if env.Type != models.EventTranslation || env.Translation.Translation != "Hi" {
			t.Errorf("unexpected envelope: %+v", env)
		}
	default:
		t.Error("subscriber received nothing")
	}

	snap := history.Snapshot()
	if len(snap) != 1 || snap[0].Turn.ID != "t-1" {
		t.Errorf("unexpected history: %+v", snap)
	}
}

func waitForSubscribers(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.Len() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
