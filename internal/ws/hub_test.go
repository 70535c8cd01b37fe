package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"showrunner/internal/session"
	"showrunner/pkg/logging"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub, sessionID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(frame, &envelope); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return envelope
}

func TestPushReachesSessionSubscriber(t *testing.T) {
	hub := NewHub(logging.NewLogger())
	go hub.Run()

	conn := dialHub(t, hub, "session-1")

	// Registration races the push; give the hub a beat to admit the client.
	time.Sleep(50 * time.Millisecond)

	update := session.NewInputMessage("session-1", "conv-1", "hello")
	hub.Push(update)

	envelope := readEnvelope(t, conn)
	if envelope.Type != "message_update" {
		t.Fatalf("unexpected frame type %q", envelope.Type)
	}
	if envelope.SessionID != "session-1" {
		t.Fatalf("unexpected session %q", envelope.SessionID)
	}
	if envelope.Data.Content[0].Text != "hello" {
		t.Fatalf("payload lost: %+v", envelope.Data)
	}
}

func TestPushSkipsOtherSessions(t *testing.T) {
	hub := NewHub(logging.NewLogger())
	go hub.Run()

	conn := dialHub(t, hub, "session-1")
	time.Sleep(50 * time.Millisecond)

	hub.Push(session.NewInputMessage("session-2", "conv-1", "not for you"))
	hub.Push(session.NewInputMessage("session-1", "conv-1", "for you"))

	envelope := readEnvelope(t, conn)
	if envelope.SessionID != "session-1" {
		t.Fatalf("received a frame for the wrong session: %q", envelope.SessionID)
	}
}

func TestSubscribeFrameAddsSession(t *testing.T) {
	hub := NewHub(logging.NewLogger())
	go hub.Run()

	conn := dialHub(t, hub, "")
	time.Sleep(50 * time.Millisecond)

	sub := SubscriptionMessage{Action: "subscribe", Sessions: []string{"session-9"}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write: %v", err)
	}

	// First frame back is the confirmation.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var confirm map[string]interface{}
	if err := conn.ReadJSON(&confirm); err != nil {
		t.Fatalf("read confirmation: %v", err)
	}
	if confirm["type"] != "subscription_confirmed" {
		t.Fatalf("unexpected confirmation %+v", confirm)
	}

	hub.Push(session.NewInputMessage("session-9", "conv-1", "late joiner"))
	envelope := readEnvelope(t, conn)
	if envelope.SessionID != "session-9" {
		t.Fatalf("subscription did not take: %+v", envelope)
	}
}

func TestPushIsNonBlockingWhenQueueFull(t *testing.T) {
	hub := NewHub(logging.NewLogger())
	// Run is never started, so the broadcast queue only drains its buffer.

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			hub.Push(session.NewInputMessage("session-1", "conv-1", "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked on a full queue")
	}
}
