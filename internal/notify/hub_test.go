package notify

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(serverURL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitForSubscribers(t *testing.T, h *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Subscribers() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", want, h.Subscribers())
}

func TestHub_PublishReachesSubscriber(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server.URL)
	defer conn.Close()

	waitForSubscribers(t, hub, 1)

	hub.Publish("42", "stream_created", map[string]interface{}{
		"sender": "GSENDER",
		"rate":   "100",
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	// The wire shape is {"streamId", "event", "data"}.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(msg, &raw); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	for _, key := range []string{"streamId", "event", "data"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("frame missing %q key", key)
		}
	}

	var frame Frame
	if err := json.Unmarshal(msg, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if frame.StreamID != "42" {
		t.Errorf("expected streamId 42, got %s", frame.StreamID)
	}
	if frame.Event != "stream_created" {
		t.Errorf("expected event stream_created, got %s", frame.Event)
	}
	if frame.Data["rate"] != "100" {
		t.Errorf("expected rate 100, got %v", frame.Data["rate"])
	}
}

func TestHub_FanOutToAllSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	first := dialHub(t, server.URL)
	defer first.Close()
	second := dialHub(t, server.URL)
	defer second.Close()

	waitForSubscribers(t, hub, 2)

	hub.Publish("7", "tokens_withdrawn", map[string]interface{}{"amount": "300"})

	for i, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		var frame Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("subscriber %d read: %v", i, err)
		}
		if frame.StreamID != "7" {
			t.Errorf("subscriber %d: expected streamId 7, got %s", i, frame.StreamID)
		}
	}
}

func TestHub_SlowSubscriberDropped(t *testing.T) {
	config := DefaultHubConfig()
	config.SendBuffer = 1

	hub := NewHub(&config, nil)
	defer hub.Close()

	// Register a client with no write loop draining it, so the buffer
	// stays full once a frame lands.
	c := &hubClient{send: make(chan Frame, config.SendBuffer)}
	hub.mu.Lock()
	hub.clients[c] = struct{}{}
	hub.mu.Unlock()

	hub.Publish("1", "stream_created", nil)
	if hub.Subscribers() != 1 {
		t.Fatalf("subscriber should survive while its buffer has room")
	}

	hub.Publish("1", "stream_topped_up", nil)
	if hub.Subscribers() != 0 {
		t.Fatal("full subscriber should have been dropped")
	}

	// The drop closed the send channel.
	select {
	case _, ok := <-c.send:
		if !ok {
			t.Error("expected the buffered frame before close")
		}
	default:
		t.Error("expected a buffered frame")
	}
	if _, ok := <-c.send; ok {
		t.Error("send channel should be closed after drop")
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()

	// Must not block or panic.
	hub.Publish("9", "stream_cancelled", map[string]interface{}{"amountWithdrawn": "500"})
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(nil, nil)

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dialHub(t, server.URL)
	defer conn.Close()

	waitForSubscribers(t, hub, 1)

	hub.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal closure, got %v", err)
	}

	if hub.Subscribers() != 0 {
		t.Errorf("expected 0 subscribers after close, got %d", hub.Subscribers())
	}

	// Double close should be safe.
	hub.Close()
}
