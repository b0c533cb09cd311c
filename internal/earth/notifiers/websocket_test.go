package notifiers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/daniacca/geosim/internal/earth"
	"github.com/gorilla/websocket"
)

func TestNewWebSocketNotifier(t *testing.T) {
	notifier := NewWebSocketNotifier("test-ws")
	defer notifier.Close()

	if notifier.ID() != "test-ws" {
		t.Errorf("Expected ID 'test-ws', got '%s'", notifier.ID())
	}
	if notifier.Type() != "websocket" {
		t.Errorf("Expected type 'websocket', got '%s'", notifier.Type())
	}

	upgrader := notifier.GetUpgrader()
	if upgrader.ReadBufferSize == 0 || upgrader.WriteBufferSize == 0 {
		t.Error("Expected non-zero upgrader buffer sizes")
	}
}

func TestWebSocketNotifier_NotifyWithoutClients(t *testing.T) {
	notifier := NewWebSocketNotifier("test")
	defer notifier.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := notifier.Notify(ctx, sampleNotification()); err != nil {
		t.Errorf("Expected no error with no clients, got %v", err)
	}
}

func TestWebSocketNotifier_Broadcast(t *testing.T) {
	notifier := NewWebSocketNotifier("test")
	defer notifier.Close()

	srv := httptest.NewServer(notifier)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for notifier.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var got earth.TickNotification
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("Invalid JSON payload: %v", err)
	}
	if got.RunID != "run-1" || got.TimeMy != 30 {
		t.Errorf("Expected run-1 at 30 My, got %s at %v", got.RunID, got.TimeMy)
	}
}

func TestWebSocketNotifier_CloseTwice(t *testing.T) {
	notifier := NewWebSocketNotifier("test")
	if err := notifier.Close(); err != nil {
		t.Errorf("Expected no error on close, got %v", err)
	}
	if err := notifier.Close(); err != nil {
		t.Errorf("Expected no error on second close, got %v", err)
	}
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Error("Expected error notifying a closed notifier")
	}
}
