package notifiers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/daniacca/geosim/internal/earth"
)

func sampleNotification() earth.TickNotification {
	return earth.TickNotification{
		RunID:  "run-1",
		Tick:   3,
		TimeMy: 30,
		Events: []earth.GeologicalEvent{
			{Seq: 1, Tick: 3, TimestampMy: 30, Kind: earth.Eruption, Magnitude: 2, PlateID: 1,
				Entity: earth.EntityRef{Type: earth.EntityPlate, ID: 1}},
		},
	}
}

func TestWebhookNotifier(t *testing.T) {
	notifier := NewWebhookNotifier("test-webhook", "http://localhost:9999/webhook")

	if notifier.ID() != "test-webhook" {
		t.Errorf("Expected ID 'test-webhook', got '%s'", notifier.ID())
	}
	if notifier.Type() != "webhook" {
		t.Errorf("Expected type 'webhook', got '%s'", notifier.Type())
	}
	if err := notifier.Close(); err != nil {
		t.Errorf("Close should not return error: %v", err)
	}
}

func TestWebhookNotifier_Notify(t *testing.T) {
	var received earth.TickNotification
	var gotHeader, gotContentType string
	var tickHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Run-Token")
		tickHeaders = r.Header.Clone()
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier("hook", srv.URL)
	notifier.SetHeader("X-Run-Token", "secret")

	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if gotHeader != "secret" {
		t.Errorf("Expected custom header 'secret', got '%s'", gotHeader)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected content type application/json, got '%s'", gotContentType)
	}
	if tickHeaders.Get(HeaderRunID) != "run-1" || tickHeaders.Get(HeaderTick) != "3" || tickHeaders.Get(HeaderEventCount) != "1" {
		t.Errorf("Expected tick headers run-1/3/1, got %q/%q/%q",
			tickHeaders.Get(HeaderRunID), tickHeaders.Get(HeaderTick), tickHeaders.Get(HeaderEventCount))
	}
	if received.RunID != "run-1" || received.Tick != 3 {
		t.Errorf("Expected run-1 tick 3, got %s tick %d", received.RunID, received.Tick)
	}
	if len(received.Events) != 1 || received.Events[0].Kind != earth.Eruption {
		t.Errorf("Expected one eruption event, got %+v", received.Events)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	notifier := NewWebhookNotifier("hook", srv.URL)
	err := notifier.Notify(context.Background(), sampleNotification())
	if err == nil {
		t.Fatal("Expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "tick 3") || !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected the error to name the tick and status, got %v", err)
	}
}
