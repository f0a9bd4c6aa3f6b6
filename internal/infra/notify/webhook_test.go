package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode failed: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	if err := n.Notify(context.Background(), "main", "hedged SELL 10 BTCUSDT"); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if got.Account != "main" || got.Text != "hedged SELL 10 BTCUSDT" {
		t.Errorf("Unexpected payload: %+v", got)
	}
	if !got.Timestamp.Equal(n.now()) {
		t.Errorf("Expected timestamp %v, got %v", n.now(), got.Timestamp)
	}
}

func TestWebhookNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Notify(context.Background(), "main", "x"); err == nil {
		t.Error("Expected error for 502 response")
	}
}

type failing struct{ err error }

func (f failing) Notify(context.Context, string, string) error { return f.err }

func TestMulti(t *testing.T) {
	boom := errors.New("boom")
	m := Multi{NewLogNotifier(nil), failing{boom}}

	if err := m.Notify(context.Background(), "main", "x"); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	if err := (Multi{NewLogNotifier(nil)}).Notify(context.Background(), "main", "x"); err != nil {
		t.Errorf("Expected nil, got %v", err)
	}
}
