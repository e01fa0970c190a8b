package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1", 0)
	ts := httptest.NewServer(s.srv.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthIncludesStatusSnapshot(t *testing.T) {
	s, ts := newTestServer(t)
	s.SetStatusFunc(func() map[string]any {
		return map[string]any{"pairs": 3, "sessions_running": 1}
	})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if body["pairs"] != float64(3) {
		t.Errorf("pairs = %v, want 3", body["pairs"])
	}
}

func TestReadyFlipsWithSetReady(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("get /ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("before ready: status = %d, want 503", resp.StatusCode)
	}

	s.SetReady(true)
	resp, err = http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("get /ready: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("after ready: status = %d, want 200", resp.StatusCode)
	}
}

func TestEventsFeedReceivesPublished(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Wait for the server side to register the client before publishing.
	waitForClients(t, s, 1)

	s.Publish(map[string]string{"outcome": "delivered", "pair": "gold"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["outcome"] != "delivered" || got["pair"] != "gold" {
		t.Errorf("got %v", got)
	}
}

func waitForClients(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s.mu.Lock()
		n := len(s.clients)
		s.mu.Unlock()
		if n == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("client count never reached %d", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStopClosesClientChannels(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, s, 1)

	s.mu.Lock()
	var ch chan []byte
	for _, c := range s.clients {
		ch = c
	}
	s.mu.Unlock()

	s.Stop(context.Background())

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got a message")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("client channel left open after Stop")
	}
	waitForClients(t, s, 0)
}

func TestClientDisconnectUnregisters(t *testing.T) {
	s, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, s, 1)

	conn.Close()
	waitForClients(t, s, 0)

	// A publish after disconnect must not panic or block.
	s.Publish(map[string]string{"outcome": "delivered"})
}
