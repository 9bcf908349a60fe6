package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/pkg/logger"

	"github.com/gorilla/websocket"
)

type staticVerifier map[string]domain.Identity

func (v staticVerifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	id, ok := v[strings.TrimPrefix(credential, "Bearer ")]
	if !ok {
		return domain.Identity{}, domain.Unauthenticatedf("invalid token")
	}
	return id, nil
}

func newTestServer(t *testing.T, hub *Hub, subscribed chan<- *Connection) *httptest.Server {
	t.Helper()
	verifier := staticVerifier{"good": {ID: "p-1", Role: domain.RolePassenger}}

	h := NewHandler(logger.NewNop(), verifier,
		func(r *http.Request) string { return r.PathValue("ride_id") },
		func(conn *Connection) {
			hub.Subscribe(conn)
			subscribed <- conn
			conn.ReadPump(nil, func() { hub.Unsubscribe(conn) })
		},
	)
	mux := http.NewServeMux()
	mux.Handle("GET /ws/rides/{ride_id}", h)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHubBroadcastsToTopicSubscribers(t *testing.T) {
	hub := NewHub(logger.NewNop())
	subscribed := make(chan *Connection, 1)
	srv := newTestServer(t, hub, subscribed)

	client := dial(t, srv, "/ws/rides/ride-1")
	if err := client.WriteJSON(authRequest{Type: "auth", Token: "Bearer good"}); err != nil {
		t.Fatal(err)
	}

	select {
	case conn := <-subscribed:
		if conn.Topic != "ride-1" || conn.Identity.ID != "p-1" {
			t.Fatalf("conn = %s/%s", conn.Topic, conn.Identity.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("connection never subscribed")
	}

	if n := hub.Broadcast("ride-2", map[string]int{"available_seats": 0}); n != 0 {
		t.Errorf("other topic reached %d connections", n)
	}
	if n := hub.Broadcast("ride-1", map[string]int{"available_seats": 2}); n != 1 {
		t.Fatalf("Broadcast reached %d connections, want 1", n)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]int
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["available_seats"] != 2 {
		t.Errorf("message = %v", got)
	}
}

func TestHandlerRejectsBadToken(t *testing.T) {
	hub := NewHub(logger.NewNop())
	srv := newTestServer(t, hub, make(chan *Connection, 1))

	client := dial(t, srv, "/ws/rides/ride-1")
	client.WriteJSON(authRequest{Type: "auth", Token: "bad"})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var resp wsErrorResponse
	if err := client.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	if resp.Type != "error" {
		t.Errorf("response = %+v", resp)
	}
	if hub.Count("ride-1") != 0 {
		t.Errorf("unauthenticated connection subscribed")
	}
}

func TestUnsubscribeClosesConnection(t *testing.T) {
	hub := NewHub(logger.NewNop())
	subscribed := make(chan *Connection, 1)
	srv := newTestServer(t, hub, subscribed)

	client := dial(t, srv, "/ws/rides/ride-1")
	client.WriteJSON(authRequest{Type: "auth", Token: "good"})
	conn := <-subscribed

	hub.Unsubscribe(conn)
	if hub.Count("ride-1") != 0 {
		t.Errorf("Count = %d after unsubscribe", hub.Count("ride-1"))
	}
	if err := conn.WriteJSON("late"); err != ErrConnectionClosed {
		t.Errorf("WriteJSON after close = %v", err)
	}
}
