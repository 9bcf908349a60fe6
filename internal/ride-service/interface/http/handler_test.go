package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ride-share/internal/ride-service/domain"
	"ride-share/internal/ride-service/infrastructure/messaging"
	"ride-share/internal/ride-service/infrastructure/repository"
	"ride-share/internal/ride-service/service"
	"ride-share/pkg/auth"
	"ride-share/pkg/logger"
	"ride-share/pkg/websocket"

	gorilla "github.com/gorilla/websocket"
)

type testEnv struct {
	srv    *httptest.Server
	jwt    *auth.JWTManager
	hub    *websocket.Hub
	tokens map[string]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.NewNop()
	store := repository.NewMemoryRideStore()
	hub := websocket.NewHub(log)
	jwt := auth.NewJWTManager("test-secret", time.Hour)

	svc := service.NewRideService(store, nil, messaging.NewSeatFeedNotifier(hub, log), log, service.Options{})
	h := NewRideHandler(svc, hub, jwt, store, log)

	env := &testEnv{
		srv:    httptest.NewServer(h.Routes(jwt.AuthMiddleware)),
		jwt:    jwt,
		hub:    hub,
		tokens: map[string]string{},
	}
	t.Cleanup(env.srv.Close)

	for _, id := range []domain.Identity{
		{ID: "d-1", Username: "nour", Role: domain.RoleDriver},
		{ID: "p-1", Username: "yasmine", Role: domain.RolePassenger},
		{ID: "p-2", Role: domain.RolePassenger},
	} {
		tok, err := jwt.GenerateToken(id)
		if err != nil {
			t.Fatal(err)
		}
		env.tokens[id.ID] = tok
	}
	return env
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path, user string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[user])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp, out
}

func (e *testEnv) createRide(t *testing.T, seats int) RideResponse {
	t.Helper()
	resp, out := e.do(t, http.MethodPost, "/rides", "d-1", map[string]interface{}{
		"origin":          "Tunis",
		"destination":     "Monastir",
		"departure_time":  time.Now().Add(48 * time.Hour).UTC().Format(time.RFC3339),
		"available_seats": seats,
		"price":           18.5,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create ride: %d %s", resp.StatusCode, out.Message)
	}
	var ride RideResponse
	json.Unmarshal(out.Data, &ride)
	return ride
}

func TestCreateAndGetRide(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3)
	if ride.DriverName != "nour" || ride.AvailableSeats != 3 || ride.Price != 18.5 {
		t.Errorf("ride = %+v", ride)
	}

	resp, out := env.do(t, http.MethodGet, "/rides/"+ride.ID, "", nil)
	if resp.StatusCode != http.StatusOK || !out.Success {
		t.Fatalf("get: %d %s", resp.StatusCode, out.Message)
	}

	resp, out = env.do(t, http.MethodGet, "/rides/nope", "", nil)
	if resp.StatusCode != http.StatusNotFound || out.Success {
		t.Errorf("get missing: %d", resp.StatusCode)
	}
}

func TestCreateRideErrors(t *testing.T) {
	env := newTestEnv(t)
	valid := func() map[string]interface{} {
		return map[string]interface{}{
			"origin":          "Tunis",
			"destination":     "Monastir",
			"departure_time":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			"available_seats": 2,
		}
	}

	tests := []struct {
		name   string
		user   string
		body   interface{}
		status int
	}{
		{"anonymous", "", valid(), http.StatusUnauthorized},
		{"passenger", "p-1", valid(), http.StatusForbidden},
		{"malformed json", "d-1", `{"origin":`, http.StatusBadRequest},
		{"fractional seats", "d-1", func() map[string]interface{} { b := valid(); b["available_seats"] = 2.5; return b }(), http.StatusBadRequest},
		{"bad date", "d-1", func() map[string]interface{} { b := valid(); b["departure_time"] = "tomorrow"; return b }(), http.StatusBadRequest},
		{"past date", "d-1", func() map[string]interface{} {
			b := valid()
			b["departure_time"] = time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
			return b
		}(), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := env.do(t, http.MethodPost, "/rides", tt.user, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d (%s), want %d", resp.StatusCode, out.Message, tt.status)
			}
			if out.Success {
				t.Errorf("success = true on error")
			}
		})
	}
}

func TestCreateRideUsesDefaultPriceWithoutOracle(t *testing.T) {
	env := newTestEnv(t)
	resp, out := env.do(t, http.MethodPost, "/rides", "d-1", map[string]interface{}{
		"origin":          "Tunis",
		"destination":     "Kairouan",
		"departure_time":  time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		"available_seats": "2",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d %s", resp.StatusCode, out.Message)
	}
	var ride RideResponse
	json.Unmarshal(out.Data, &ride)
	if ride.Price != service.DefaultPrice {
		t.Errorf("price = %v", ride.Price)
	}
}

func TestBookingFlow(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3)
	path := "/rides/" + ride.ID + "/reservations"

	resp, out := env.do(t, http.MethodPost, path, "p-1", map[string]int{"seats": 2})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("book: %d %s", resp.StatusCode, out.Message)
	}
	var booking BookingResponse
	json.Unmarshal(out.Data, &booking)
	if booking.Ride.AvailableSeats != 1 || booking.Reservation.SeatsBooked != 2 || booking.Reservation.RiderName != "yasmine" {
		t.Errorf("booking = %+v", booking)
	}

	resp, out = env.do(t, http.MethodPost, path, "p-2", map[string]int{"seats": 2})
	if resp.StatusCode != http.StatusConflict || out.Message != "only 1 place(s) available" {
		t.Errorf("overbook: %d %q", resp.StatusCode, out.Message)
	}

	resp, out = env.do(t, http.MethodPost, path, "p-1", map[string]int{"seats": 1})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate: %d", resp.StatusCode)
	}
	var dup struct {
		Reservation ReservationResponse `json:"reservation"`
		Ride        RideResponse        `json:"ride"`
	}
	json.Unmarshal(out.Data, &dup)
	if dup.Reservation.ID != booking.Reservation.ID || dup.Ride.ID != ride.ID {
		t.Errorf("duplicate data = %s", out.Data)
	}

	resp, _ = env.do(t, http.MethodPost, path, "d-1", map[string]int{"seats": 1})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("self booking: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, "/rides/"+ride.ID, "d-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("delete reserved ride: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodGet, "/me/reservations", "p-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("my reservations: %d", resp.StatusCode)
	}

	resp, _ = env.do(t, http.MethodDelete, path+"/"+booking.Reservation.ID, "p-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign cancel: %d", resp.StatusCode)
	}
	resp, out = env.do(t, http.MethodDelete, path+"/"+booking.Reservation.ID, "p-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel: %d %s", resp.StatusCode, out.Message)
	}
	var after RideResponse
	json.Unmarshal(out.Data, &after)
	if after.AvailableSeats != 3 || after.ReservedSeats != 0 {
		t.Errorf("after cancel = %d/%d", after.AvailableSeats, after.ReservedSeats)
	}

	resp, _ = env.do(t, http.MethodDelete, "/rides/"+ride.ID, "d-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: %d", resp.StatusCode)
	}
}

func TestUpdateRide(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3)
	path := "/rides/" + ride.ID

	resp, _ := env.do(t, http.MethodPatch, path, "p-1", map[string]string{"description": "x"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non owner: %d", resp.StatusCode)
	}

	resp, out := env.do(t, http.MethodPatch, path, "d-1", map[string]interface{}{"available_seats": 5})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch seats: %d %s", resp.StatusCode, out.Message)
	}

	env.do(t, http.MethodPost, path+"/reservations", "p-1", map[string]int{"seats": 1})

	resp, _ = env.do(t, http.MethodPut, path, "d-1", map[string]interface{}{"available_seats": 2})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("patch reserved seats: %d", resp.StatusCode)
	}
	resp, out = env.do(t, http.MethodPatch, path, "d-1", map[string]interface{}{"description": "two bags max"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("patch description: %d", resp.StatusCode)
	}
	var got RideResponse
	json.Unmarshal(out.Data, &got)
	if got.Description != "two bags max" || got.AvailableSeats != 4 {
		t.Errorf("ride = %+v", got)
	}
}

func TestListRidesQuery(t *testing.T) {
	env := newTestEnv(t)
	env.createRide(t, 3)

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 1},
		{"?origin=tun", http.StatusOK, 1},
		{"?destination=sfax", http.StatusOK, 0},
		{"?min_seats=4", http.StatusOK, 0},
		{"?max_price=20", http.StatusOK, 1},
		{"?date=" + time.Now().Add(48*time.Hour).UTC().Format("2006-01-02"), http.StatusOK, 1},
		{"?min_seats=abc", http.StatusBadRequest, 0},
		{"?date=13/01/2026", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		resp, out := env.do(t, http.MethodGet, "/rides"+tt.query, "", nil)
		if resp.StatusCode != tt.status {
			t.Errorf("%q: status = %d, want %d", tt.query, resp.StatusCode, tt.status)
			continue
		}
		if tt.status != http.StatusOK {
			continue
		}
		var rides []RideResponse
		json.Unmarshal(out.Data, &rides)
		if len(rides) != tt.count {
			t.Errorf("%q: %d rides, want %d", tt.query, len(rides), tt.count)
		}
	}
}

func TestRequestIDAndHealth(t *testing.T) {
	env := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, env.srv.URL+"/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Request-ID") != "req-123" {
		t.Errorf("health: %d, request id %q", resp.StatusCode, resp.Header.Get("X-Request-ID"))
	}

	resp, _ = env.do(t, http.MethodGet, "/rides", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("no generated request id")
	}
}

func TestMapErrorToStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.InvalidArgumentf("x"), http.StatusBadRequest},
		{domain.Unauthenticatedf("x"), http.StatusUnauthorized},
		{domain.Forbiddenf("x"), http.StatusForbidden},
		{domain.NotFoundf("x"), http.StatusNotFound},
		{domain.Conflictf("x"), http.StatusConflict},
		{&domain.BookingConflictError{}, http.StatusConflict},
		{domain.Unavailable("db", errors.New("down")), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := mapErrorToStatusCode(tt.err); got != tt.want {
			t.Errorf("mapErrorToStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSeatFeed(t *testing.T) {
	env := newTestEnv(t)
	ride := env.createRide(t, 3)

	resp, _ := env.do(t, http.MethodGet, "/ws/rides/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("feed for missing ride: %d", resp.StatusCode)
	}

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/rides/" + ride.ID
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"type": "auth", "message": "Bearer " + env.tokens["p-2"]}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap messaging.SeatUpdate
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snap.Type != "SNAPSHOT" || snap.AvailableSeats != 3 {
		t.Errorf("snapshot = %+v", snap)
	}

	env.do(t, http.MethodPost, "/rides/"+ride.ID+"/reservations", "p-1", map[string]int{"seats": 2})

	var update messaging.SeatUpdate
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("read update: %v", err)
	}
	want := messaging.SeatUpdate{Type: domain.EventReservationCreated, RideID: ride.ID, AvailableSeats: 1, ReservedSeats: 2}
	if update != want {
		t.Errorf("update = %+v, want %+v", update, want)
	}
}
