package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ride-share/internal/ride-service/domain"
)

func TestHTTPOracleEstimate(t *testing.T) {
	var got predictRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/predict/" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"prixEstime": 23.5, "message": "ok"}`))
	}))
	defer srv.Close()

	price, err := NewHTTPOracle(srv.URL+"/", nil).Estimate(context.Background(), 3, "Tunis", "Sousse")
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if price != 23.5 {
		t.Errorf("price = %v, want 23.5", price)
	}
	if got.Seats != 3 || got.Origin != "Tunis" || got.Destination != "Sousse" {
		t.Errorf("request body = %+v", got)
	}
}

func TestHTTPOracleFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}},
		{"missing estimate", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"message": "model not loaded"}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewHTTPOracle(srv.URL, nil).Estimate(context.Background(), 1, "A", "B")
			if !errors.Is(err, domain.ErrUnavailable) {
				t.Errorf("err = %v, want ErrUnavailable", err)
			}
		})
	}
}

func TestHTTPOracleHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := NewHTTPOracle(srv.URL, nil).Estimate(ctx, 1, "A", "B"); err == nil {
		t.Fatal("expected an error after the deadline")
	}
}

func TestSeatFareTable(t *testing.T) {
	table := NewSeatFareTableWithRates(5, 2, 10)
	tests := []struct {
		seats int
		want  float64
	}{
		{1, 7},
		{2, 9},
		{0, 7},
		{10, 10}, // capped
	}
	for _, tt := range tests {
		got, err := table.Estimate(context.Background(), tt.seats, "", "")
		if err != nil || got != tt.want {
			t.Errorf("Estimate(%d) = %v, %v; want %v", tt.seats, got, err, tt.want)
		}
	}

	if p, _ := NewSeatFareTable().Estimate(context.Background(), 4, "A", "B"); p <= 0 {
		t.Errorf("default table price = %v", p)
	}
}
