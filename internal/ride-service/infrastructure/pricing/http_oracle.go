package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ride-share/internal/ride-service/domain"
)

// HTTPOracle asks the price estimation service for a fare.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
}

// NewHTTPOracle creates an oracle for the estimator at baseURL. A nil client
// means http.DefaultClient; callers bound each call with the context.
func NewHTTPOracle(baseURL string, client *http.Client) *HTTPOracle {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPOracle{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type predictRequest struct {
	Seats       int    `json:"placesDisponibles"`
	Origin      string `json:"depart"`
	Destination string `json:"destination"`
}

type predictResponse struct {
	Price   *float64 `json:"prixEstime"`
	Message string   `json:"message"`
}

func (o *HTTPOracle) Estimate(ctx context.Context, seats int, origin, destination string) (float64, error) {
	body, err := json.Marshal(predictRequest{Seats: seats, Origin: origin, Destination: destination})
	if err != nil {
		return 0, fmt.Errorf("marshal predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/predict/", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, domain.Unavailable("call price estimator", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return 0, domain.Unavailable("call price estimator", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out predictResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&out); err != nil {
		return 0, domain.Unavailable("decode price estimate", err)
	}
	if out.Price == nil {
		return 0, domain.Unavailable("decode price estimate", fmt.Errorf("response has no estimate: %s", out.Message))
	}
	return *out.Price, nil
}
