// Package upstream talks to the telemetry and answering backend.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fleet-ops-dashboard/internal/models"
)

// Client calls the fleet backend endpoints
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the backend address
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchFleet returns the raw current fleet records. Any transport, status or
// decoding problem is a *models.TransientFetchError.
func (c *Client) FetchFleet(ctx context.Context) ([]models.VehicleRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/fleet", nil)
	if err != nil {
		return nil, &models.TransientFetchError{Source: "/api/fleet", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &models.TransientFetchError{Source: "/api/fleet", Status: resp.StatusCode}
	}

	var records []models.VehicleRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, &models.TransientFetchError{Source: "/api/fleet", Err: fmt.Errorf("decode: %w", err)}
	}
	return records, nil
}

type rankingsResponse struct {
	Data []models.RankingEntry `json:"data"`
}

// FetchRankings returns the server-side emission ranking
func (c *Client) FetchRankings(ctx context.Context) ([]models.RankingEntry, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/fleet-rankings", nil)
	if err != nil {
		return nil, &models.TransientFetchError{Source: "/api/fleet-rankings", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.TransientFetchError{Source: "/api/fleet-rankings", Status: resp.StatusCode}
	}

	var out rankingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &models.TransientFetchError{Source: "/api/fleet-rankings", Err: fmt.Errorf("decode: %w", err)}
	}
	if out.Data == nil {
		out.Data = []models.RankingEntry{}
	}
	return out.Data, nil
}

// Query asks the answering service a question. Failures are returned as
// *models.QueryServiceError and are never retried.
func (c *Client) Query(ctx context.Context, question string) (*models.QueryResult, error) {
	body, err := json.Marshal(models.QueryRequest{Question: question})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/query", body)
	if err != nil {
		return nil, &models.QueryServiceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &models.QueryServiceError{Status: resp.StatusCode}
	}

	var result models.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &models.QueryServiceError{Err: fmt.Errorf("decode: %w", err)}
	}
	return &result, nil
}

// Spike asks the backend to inject a synthetic anomaly for a vehicle. The
// response body is ignored.
func (c *Client) Spike(ctx context.Context, vehicleID string) error {
	body, err := json.Marshal(models.SpikeRequest{VehicleID: vehicleID})
	if err != nil {
		return err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/spike", body)
	if err != nil {
		return fmt.Errorf("spike %s: %w", vehicleID, err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.client.Do(req)
}
