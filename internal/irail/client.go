// Package irail is a small client for the iRail public transit API.
package irail

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/irail-csv/pipeline/internal/config"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// StatusError is returned when the API answers with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("iRail returned %d for %s", e.StatusCode, e.URL)
	}
	return fmt.Sprintf("iRail returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client issues one synchronous GET per call against the iRail API.
type Client struct {
	baseURL   string
	userAgent string
	lang      string
	client    *http.Client
}

// NewClient creates a client using the base URL, timeout, user agent and
// language from cfg.
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.APIBaseURL, "/"),
		userAgent: cfg.UserAgent,
		lang:      cfg.Language,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Liveboard fetches the upcoming departures of a station.
func (c *Client) Liveboard(ctx context.Context, station string) (*Liveboard, error) {
	var board Liveboard
	params := url.Values{"station": {station}}
	if err := c.get(ctx, "liveboard", params, &board); err != nil {
		return nil, fmt.Errorf("liveboard %s: %w", station, err)
	}
	return &board, nil
}

// Connections fetches itineraries between two stations.
func (c *Client) Connections(ctx context.Context, from, to string) (*Connections, error) {
	var conns Connections
	params := url.Values{"from": {from}, "to": {to}}
	if err := c.get(ctx, "connections", params, &conns); err != nil {
		return nil, fmt.Errorf("connections %s -> %s: %w", from, to, err)
	}
	return &conns, nil
}

// Vehicle fetches the stop list of a train.
func (c *Client) Vehicle(ctx context.Context, id string) (*Vehicle, error) {
	var vehicle Vehicle
	params := url.Values{"id": {id}}
	if err := c.get(ctx, "vehicle", params, &vehicle); err != nil {
		return nil, fmt.Errorf("vehicle %s: %w", id, err)
	}
	return &vehicle, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out any) error {
	params.Set("format", "json")
	if c.lang != "" {
		params.Set("lang", c.lang)
	}
	reqURL := fmt.Sprintf("%s/%s/?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			URL:        reqURL,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return nil
}
