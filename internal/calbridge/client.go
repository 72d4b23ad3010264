// Package calbridge is the HTTP client for the local calendar bridge, a
// small helper that exposes the system calendar store on localhost.
package calbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrUnavailable marks failures to reach the bridge at all, as opposed to
// the bridge rejecting a request.
var ErrUnavailable = errors.New("calendar bridge unavailable")

const requestTimeout = 10 * time.Second

// backoffDelays paces retries after 5xx or transport errors: at most one
// retry, so a flapping bridge cannot multiply posts or stall the run. 4xx
// responses are never retried.
var backoffDelays = []time.Duration{500 * time.Millisecond}

// Client talks to a calendar bridge instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the bridge at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Status is the bridge's calendar-access report.
type Status struct {
	Authorized bool `json:"authorized"`
	StatusCode int  `json:"status_code"`
}

// Calendar describes one calendar in the system store.
type Calendar struct {
	ID                  string  `json:"id"`
	Title               string  `json:"title"`
	AllowsModifications bool    `json:"allows_modifications"`
	ColorHex            *string `json:"color_hex"`
}

// Event is a calendar event as the bridge reports it. Calendar carries the
// calendar title, not its ID.
type Event struct {
	Title    string `json:"title"`
	StartISO string `json:"start_iso"`
	EndISO   string `json:"end_iso"`
	ID       string `json:"id,omitempty"`
	Calendar string `json:"calendar,omitempty"`
}

// AddEvent is the payload for creating an event.
type AddEvent struct {
	Title      string `json:"title"`
	StartISO   string `json:"start_iso"`
	EndISO     string `json:"end_iso"`
	Notes      string `json:"notes,omitempty"`
	CalendarID string `json:"calendar_id,omitempty"`
}

// Status checks whether the bridge is up and authorized to touch calendars.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	if err := c.getJSON(ctx, "/status", nil, &st); err != nil {
		return Status{}, err
	}
	return st, nil
}

// Calendars lists every calendar in the store.
func (c *Client) Calendars(ctx context.Context) ([]Calendar, error) {
	var cals []Calendar
	if err := c.getJSON(ctx, "/calendars", nil, &cals); err != nil {
		return nil, err
	}
	return cals, nil
}

// Events returns the events of the next `days` days, sorted by start.
func (c *Client) Events(ctx context.Context, days int) ([]Event, error) {
	var events []Event
	q := url.Values{"days": {strconv.Itoa(days)}}
	if err := c.getJSON(ctx, "/events", q, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Add creates an event and returns it with the bridge-assigned ID. Transient
// failures are retried with backoff.
func (c *Client) Add(ctx context.Context, ev AddEvent) (Event, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return Event{}, fmt.Errorf("encoding event: %w", err)
	}

	resp, err := c.postWithRetry(ctx, "/add", nil, body)
	if err != nil {
		return Event{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Event{}, bridgeError(resp)
	}

	var created Event
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Event{}, fmt.Errorf("decoding created event: %w", err)
	}
	if created.ID == "" {
		return Event{}, errors.New("bridge did not return an event id")
	}
	return created, nil
}

// Delete removes an event by its bridge ID. A 404 or a {"deleted": false}
// reply means the event was already gone, which counts as success.
func (c *Client) Delete(ctx context.Context, eventID string) error {
	q := url.Values{"event_id": {eventID}}
	resp, err := c.postWithRetry(ctx, "/delete", q, nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK, resp.StatusCode == http.StatusNotFound:
		return nil
	default:
		return bridgeError(resp)
	}
}

// getJSON performs a GET and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, result any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return bridgeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// postWithRetry POSTs and retries on 5xx or transport errors. The caller
// owns the returned response body.
func (c *Client) postWithRetry(ctx context.Context, path string, query url.Values, body []byte) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= len(backoffDelays); attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrUnavailable, err)
		} else if resp.StatusCode >= 500 {
			lastErr = bridgeError(resp)
			_ = resp.Body.Close()
		} else {
			return resp, nil
		}

		if attempt < len(backoffDelays) {
			select {
			case <-time.After(backoffDelays[attempt]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

func bridgeError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("bridge returned status %d: %s", resp.StatusCode, string(body))
}
