// Package worldmorse is a client for the WorldMorse relay: a REST client, a
// push subscription, and a Syncer that merges both into one local view.
package worldmorse

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
	"strings"
	"time"

	"github.com/eldtechnologies/worldmorse/internal/models"
)

// DefaultURL is the relay address used when none is configured.
const DefaultURL = "http://localhost:8080"

// APIError is a non-2xx response or an {"ok":false} envelope.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("worldmorse error %d: %s", e.Status, e.Code)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// Client is a WorldMorse REST client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient creates a client. timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type envelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// doRequest performs a request and decodes a successful body into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var status envelope
	_ = json.Unmarshal(respBody, &status)
	if resp.StatusCode >= 400 || !status.OK {
		code := status.Error
		if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Code: code}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// HealthResponse is the relay health report.
type HealthResponse struct {
	OK      bool      `json:"ok"`
	TS      time.Time `json:"ts"`
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.doRequest(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates or refreshes the station for callsign.
func (c *Client) Register(ctx context.Context, callsign string) (*models.Station, error) {
	req := struct {
		Callsign string `json:"callsign"`
	}{Callsign: models.NormalizeCallsign(callsign)}

	var resp struct {
		Station *models.Station `json:"station"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/stations/register", req, &resp); err != nil {
		return nil, err
	}
	return resp.Station, nil
}

// Submission is an outgoing message.
type Submission struct {
	FromCallsign string         `json:"fromCallsign"`
	ToCallsign   *string        `json:"toCallsign"`
	Channel      string         `json:"channel"`
	Type         string         `json:"type"`
	Payload      models.Payload `json:"payload"`
}

// SubmitMessage posts a message and returns it as stored by the relay.
func (c *Client) SubmitMessage(ctx context.Context, sub Submission) (*models.Message, error) {
	sub.FromCallsign = models.NormalizeCallsign(sub.FromCallsign)
	if sub.ToCallsign != nil {
		to := models.NormalizeCallsign(*sub.ToCallsign)
		if to == "" {
			sub.ToCallsign = nil
		} else {
			sub.ToCallsign = &to
		}
	}

	var resp struct {
		Message *models.Message `json:"message"`
	}
	if err := c.doRequest(ctx, http.MethodPost, "/v1/messages", sub, &resp); err != nil {
		return nil, err
	}
	return resp.Message, nil
}

// RecentMessages returns up to limit of the newest messages on channel,
// oldest first. A limit of 0 leaves the choice to the server.
func (c *Client) RecentMessages(ctx context.Context, channel string, limit int) ([]models.Message, error) {
	q := url.Values{}
	q.Set("channel", channel)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp struct {
		Messages []models.Message `json:"messages"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/messages/recent?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// OnlineStations returns the stations currently on channel.
func (c *Client) OnlineStations(ctx context.Context, channel string) ([]models.Station, error) {
	q := url.Values{}
	q.Set("channel", channel)

	var resp struct {
		Stations []models.Station `json:"stations"`
	}
	if err := c.doRequest(ctx, http.MethodGet, "/v1/stations/online?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Stations, nil
}

// WebSocketURL builds the push subscription address for callsign on channel.
func (c *Client) WebSocketURL(callsign, channel string) (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	q := url.Values{}
	q.Set("callsign", models.NormalizeCallsign(callsign))
	q.Set("channel", channel)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
