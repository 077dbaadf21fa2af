package sdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"signwise/core"
	"signwise/realtime"
)

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the streak HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithAuthToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAPIKey adds an X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-API-Key", key)
		}
	}
}

// WithHeader sets an arbitrary header applied to HTTP and WS calls.
func WithHeader(k, v string) Option {
	return func(c *Client) {
		if k != "" {
			c.headers.Set(k, v)
		}
	}
}

// Learn records one learned sign for the device.
func (c *Client) Learn(ctx context.Context, device core.DeviceID) (DeviceResponse, error) {
	return c.device(ctx, http.MethodPost, device, "/learn")
}

// Check runs the daily status check for the device.
func (c *Client) Check(ctx context.Context, device core.DeviceID) (DeviceResponse, error) {
	return c.device(ctx, http.MethodPost, device, "/check")
}

// Get fetches the device's current snapshot.
func (c *Client) Get(ctx context.Context, device core.DeviceID) (DeviceResponse, error) {
	return c.device(ctx, http.MethodGet, device, "")
}

// Reset erases the device's streak state.
func (c *Client) Reset(ctx context.Context, device core.DeviceID) (DeviceResponse, error) {
	return c.device(ctx, http.MethodDelete, device, "")
}

func (c *Client) device(ctx context.Context, method string, device core.DeviceID, suffix string) (DeviceResponse, error) {
	if strings.TrimSpace(string(device)) == "" {
		return DeviceResponse{}, ErrEmptyDeviceID
	}
	var out DeviceResponse
	u := fmt.Sprintf("%s/devices/%s%s", c.baseURL, url.PathEscape(string(device)), suffix)
	if err := c.do(ctx, method, u, &out); err != nil {
		return DeviceResponse{}, err
	}
	return out, nil
}

// Leaderboard returns the top devices by longest streak. limit <= 0 uses the server default.
func (c *Client) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	u := c.baseURL + "/leaderboard"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}
	var lb Leaderboard
	if err := c.do(ctx, http.MethodGet, u, &lb); err != nil {
		return Leaderboard{}, err
	}
	return lb, nil
}

// Stats returns aggregate activity for day, or for the server's today when day is zero.
func (c *Client) Stats(ctx context.Context, day core.Day) (Stats, error) {
	u := c.baseURL + "/stats"
	if !day.IsZero() {
		u += "?day=" + day.String()
	}
	var st Stats
	if err := c.do(ctx, http.MethodGet, u, &st); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Health calls /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var hs HealthStatus
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/healthz", &hs); err != nil {
		return HealthStatus{}, err
	}
	return hs, nil
}

func (c *Client) do(ctx context.Context, method, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return err
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decodeJSON(resp, target)
}

// SubscribeEvents connects to the WebSocket stream and emits hub messages.
// A non-empty device restricts the stream to that device.
// The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeEvents(ctx context.Context, device core.DeviceID) (<-chan realtime.Message, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	target := c.wsURL
	if device != "" {
		target += "?device=" + url.QueryEscape(string(device))
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, target, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan realtime.Message, 32)
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case out <- msg:
			default:
				// drop if consumer is slow
			}
		}
	}()
	return out, nil
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		// leave as-is for custom schemes
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
