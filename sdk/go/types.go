package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"signwise/analytics"
	"signwise/core"
	"signwise/engine"
)

// DeviceResponse mirrors the body returned by every device route.
type DeviceResponse struct {
	Snapshot engine.Snapshot `json:"snapshot"`
	Events   []core.Event    `json:"events,omitempty"`
	Warning  string          `json:"warning,omitempty"`
}

// LeaderboardEntry is one ranked device.
type LeaderboardEntry struct {
	Device  core.DeviceID `json:"device"`
	Longest int           `json:"longest_streak"`
	Current int           `json:"current_streak"`
	Rank    int           `json:"rank,omitempty"`
}

// Leaderboard is the /leaderboard response.
type Leaderboard struct {
	Entries []LeaderboardEntry `json:"entries"`
	Total   int                `json:"total"`
}

// Stats is the /stats response.
type Stats struct {
	analytics.DayStats
	WeeklyLearners int                      `json:"weekly_learners"`
	Totals         map[core.EventKind]int64 `json:"totals"`
	BestStreak     int                      `json:"best_streak"`
	ActiveDays     []core.Day               `json:"active_days"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string         `json:"status"`
	Checks map[string]any `json:"checks"`
}

// APIError is returned for non-2xx responses that carry an error body.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("request failed: status %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		_ = json.Unmarshal(body, apiErr)
		return apiErr
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyDeviceID is returned when the device id is empty.
var ErrEmptyDeviceID = errors.New("device id is required")
