package core

import (
	"errors"
	"strings"
)

// DeviceID identifies one installation of the app. Streak state is kept per
// device.
type DeviceID string

// State is an immutable snapshot of a device's streak. Transitions return a
// new value and never modify the receiver.
type State struct {
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
	// LastActivity is the most recent day a learning event was recorded.
	// Zero when nothing was ever recorded.
	LastActivity Day `json:"last_activity"`
	// SignsToday counts events recorded on CountedDay.
	SignsToday int `json:"signs_today"`
	CountedDay Day `json:"counted_day"`
}

// SignsLearnedOn returns the daily counter as seen on day. A counter kept for
// any other day reads as zero.
func (s State) SignsLearnedOn(day Day) int {
	if s.CountedDay != day {
		return 0
	}
	return s.SignsToday
}

// HasActivity reports whether a learning event was ever recorded.
func (s State) HasActivity() bool { return !s.LastActivity.IsZero() }

// Normalize repairs values that cannot be produced by the transitions:
// negatives are clamped and the longest streak is raised to the current one.
func (s State) Normalize() State {
	if s.CurrentStreak < 0 {
		s.CurrentStreak = 0
	}
	if s.LongestStreak < 0 {
		s.LongestStreak = 0
	}
	if s.SignsToday < 0 {
		s.SignsToday = 0
	}
	if !s.HasActivity() {
		s.CurrentStreak = 0
	}
	if s.LongestStreak < s.CurrentStreak {
		s.LongestStreak = s.CurrentStreak
	}
	return s
}

// NormalizeDeviceID trims and lowercases device identifiers.
func NormalizeDeviceID(id DeviceID) (DeviceID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty device id")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' || r == '.' {
			continue
		}
		return "", errors.New("invalid device id")
	}
	return DeviceID(strings.ToLower(s)), nil
}
