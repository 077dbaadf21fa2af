package analytics

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"signwise/core"
	"signwise/engine"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// DayStats summarizes one calendar day.
type DayStats struct {
	Day core.Day `json:"day"`
	// Learners counts devices that learned at least one sign.
	Learners int `json:"learners"`
	// Signs sums the per-device daily counters.
	Signs  int                      `json:"signs"`
	Events map[core.EventKind]int64 `json:"events"`
}

// Metrics tracks learners per day and week and event counts per day. Events
// arrive through OnEvent; learning activity arrives through Observe because
// not every learning day produces an event.
type Metrics struct {
	mu sync.RWMutex

	signs       map[core.Day]map[core.DeviceID]int
	weekly      map[string]map[core.DeviceID]struct{}
	eventsByDay map[core.Day]map[core.EventKind]int64
	totals      map[core.EventKind]int64
	bestStreak  int
}

func NewMetrics() *Metrics {
	return &Metrics{
		signs:       make(map[core.Day]map[core.DeviceID]int),
		weekly:      make(map[string]map[core.DeviceID]struct{}),
		eventsByDay: make(map[core.Day]map[core.EventKind]int64),
		totals:      make(map[core.EventKind]int64),
	}
}

func (m *Metrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind := m.eventsByDay[e.Day]
	if byKind == nil {
		byKind = make(map[core.EventKind]int64)
		m.eventsByDay[e.Day] = byKind
	}
	byKind[e.Kind]++
	m.totals[e.Kind]++
	if e.Kind == core.EventNewRecord && e.Streak > m.bestStreak {
		m.bestStreak = e.Streak
	}
}

// Observe records the daily counter carried by a registry snapshot.
// It satisfies engine.Observer.
func (m *Metrics) Observe(_ context.Context, snap engine.Snapshot) {
	if snap.SignsToday == 0 || snap.Device == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	perDevice := m.signs[snap.Today]
	if perDevice == nil {
		perDevice = make(map[core.DeviceID]int)
		m.signs[snap.Today] = perDevice
	}
	if snap.SignsToday > perDevice[snap.Device] {
		perDevice[snap.Device] = snap.SignsToday
	}
	week := getWeekKey(snap.Today.Time())
	if m.weekly[week] == nil {
		m.weekly[week] = make(map[core.DeviceID]struct{})
	}
	m.weekly[week][snap.Device] = struct{}{}
}

// Day returns the summary for day.
func (m *Metrics) Day(day core.Day) DayStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := DayStats{Day: day, Events: make(map[core.EventKind]int64)}
	for _, n := range m.signs[day] {
		out.Learners++
		out.Signs += n
	}
	for k, v := range m.eventsByDay[day] {
		out.Events[k] = v
	}
	return out
}

// WeeklyLearners counts distinct learners in the ISO week containing day.
func (m *Metrics) WeeklyLearners(day core.Day) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.weekly[getWeekKey(day.Time())])
}

// Totals returns all-time event counts.
func (m *Metrics) Totals() map[core.EventKind]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[core.EventKind]int64, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out
}

// BestStreak is the highest record announced so far.
func (m *Metrics) BestStreak() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.bestStreak
}

// ActiveDays lists days with any learner, oldest first.
func (m *Metrics) ActiveDays() []core.Day {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.Day, 0, len(m.signs))
	for d := range m.signs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Helper functions
func getWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
