// Package notify turns streak events into user-facing notifications and
// delivers them to sinks.
package notify

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"signwise/core"
)

// Notification is a rendered, deliverable message.
type Notification struct {
	ID     string         `json:"id"`
	Kind   core.EventKind `json:"kind"`
	Device core.DeviceID  `json:"device,omitempty"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	// Badge is the number shown on the app icon.
	Badge int      `json:"badge"`
	Day   core.Day `json:"day"`
}

type message struct{ title, body string }

var motivational = []message{
	{"💪 One more day!", "You can do it!"},
	{"🌟 Keep shining!", "Learn a sign today too"},
	{"📚 Knowledge is power!", "Continue learning"},
	{"✨ Almost there!", "Few more signs left"},
}

// Render renders ev, picking a random motivational message when needed.
func Render(ev core.Event) Notification { return RenderWith(ev, rand.IntN) }

// RenderWith renders ev with pick choosing among n motivational messages.
func RenderWith(ev core.Event, pick func(n int) int) Notification {
	n := Notification{
		ID:     uuid.NewString(),
		Kind:   ev.Kind,
		Device: ev.Device,
		Badge:  ev.Streak,
		Day:    ev.Day,
	}
	switch ev.Kind {
	case core.EventStreakIncrease:
		n.Title = "🎉 +1 STREAK!"
		n.Body = fmt.Sprintf("%d days in a row – keep it up!", ev.Streak)
	case core.EventStreakBroken:
		n.Title = "😢 Streak Broken!"
		n.Body = "Start again today. Learn one sign!"
	case core.EventNewRecord:
		n.Title = "🏆 NEW RECORD!"
		n.Body = fmt.Sprintf("%d day streak – your personal best!", ev.Streak)
	case core.EventDailyReminder:
		n.Title = "⏰ Daily Reminder"
		n.Body = "One sign a day – 5 minutes is enough!"
	case core.EventMotivational:
		m := message{"💪 Keep Going!", "Your streak is on fire!"}
		if i := pick(len(motivational)); i >= 0 && i < len(motivational) {
			m = motivational[i]
		}
		n.Title, n.Body = m.title, m.body
	default:
		n.Title = string(ev.Kind)
	}
	return n
}
