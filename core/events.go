package core

// EventKind enumerates notification-worthy events.
type EventKind string

const (
	EventStreakIncrease EventKind = "streak_increase"
	EventStreakBroken   EventKind = "streak_broken"
	EventNewRecord      EventKind = "new_record"
	EventDailyReminder  EventKind = "daily_reminder"
	EventMotivational   EventKind = "motivational"
)

// AllEventKinds lists every kind in emission order.
var AllEventKinds = []EventKind{
	EventStreakIncrease,
	EventStreakBroken,
	EventNewRecord,
	EventDailyReminder,
	EventMotivational,
}

// Event represents an immutable streak event.
type Event struct {
	Kind EventKind `json:"kind"`
	// Streak is the value the event is about: the new streak for an
	// increase, the lost streak for a break, the longest streak for a record.
	Streak int      `json:"streak"`
	Day    Day      `json:"day"`
	Device DeviceID `json:"device,omitempty"`
}

func NewStreakIncrease(day Day, streak int) Event {
	return Event{Kind: EventStreakIncrease, Day: day, Streak: streak}
}

func NewStreakBroken(day Day, previous int) Event {
	return Event{Kind: EventStreakBroken, Day: day, Streak: previous}
}

func NewRecord(day Day, longest int) Event {
	return Event{Kind: EventNewRecord, Day: day, Streak: longest}
}

func NewDailyReminder(day Day, streak int) Event {
	return Event{Kind: EventDailyReminder, Day: day, Streak: streak}
}

func NewMotivational(day Day, streak int) Event {
	return Event{Kind: EventMotivational, Day: day, Streak: streak}
}

// ForDevice returns a copy of e tagged with device.
func (e Event) ForDevice(device DeviceID) Event {
	e.Device = device
	return e
}
