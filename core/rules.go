package core

// IsActiveOn reports whether the streak is still alive on today: the last
// activity was today or yesterday.
func (s State) IsActiveOn(today Day) bool {
	if !s.HasActivity() {
		return false
	}
	gap := DaysBetween(s.LastActivity, today)
	return gap == 0 || gap == 1
}

// IsStale reports whether more than one full day passed since the last
// activity. IsActiveOn and IsStale share DaysBetween so they cannot disagree
// for any non-future activity day.
func (s State) IsStale(today Day) bool {
	return s.HasActivity() && DaysBetween(s.LastActivity, today) > 1
}

// Rollover resets the daily counter when today is a new counting day.
// The bool reports whether anything changed.
func (s State) Rollover(today Day) (State, bool) {
	if s.CountedDay == today {
		return s, false
	}
	s.SignsToday = 0
	s.CountedDay = today
	return s, true
}

// CheckStatus zeroes a streak whose last activity is more than a day old.
// It never emits events.
func (s State) CheckStatus(today Day) (State, bool) {
	if s.IsStale(today) && s.CurrentStreak > 0 {
		s.CurrentStreak = 0
		return s, true
	}
	return s, false
}

// RecordLearning applies one learning event on today and returns the new
// state along with the events it produced, in emission order.
func (s State) RecordLearning(today Day) (State, []Event) {
	if s.HasActivity() && s.LastActivity == today {
		s.SignsToday = s.SignsLearnedOn(today) + 1
		s.CountedDay = today
		return s, nil
	}

	var events []Event
	if s.HasActivity() && s.LastActivity == today.AddDays(-1) {
		s.CurrentStreak++
		events = append(events, NewStreakIncrease(today, s.CurrentStreak))
	} else {
		if s.CurrentStreak > 0 {
			events = append(events, NewStreakBroken(today, s.CurrentStreak))
		}
		s.CurrentStreak = 1
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
		events = append(events, NewRecord(today, s.LongestStreak))
	}

	s.LastActivity = today
	s.SignsToday = 1
	s.CountedDay = today
	return s, events
}
