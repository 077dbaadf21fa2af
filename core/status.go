package core

import "fmt"

// Status is the user-facing summary derived from a State.
type Status struct {
	Emoji   string `json:"emoji"`
	Message string `json:"message"`
}

// StatusOn derives the status table for today. First matching row wins.
func (s State) StatusOn(today Day) Status {
	n := s.CurrentStreak
	switch {
	case !s.IsActiveOn(today) && n > 0:
		return Status{Emoji: "😢", Message: "Your streak slipped.\nLearn one sign today to restart!"}
	case n == 0:
		return Status{Emoji: "⏳", Message: "Time to learn\nyour first sign today!"}
	case n >= 7:
		return Status{Emoji: "🔥", Message: "You learn every day.\nBrilliant!"}
	case n >= 5:
		return Status{Emoji: "🎉", Message: fmt.Sprintf("%d days in a row –\nkeep it up!", n)}
	case n >= 3:
		return Status{Emoji: "🎯", Message: fmt.Sprintf("Just one more day!\n%d days done!", n)}
	case n == 1:
		return Status{Emoji: "🌟", Message: "Day one has started!\nCome back tomorrow for 2!"}
	default:
		return Status{Emoji: "💪", Message: "One sign a day –\n5 minutes is enough!"}
	}
}

// Milestones are the streak lengths with a dedicated message.
var Milestones = []int{0, 1, 3, 7, 14, 30, 60, 100}

// milestoneLadder is what DaysUntilNextMilestone counts towards.
var milestoneLadder = []int{3, 7, 14, 30, 60, 100}

var milestoneMessages = map[int]string{
	0:   "🌟 Start today!",
	1:   "🎯 1 day complete!",
	3:   "🎉 3 day celebration!",
	7:   "🔥 A full week!",
	14:  "🏆 2 weeks done!",
	30:  "🌟 1 month complete!",
	60:  "💎 2 months of dedication!",
	100: "👑 100 days legend!",
}

// MilestoneMessage returns the canned message for an exact milestone value,
// or a generic one for anything else.
func MilestoneMessage(streak int) string {
	if msg, ok := milestoneMessages[streak]; ok {
		return msg
	}
	return "💪 Keep going!"
}

// DaysUntilNextMilestone returns the distance to the smallest milestone
// strictly above streak. Past the last milestone it returns 1.
func DaysUntilNextMilestone(streak int) int {
	for _, m := range milestoneLadder {
		if streak < m {
			return m - streak
		}
	}
	return 1
}
