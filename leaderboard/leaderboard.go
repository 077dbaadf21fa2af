package leaderboard

import (
	"context"

	"signwise/core"
	"signwise/engine"
)

// Entry is a device's position on the board.
type Entry struct {
	Device  core.DeviceID `json:"device"`
	Longest int           `json:"longest_streak"`
	Current int           `json:"current_streak"`
	Rank    int           `json:"rank,omitempty"`
}

// Board ranks devices by longest streak, then current streak.
type Board interface {
	Update(device core.DeviceID, longest, current int)
	Remove(device core.DeviceID)
	TopN(n int) []Entry
	Get(device core.DeviceID) (Entry, bool)
	Len() int
}

// Observer keeps board in sync with registry snapshots. A device without any
// record (after a reset) leaves the board.
func Observer(board Board) engine.Observer {
	return func(_ context.Context, snap engine.Snapshot) {
		if snap.State.LongestStreak == 0 {
			board.Remove(snap.Device)
			return
		}
		board.Update(snap.Device, snap.State.LongestStreak, snap.State.CurrentStreak)
	}
}
