package leaderboard

import (
	"context"
	"fmt"
	"testing"

	"signwise/core"
	"signwise/engine"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update("a", 10, 1)
	s.Update("b", 20, 0)
	s.Update("c", 15, 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].Device != "b" || top[1].Device != "c" || top[2].Device != "a" {
		t.Fatalf("unexpected order: %#v", top)
	}
	if top[2].Rank != 3 {
		t.Fatalf("want rank 3 got %d", top[2].Rank)
	}
	s.Update("a", 25, 25)
	top = s.TopN(1)
	if top[0].Device != "a" {
		t.Fatalf("top should be a, got %#v", top)
	}
	if s.Len() != 3 {
		t.Fatalf("want 3 entries got %d", s.Len())
	}
}

func TestSkipListTieBreaks(t *testing.T) {
	s := NewSkipList()
	s.Update("z", 7, 0)
	s.Update("y", 7, 3)
	s.Update("x", 7, 0)
	top := s.TopN(10)
	got := []core.DeviceID{top[0].Device, top[1].Device, top[2].Device}
	want := []core.DeviceID{"y", "x", "z"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order %v, want %v", got, want)
		}
	}
	e, ok := s.Get("z")
	if !ok || e.Rank != 3 {
		t.Fatalf("get z: %+v %v", e, ok)
	}
}

func TestSkipListRemoveMany(t *testing.T) {
	s := NewSkipList()
	for i := 0; i < 200; i++ {
		s.Update(core.DeviceID(fmt.Sprintf("d%03d", i)), i%17, i%5)
	}
	for i := 0; i < 200; i += 2 {
		s.Remove(core.DeviceID(fmt.Sprintf("d%03d", i)))
	}
	if s.Len() != 100 {
		t.Fatalf("want 100 got %d", s.Len())
	}
	top := s.TopN(200)
	for i := 1; i < len(top); i++ {
		if less(top[i], top[i-1]) {
			t.Fatalf("out of order at %d: %+v before %+v", i, top[i-1], top[i])
		}
	}
	if _, ok := s.Get("d000"); ok {
		t.Fatal("removed device still present")
	}
}

func TestObserverFollowsSnapshots(t *testing.T) {
	s := NewSkipList()
	obs := Observer(s)
	obs(context.Background(), engine.Snapshot{Device: "a", State: core.State{CurrentStreak: 2, LongestStreak: 4}})
	if e, ok := s.Get("a"); !ok || e.Longest != 4 || e.Current != 2 {
		t.Fatalf("unexpected entry %+v %v", e, ok)
	}
	obs(context.Background(), engine.Snapshot{Device: "a"})
	if s.Len() != 0 {
		t.Fatal("reset device should leave the board")
	}
}
