package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"signwise/core"
)

// A skip list ordered by (longest desc, current desc, device asc).

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
}

type SkipList struct {
	mu       sync.RWMutex
	head     *node
	lvl      int
	size     int
	byDevice map[core.DeviceID]*node
	rng      *rand.Rand
}

func NewSkipList() *SkipList {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		seed = [16]byte{}
	}
	return &SkipList{
		head:     &node{},
		lvl:      1,
		byDevice: map[core.DeviceID]*node{},
		rng:      rand.New(rand.NewPCG(binary.BigEndian.Uint64(seed[:8]), binary.BigEndian.Uint64(seed[8:]))),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

func less(a, b Entry) bool {
	if a.Longest != b.Longest {
		return a.Longest > b.Longest
	}
	if a.Current != b.Current {
		return a.Current > b.Current
	}
	return a.Device < b.Device
}

// Update inserts device or moves it to its new position.
func (s *SkipList) Update(device core.DeviceID, longest, current int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Device: device, Longest: longest, Current: current}
	if old, ok := s.byDevice[device]; ok {
		if old.e == e {
			return
		}
		s.removeLocked(old.e)
	}
	var update [maxLevel]*node
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			update[i] = s.head
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
	}
	s.byDevice[device] = n
	s.size++
}

func (s *SkipList) removeLocked(e Entry) {
	var update [maxLevel]*node
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.Device != e.Device {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].next[i] = target.next[i]
		}
	}
	delete(s.byDevice, e.Device)
	s.size--
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) Remove(device core.DeviceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byDevice[device]; ok {
		s.removeLocked(n.e)
	}
}

// TopN returns the first n entries with their 1-based rank.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, min(n, s.size))
	for cur := s.head.next[0]; cur != nil && len(out) < n; cur = cur.next[0] {
		e := cur.e
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out
}

// Get returns device's entry with its rank. Ranking is a linear walk.
func (s *SkipList) Get(device core.DeviceID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.byDevice[device]; !ok {
		return Entry{}, false
	}
	rank := 0
	for cur := s.head.next[0]; cur != nil; cur = cur.next[0] {
		rank++
		if cur.e.Device == device {
			e := cur.e
			e.Rank = rank
			return e, true
		}
	}
	return Entry{}, false
}

func (s *SkipList) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

var _ Board = (*SkipList)(nil)
