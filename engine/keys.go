package engine

import (
	"context"

	"signwise/core"
)

// Storage keys for streak fields.
const (
	KeyCurrentStreak = "currentStreak"
	KeyLongestStreak = "longestStreak"
	KeyLastLearned   = "lastLearnedDate"
	KeySignsToday    = "totalSignsLearnedToday"
	KeyTodayDate     = "todayDate"
)

// AllKeys lists every key the engine writes.
var AllKeys = []string{KeyCurrentStreak, KeyLongestStreak, KeyLastLearned, KeySignsToday, KeyTodayDate}

// Prefixed scopes every key of store under prefix. Batches stay atomic when
// the underlying store supports them.
func Prefixed(store KeyValueStore, prefix string) KeyValueStore {
	if prefix == "" {
		return store
	}
	p := prefixed{next: store, prefix: prefix}
	if _, ok := store.(BatchStore); ok {
		return prefixedBatch{p}
	}
	return p
}

type prefixed struct {
	next   KeyValueStore
	prefix string
}

func (p prefixed) key(k string) string { return p.prefix + k }

func (p prefixed) GetInt(ctx context.Context, key string) (int64, bool, error) {
	return p.next.GetInt(ctx, p.key(key))
}

func (p prefixed) SetInt(ctx context.Context, key string, value int64) error {
	return p.next.SetInt(ctx, p.key(key), value)
}

func (p prefixed) GetDay(ctx context.Context, key string) (core.Day, bool, error) {
	return p.next.GetDay(ctx, p.key(key))
}

func (p prefixed) SetDay(ctx context.Context, key string, day core.Day) error {
	return p.next.SetDay(ctx, p.key(key), day)
}

func (p prefixed) Remove(ctx context.Context, keys ...string) error {
	scoped := make([]string, len(keys))
	for i, k := range keys {
		scoped[i] = p.key(k)
	}
	return p.next.Remove(ctx, scoped...)
}

type prefixedBatch struct{ prefixed }

func (p prefixedBatch) Apply(ctx context.Context, muts []Mutation) error {
	scoped := make([]Mutation, len(muts))
	for i, m := range muts {
		m.Key = p.key(m.Key)
		scoped[i] = m
	}
	return p.next.(BatchStore).Apply(ctx, scoped)
}
