package engine

import (
	"context"

	"signwise/core"
)

// KeyValueStore abstracts durable storage of streak fields. Get methods
// report ok=false for missing keys. A value that exists but cannot be decoded
// is reported with an error wrapping ErrInvalidValue.
type KeyValueStore interface {
	GetInt(ctx context.Context, key string) (value int64, ok bool, err error)
	SetInt(ctx context.Context, key string, value int64) error
	GetDay(ctx context.Context, key string) (day core.Day, ok bool, err error)
	SetDay(ctx context.Context, key string, day core.Day) error
	Remove(ctx context.Context, keys ...string) error
}

// BatchStore is implemented by stores that can apply several mutations as
// one unit: either all become visible or none do.
type BatchStore interface {
	KeyValueStore
	Apply(ctx context.Context, muts []Mutation) error
}

// Op is a mutation kind.
type Op int

const (
	OpSetInt Op = iota
	OpSetDay
	OpRemove
)

// Mutation is a single write inside a batch.
type Mutation struct {
	Op  Op
	Key string
	Int int64
	Day core.Day
}

func SetIntMutation(key string, v int64) Mutation { return Mutation{Op: OpSetInt, Key: key, Int: v} }

func SetDayMutation(key string, d core.Day) Mutation { return Mutation{Op: OpSetDay, Key: key, Day: d} }

func RemoveMutation(key string) Mutation { return Mutation{Op: OpRemove, Key: key} }

// Clock supplies the current calendar day.
type Clock interface {
	Today() core.Day
}

// applySequential writes muts one by one. Used for stores without batching.
func applySequential(ctx context.Context, store KeyValueStore, muts []Mutation) error {
	for _, m := range muts {
		var err error
		switch m.Op {
		case OpSetInt:
			err = store.SetInt(ctx, m.Key, m.Int)
		case OpSetDay:
			err = store.SetDay(ctx, m.Key, m.Day)
		case OpRemove:
			err = store.Remove(ctx, m.Key)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// KeyLister is implemented by stores that can enumerate their keys.
type KeyLister interface {
	// Keys returns every stored key starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Apply writes muts through store, as one unit when the store supports it.
func Apply(ctx context.Context, store KeyValueStore, muts []Mutation) error {
	if b, ok := store.(BatchStore); ok {
		return b.Apply(ctx, muts)
	}
	return applySequential(ctx, store, muts)
}
