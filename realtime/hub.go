package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"signwise/core"
	"signwise/engine"
)

// MessageType distinguishes what a Message carries.
type MessageType string

const (
	MessageEvent    MessageType = "event"
	MessageSnapshot MessageType = "snapshot"
)

// Message is what the hub fans out: either a streak event or a device
// snapshot taken after an operation.
type Message struct {
	Type     MessageType      `json:"type"`
	Device   core.DeviceID    `json:"device,omitempty"`
	Event    *core.Event      `json:"event,omitempty"`
	Snapshot *engine.Snapshot `json:"snapshot,omitempty"`
}

func EventMessage(ev core.Event) Message {
	return Message{Type: MessageEvent, Device: ev.Device, Event: &ev}
}

func SnapshotMessage(s engine.Snapshot) Message {
	return Message{Type: MessageSnapshot, Device: s.Device, Snapshot: &s}
}

type subscriber struct {
	ch     chan Message
	device core.DeviceID
}

// Hub is a simple pub/sub for broadcasting messages to channels. Slow
// subscribers lose messages rather than block the broadcaster.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped atomic.Int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

// Subscribe returns a channel of messages for device, or for every device
// when device is empty.
func (h *Hub) Subscribe(buffer int, device core.DeviceID) (int, <-chan Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan Message, buffer)
	h.subs[id] = subscriber{ch: ch, device: device}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// Subscribers returns the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped counts messages skipped because a subscriber buffer was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

func (h *Hub) Broadcast(_ context.Context, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.subs {
		if s.device != "" && msg.Device != "" && s.device != msg.Device {
			continue
		}
		select {
		case s.ch <- msg:
		default: /* drop if full */
			h.dropped.Add(1)
		}
	}
}

// BroadcastEvent is an engine.Handler publishing ev to the hub.
func (h *Hub) BroadcastEvent(ctx context.Context, ev core.Event) {
	h.Broadcast(ctx, EventMessage(ev))
}

// BroadcastSnapshot is an engine.Observer publishing s to the hub.
func (h *Hub) BroadcastSnapshot(ctx context.Context, s engine.Snapshot) {
	h.Broadcast(ctx, SnapshotMessage(s))
}

// MarshalJSON is a helper to convert messages to JSON bytes for WebSocket/SSE.
func MarshalJSON(msg Message) []byte {
	b, _ := json.Marshal(msg)
	return b
}
