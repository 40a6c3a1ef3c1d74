// Package events broadcasts incident events to connected viewers.
//
// Every event gets a sequence number. The broker keeps the most recent
// events in a bounded replay ring so a viewer that reconnects with the last
// id it saw receives what it missed. Each viewer has a bounded buffer; a
// viewer that falls behind far enough to fill it is disconnected instead of
// slowing down the others.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// Event is one broadcast message.
type Event struct {
	ID   uint64          `json:"id"`
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
}

// BrokerHooks are optional callbacks for instrumentation.
type BrokerHooks struct {
	OnEmit        func(name string)
	OnSubscribe   func()
	OnUnsubscribe func(dropped bool)
}

// Subscription is one connected viewer.
type Subscription struct {
	ID string

	ch      chan Event
	dropped bool
}

// C delivers the viewer's events. It is closed when the subscription ends,
// either by Unsubscribe or because the viewer fell behind.
func (s *Subscription) C() <-chan Event { return s.ch }

// Broker fans events out to subscriptions.
type Broker struct {
	mu     sync.Mutex
	seq    uint64
	ring   []Event // oldest first, at most replay entries
	replay int
	buffer int
	subs   map[string]*Subscription

	logger log.Logger
	hooks  BrokerHooks
	now    func() time.Time
}

// NewBroker returns a broker keeping replay events for reconnects and
// buffering up to buffer events per viewer.
func NewBroker(replay, buffer int, logger log.Logger, hooks BrokerHooks) *Broker {
	if replay < 0 {
		replay = 0
	}
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Broker{
		replay: replay,
		buffer: buffer,
		subs:   make(map[string]*Subscription),
		logger: logger,
		hooks:  hooks,
		now:    time.Now,
	}
}

// Emit implements incident.Emitter. Payloads that fail to marshal are
// logged and dropped. Emit never blocks on viewers.
func (b *Broker) Emit(ctx context.Context, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error(ctx, err, "failed to encode event", "event", name)
		return
	}

	b.mu.Lock()
	b.seq++
	ev := Event{ID: b.seq, Name: name, Data: data, At: b.now()}
	if b.replay > 0 {
		if len(b.ring) == b.replay {
			copy(b.ring, b.ring[1:])
			b.ring = b.ring[:len(b.ring)-1]
		}
		b.ring = append(b.ring, ev)
	}

	var dropped []string
	for id, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			s.dropped = true
			close(s.ch)
			delete(b.subs, id)
			dropped = append(dropped, id)
		}
	}
	b.mu.Unlock()

	if b.hooks.OnEmit != nil {
		b.hooks.OnEmit(name)
	}
	for _, id := range dropped {
		b.logger.Warn(ctx, "viewer disconnected, buffer full", "viewer_id", id, "event_id", ev.ID)
		if b.hooks.OnUnsubscribe != nil {
			b.hooks.OnUnsubscribe(true)
		}
	}
}

// Subscribe registers a viewer. When lastID is non-zero the events after it
// that are still in the replay ring are returned as backlog; complete is
// false when some were already evicted or lastID is unknown. Backlog and live events never
// overlap or leave a gap.
func (b *Broker) Subscribe(lastID uint64) (sub *Subscription, backlog []Event, complete bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	complete = true
	switch {
	case lastID > b.seq:
		// id from before a restart
		complete = false
	case lastID > 0 && lastID < b.seq:
		for _, ev := range b.ring {
			if ev.ID > lastID {
				backlog = append(backlog, ev)
			}
		}
		oldest := b.seq + 1
		if len(b.ring) > 0 {
			oldest = b.ring[0].ID
		}
		complete = oldest <= lastID+1
	}

	sub = &Subscription{
		ID: ulid.Make().String(),
		ch: make(chan Event, b.buffer),
	}
	b.subs[sub.ID] = sub

	if b.hooks.OnSubscribe != nil {
		b.hooks.OnSubscribe()
	}
	return sub, backlog, complete
}

// Unsubscribe removes a viewer. It is safe to call after the broker
// already dropped it.
func (b *Broker) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	_, ok := b.subs[sub.ID]
	if ok {
		delete(b.subs, sub.ID)
		close(sub.ch)
	}
	b.mu.Unlock()

	if ok && b.hooks.OnUnsubscribe != nil {
		b.hooks.OnUnsubscribe(false)
	}
}

// Dropped reports whether the broker disconnected the subscription
// because its buffer was full.
func (b *Broker) Dropped(sub *Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return sub.dropped
}

// Viewers returns the number of connected viewers.
func (b *Broker) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// LastID returns the id of the most recent event, 0 if none.
func (b *Broker) LastID() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close disconnects every viewer.
func (b *Broker) Close() {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*Subscription)
	for _, s := range subs {
		close(s.ch)
	}
	b.mu.Unlock()

	if b.hooks.OnUnsubscribe != nil {
		for range subs {
			b.hooks.OnUnsubscribe(false)
		}
	}
}
