// Package events is an in-process asynchronous event bus. It chains a
// library build into a graph build and the graph build into a link pass.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is anything published on the bus.
type Event interface {
	Topic() string
}

// Handler processes one event. It runs on its own goroutine.
type Handler func(ctx context.Context, ev Event)

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Bus delivers each published event to every subscriber of its topic,
// asynchronously. Delivery is at-least-once within the process; there is no
// ordering between unrelated events.
//
// Thread Safety: Bus is safe for concurrent use.
type Bus struct {
	ctx context.Context

	mu   sync.RWMutex
	subs map[string]*subscription
	wg   sync.WaitGroup
}

// NewBus creates a bus whose handlers run with ctx.
func NewBus(ctx context.Context) *Bus {
	return &Bus{ctx: ctx, subs: map[string]*subscription{}}
}

// Subscribe registers h for topic and returns the subscription ID.
func (b *Bus) Subscribe(topic string, h Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &subscription{id: uuid.NewString(), topic: topic, handler: h}
	b.subs[sub.id] = sub
	return sub.id
}

// Unsubscribe removes a subscription and reports whether it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[id]; !ok {
		return false
	}
	delete(b.subs, id)
	return true
}

// Publish hands ev to the subscribers of its topic and returns immediately.
// Handler panics are recovered and logged.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	var subs []*subscription
	for _, s := range b.subs {
		if s.topic == ev.Topic() {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	slog.Debug("events.publish", "topic", ev.Topic(), "subscribers", len(subs))
	for _, s := range subs {
		b.wg.Add(1)
		go b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s *subscription, ev Event) {
	defer b.wg.Done()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("events.handler.panic", "topic", ev.Topic(), "subscription", s.id, "panic", fmt.Sprint(r))
		}
	}()
	s.handler(b.ctx, ev)
	slog.Debug("events.handled", "topic", ev.Topic(), "elapsed", time.Since(start))
}

// Wait blocks until every delivered event, including events published by
// handlers while waiting, has been handled.
func (b *Bus) Wait() {
	b.wg.Wait()
}
