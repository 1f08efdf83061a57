// Copyright 2026 Esteban Alvarez. All Rights Reserved.
//
// Created: August 2026
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bus is the in-process domain event bus. Publish is synchronous:
// handlers run on the publisher's goroutine, in subscription order, and a
// panicking handler is contained and logged without unseating the others.
// Cross-process delivery is out of scope; downstream stages chain off these
// events inside one process.
package bus

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"marketpipe/internal/domain"
)

// Handler consumes one event. Handlers must tolerate replay: the pipeline
// re-publishes terminal events when jobs re-run.
type Handler func(ctx context.Context, ev domain.Event)

// Bus fans events out to subscribers by event type.
type Bus struct {
	mu       sync.RWMutex
	byType   map[domain.EventType][]Handler
	everyone []Handler
	log      *zap.Logger
}

// New builds an empty bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{byType: make(map[domain.EventType][]Handler), log: log}
}

// Subscribe registers a handler for one event type.
func (b *Bus) Subscribe(t domain.EventType, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byType[t] = append(b.byType[t], h)
}

// SubscribeAll registers a handler for every event type. All-subscribers run
// after the type-specific handlers.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.everyone = append(b.everyone, h)
}

// Publish delivers the event to every matching handler in registration
// order, synchronously.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byType[ev.Type()])+len(b.everyone))
	handlers = append(handlers, b.byType[ev.Type()]...)
	handlers = append(handlers, b.everyone...)
	b.mu.RUnlock()

	eventsPublished.WithLabelValues(string(ev.Type())).Inc()
	for _, h := range handlers {
		b.deliver(ctx, ev, h)
	}
}

func (b *Bus) deliver(ctx context.Context, ev domain.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanics.WithLabelValues(string(ev.Type())).Inc()
			b.log.Error("event handler panicked",
				zap.String("event_type", string(ev.Type())),
				zap.String("aggregate_id", ev.AggregateID()),
				zap.Any("panic", r))
		}
	}()
	h(ctx, ev)
}
