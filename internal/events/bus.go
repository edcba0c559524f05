// Package events carries settlement outcomes to best-effort subscribers.
//
// The dispatcher is an in-process, synchronous fan-out: Publish runs every
// subscriber registered for the topic, in registration order, on the calling
// goroutine. It never carries required state mutations; those all happen inside
// the settlement unit of work before anything is published.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type Topic string

const (
	TopicPaymentSucceeded      Topic = "payment.succeeded"
	TopicPaymentFailed         Topic = "payment.failed"
	TopicRefundIssued          Topic = "refund.issued"
	TopicSubscriptionCreated   Topic = "subscription.created"
	TopicSubscriptionCancelled Topic = "subscription.cancelled"
	TopicPurchaseCompleted     Topic = "purchase.completed"
	TopicPurchaseRefunded      Topic = "purchase.refunded"
)

// Handler reacts to a published payload. A returned error is logged and
// swallowed; it never reaches the publisher.
type Handler func(ctx context.Context, payload any) error

type subscriber struct {
	name    string
	handler Handler
}

// Dispatcher is constructed once per process and passed to whoever publishes
// or subscribes. There is deliberately no package-level instance.
type Dispatcher struct {
	mu   sync.RWMutex
	subs map[Topic][]subscriber
	log  *zap.Logger
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		subs: make(map[Topic][]subscriber),
		log:  log.Named("events"),
	}
}

// Subscribe registers handler for topic. The name only shows up in logs.
func (d *Dispatcher) Subscribe(topic Topic, name string, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs[topic] = append(d.subs[topic], subscriber{name: name, handler: handler})
}

// Publish invokes every subscriber for topic in registration order. A failing
// or panicking subscriber is logged and does not stop the ones after it.
func (d *Dispatcher) Publish(ctx context.Context, topic Topic, payload any) {
	d.mu.RLock()
	subs := make([]subscriber, len(d.subs[topic]))
	copy(subs, d.subs[topic])
	d.mu.RUnlock()

	for _, sub := range subs {
		d.run(ctx, topic, sub, payload)
	}
}

func (d *Dispatcher) run(ctx context.Context, topic Topic, sub subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("subscriber panicked",
				zap.String("topic", string(topic)),
				zap.String("subscriber", sub.name),
				zap.Any("panic", r),
			)
		}
	}()

	if err := sub.handler(ctx, payload); err != nil {
		d.log.Warn("subscriber failed",
			zap.String("topic", string(topic)),
			zap.String("subscriber", sub.name),
			zap.Error(err),
		)
	}
}
