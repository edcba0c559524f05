package events

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestPublishRunsSubscribersInOrder(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var order []string
	d.Subscribe(TopicPaymentSucceeded, "first", func(ctx context.Context, payload any) error {
		order = append(order, "first")
		return nil
	})
	d.Subscribe(TopicPaymentSucceeded, "second", func(ctx context.Context, payload any) error {
		order = append(order, "second")
		return nil
	})

	d.Publish(context.Background(), TopicPaymentSucceeded, PaymentPayload{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestPublishIsolatesFailingSubscriber(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var reached bool
	d.Subscribe(TopicRefundIssued, "failing", func(ctx context.Context, payload any) error {
		return errors.New("smtp unavailable")
	})
	d.Subscribe(TopicRefundIssued, "after", func(ctx context.Context, payload any) error {
		reached = true
		return nil
	})

	d.Publish(context.Background(), TopicRefundIssued, PaymentPayload{})

	if !reached {
		t.Fatal("expected subscriber after the failing one to run")
	}
}

func TestPublishIsolatesPanickingSubscriber(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var reached bool
	d.Subscribe(TopicPaymentFailed, "panicking", func(ctx context.Context, payload any) error {
		panic("boom")
	})
	d.Subscribe(TopicPaymentFailed, "after", func(ctx context.Context, payload any) error {
		reached = true
		return nil
	})

	d.Publish(context.Background(), TopicPaymentFailed, PaymentPayload{})

	if !reached {
		t.Fatal("expected subscriber after the panicking one to run")
	}
}

func TestPublishToTopicWithoutSubscribers(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	// Must not panic or block.
	d.Publish(context.Background(), TopicSubscriptionCreated, SubscriptionPayload{})
}

func TestSubscribersOnlyReceiveTheirTopic(t *testing.T) {
	d := NewDispatcher(zap.NewNop())

	var calls int
	d.Subscribe(TopicPurchaseCompleted, "counter", func(ctx context.Context, payload any) error {
		calls++
		return nil
	})

	d.Publish(context.Background(), TopicPurchaseRefunded, PaymentPayload{})
	d.Publish(context.Background(), TopicPurchaseCompleted, PaymentPayload{})

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
