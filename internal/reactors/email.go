// Package reactors holds the best-effort subscribers behind the settlement
// dispatcher. Nothing here participates in the settlement transaction; a
// failing reactor costs its own side effect and nothing else.
package reactors

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/soundhaven/soundhaven/internal/events"
	"github.com/soundhaven/soundhaven/internal/providers/email"
	"go.uber.org/zap"
)

// UserDirectory resolves a user id to a contact address. The settlement core
// does not own user records; the platform wires an implementation in when one
// is available.
type UserDirectory interface {
	EmailByUserID(ctx context.Context, userID snowflake.ID) (string, error)
}

// EmailReactor sends receipts and notifications.
type EmailReactor struct {
	log      *zap.Logger
	provider email.Provider
	users    UserDirectory
}

func NewEmailReactor(log *zap.Logger, provider email.Provider, users UserDirectory) *EmailReactor {
	return &EmailReactor{
		log:      log.Named("reactors.email"),
		provider: provider,
		users:    users,
	}
}

func (r *EmailReactor) Register(dispatcher *events.Dispatcher) {
	dispatcher.Subscribe(events.TopicPurchaseCompleted, "email.receipt", r.onPurchaseCompleted)
	dispatcher.Subscribe(events.TopicSubscriptionCreated, "email.subscription", r.onSubscriptionCreated)
	dispatcher.Subscribe(events.TopicRefundIssued, "email.refund", r.onRefundIssued)
}

func (r *EmailReactor) onPurchaseCompleted(ctx context.Context, payload any) error {
	p, ok := payload.(events.PaymentPayload)
	if !ok {
		return nil
	}
	subject := "Your purchase is complete"
	body := fmt.Sprintf("<p>Thanks for your purchase. Your %s is ready in your library.</p>", p.ItemType)
	return r.send(ctx, p.UserID, subject, body)
}

func (r *EmailReactor) onSubscriptionCreated(ctx context.Context, payload any) error {
	p, ok := payload.(events.SubscriptionPayload)
	if !ok {
		return nil
	}
	subject := "Artist subscription active"
	body := fmt.Sprintf("<p>Your subscription is active until %s.</p>", p.ValidUntil.Format("Jan 2, 2006"))
	return r.send(ctx, p.UserID, subject, body)
}

func (r *EmailReactor) onRefundIssued(ctx context.Context, payload any) error {
	p, ok := payload.(events.PaymentPayload)
	if !ok {
		return nil
	}
	subject := "Your refund has been processed"
	body := fmt.Sprintf("<p>Your refund of %d %s has been processed.</p>", p.Amount, p.Currency)
	return r.send(ctx, p.UserID, subject, body)
}

func (r *EmailReactor) send(ctx context.Context, userID snowflake.ID, subject, body string) error {
	if r.users == nil {
		r.log.Debug("no user directory wired, skipping email", zap.Int64("user_id", int64(userID)))
		return nil
	}
	address, err := r.users.EmailByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if address == "" {
		return nil
	}
	return r.provider.Send(ctx, []string{address}, subject, body)
}
