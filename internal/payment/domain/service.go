package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// CreatePaymentRequest starts a checkout for one item.
type CreatePaymentRequest struct {
	UserID   snowflake.ID `json:"user_id"`
	Provider string       `json:"provider"`
	ItemType ItemType     `json:"item_type"`
	ItemID   snowflake.ID `json:"item_id"`
	ArtistID snowflake.ID `json:"artist_id"`
	Amount   int64        `json:"amount"`
	Currency string       `json:"currency"`
}

// Item builds the tagged variant from the request fields.
func (r *CreatePaymentRequest) Item() (Item, error) {
	switch r.ItemType {
	case ItemTypeSong:
		return SongItem{SongID: r.ItemID}, nil
	case ItemTypeAlbum:
		return AlbumItem{AlbumID: r.ItemID}, nil
	case ItemTypeArtistSubscription:
		artistID := r.ArtistID
		if artistID == 0 {
			artistID = r.ItemID
		}
		return ArtistSubscriptionItem{ArtistID: artistID}, nil
	default:
		return nil, ErrUnknownItemType
	}
}

// CreatePaymentResponse hands the client what it needs to complete checkout.
type CreatePaymentResponse struct {
	Transaction *Transaction  `json:"transaction"`
	Order       *GatewayOrder `json:"order"`
}

// CheckoutService is the outbound half of the payment lifecycle: it creates
// pending transactions and asks providers for refunds. Both halves settle only
// through the webhook path.
type CheckoutService interface {
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error)
	// RequestRefund asks the provider to refund a paid transaction. The state
	// stays paid until the provider's refund webhook settles it.
	RequestRefund(ctx context.Context, transactionID snowflake.ID) (*Transaction, error)
	GetTransaction(ctx context.Context, id snowflake.ID) (*Transaction, error)
}
