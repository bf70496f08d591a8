package market

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nhbmarket/core/types"
)

const (
	EventTypeListingCreated   = "market.listing.created"
	EventTypeListingCancelled = "market.listing.cancelled"
	EventTypePurchase         = "market.purchase"
	EventTypeBidCommitted     = "market.bid.committed"
	EventTypeBidRevealed      = "market.bid.revealed"
	EventTypeAuctionEnded     = "market.auction.ended"
)

// NewListingCreatedEvent returns the canonical event payload for a freshly
// created listing.
func NewListingCreatedEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListingCreated, Attributes: listingAttributes(l)}
}

// NewListingCancelledEvent returns the canonical event payload emitted when a
// seller withdraws an active listing.
func NewListingCancelledEvent(l *Listing) *types.Event {
	return &types.Event{Type: EventTypeListingCancelled, Attributes: listingAttributes(l)}
}

// NewPurchaseEvent returns the canonical event payload for a fixed-price sale.
func NewPurchaseEvent(l *Listing, buyer [20]byte, amount *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["buyer"] = hex.EncodeToString(buyer[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypePurchase, Attributes: attrs}
}

// NewBidCommittedEvent returns the canonical event payload for a sealed bid
// commitment. The commitment hash itself is deliberately omitted.
func NewBidCommittedEvent(l *Listing, bidder [20]byte) *types.Event {
	attrs := listingAttributes(l)
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	return &types.Event{Type: EventTypeBidCommitted, Attributes: attrs}
}

// NewBidRevealedEvent returns the canonical event payload for an opened bid.
func NewBidRevealedEvent(l *Listing, bidder [20]byte, amount *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["bidder"] = hex.EncodeToString(bidder[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeBidRevealed, Attributes: attrs}
}

// NewAuctionEndedEvent returns the canonical event payload for a finalised
// auction, carrying the winner and the settled amount.
func NewAuctionEndedEvent(l *Listing, winner [20]byte, amount *big.Int) *types.Event {
	attrs := listingAttributes(l)
	attrs["winner"] = hex.EncodeToString(winner[:])
	attrs["amount"] = amountString(amount)
	return &types.Event{Type: EventTypeAuctionEnded, Attributes: attrs}
}

func listingAttributes(l *Listing) map[string]string {
	attrs := make(map[string]string)
	if l == nil {
		return attrs
	}
	attrs["id"] = strconv.FormatUint(l.ID, 10)
	attrs["seller"] = hex.EncodeToString(l.Seller[:])
	attrs["assetContract"] = hex.EncodeToString(l.Asset.Contract[:])
	if l.Asset.TokenID != nil {
		attrs["assetTokenId"] = l.Asset.TokenID.String()
	}
	attrs["price"] = amountString(l.Price)
	attrs["rail"] = l.PayRail
	attrs["auction"] = strconv.FormatBool(l.Auction)
	if l.Auction {
		attrs["auctionEnd"] = strconv.FormatInt(l.AuctionEnd, 10)
		attrs["highestBid"] = amountString(l.HighestBid)
	}
	return attrs
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
