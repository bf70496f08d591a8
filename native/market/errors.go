package market

import "errors"

var (
	errNilState   = errors.New("market engine: state not configured")
	errNilCustody = errors.New("market engine: custody collaborator not configured")
	errNilLedger  = errors.New("market engine: escrow ledger not configured")
	errNilFees    = errors.New("market engine: fee calculator not configured")
	errNilRail    = errors.New("market engine: payment rail not configured")

	// Precondition violations, all surfaced synchronously with no partial
	// effect.
	ErrListingNotFound     = errors.New("market: listing not found")
	ErrNotOwner            = errors.New("market: caller does not own the asset")
	ErrNotApproved         = errors.New("market: asset transfer not approved")
	ErrAuctionTooShort     = errors.New("market: auction duration below minimum")
	ErrListingInactive     = errors.New("market: listing is not active")
	ErrNotAnAuction        = errors.New("market: listing is not an auction")
	ErrNotFixedPrice       = errors.New("market: listing is not fixed-price")
	ErrAuctionEnded        = errors.New("market: auction has ended")
	ErrAuctionNotEnded     = errors.New("market: auction has not ended")
	ErrBidTooSoon          = errors.New("market: bid too soon after previous bid")
	ErrNoBidCommitted      = errors.New("market: no bid committed")
	ErrRevealWindowExpired = errors.New("market: reveal window expired")
	ErrInvalidReveal       = errors.New("market: reveal does not match commitment")
	ErrBidIncrementTooLow  = errors.New("market: bid below minimum increment")
	ErrNoBids              = errors.New("market: auction received no bids")
	ErrNotSeller           = errors.New("market: caller is not the seller")
	ErrInvalidPrice        = errors.New("market: listing price must be positive")
)
