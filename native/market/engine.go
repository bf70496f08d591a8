package market

import (
	"math/big"
	"sync"
	"time"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	nativecommon "nhbmarket/native/common"
	"nhbmarket/native/escrow"
	"nhbmarket/native/fees"
)

const marketModuleName = "market"

type engineState interface {
	ListingPut(*Listing) error
	ListingGet(id uint64) (*Listing, bool, error)
	ListingDelete(id uint64) error
	ListingNextID() (uint64, error)
	CommitmentPut(listingID uint64, c *BidCommitment) error
	CommitmentGet(listingID uint64, bidder [20]byte) (*BidCommitment, bool, error)
	CommitmentDelete(listingID uint64, bidder [20]byte) error
	CommitmentClear(listingID uint64) error
}

// Custody is the asset-custody collaborator: ownership and approval checks
// plus the three asset moves. Implementations must not retain state the
// engine depends on beyond a custody flag per asset.
type Custody interface {
	VerifyOwnership(contract [20]byte, tokenID *big.Int, claimedOwner [20]byte) bool
	VerifyApproval(contract [20]byte, tokenID *big.Int, operator [20]byte) bool
	TakeCustody(contract [20]byte, tokenID *big.Int, from, caller [20]byte) error
	ReleaseCustody(contract [20]byte, tokenID *big.Int, to, caller [20]byte) error
	TransferDirect(contract [20]byte, tokenID *big.Int, from, to, caller [20]byte) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine is the listing state machine. It owns every Listing record and its
// bidder sub-state, sequences calls to the escrow ledger, the fee calculator
// and the custody collaborator, and serialises all state-changing operations
// behind a single lock so each runs as one atomic unit: checks, then state
// mutation, then external transfers, then exactly one event.
type Engine struct {
	mu       sync.Mutex
	state    engineState
	custody  Custody
	ledger   *escrow.Ledger
	fees     *fees.Calculator
	rail     escrow.PaymentRail
	emitter  events.Emitter
	nowFn    func() int64
	pauses   nativecommon.PauseView
	operator [20]byte
}

// NewEngine creates a market engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetCustody configures the asset-custody collaborator.
func (e *Engine) SetCustody(c Custody) { e.custody = c }

// SetLedger configures the escrow ledger used for auction funds.
func (e *Engine) SetLedger(l *escrow.Ledger) { e.ledger = l }

// SetCalculator configures the fee/royalty calculator.
func (e *Engine) SetCalculator(c *fees.Calculator) { e.fees = c }

// SetPaymentRail configures the rail used for direct buyer payments.
func (e *Engine) SetPaymentRail(rail escrow.PaymentRail) { e.rail = rail }

// SetOperatorAddress configures the address under which the engine acts
// against the custody collaborator.
func (e *Engine) SetOperatorAddress(addr [20]byte) { e.operator = addr }

// SetPauses configures the pause view guarding engine operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if e.custody == nil {
		return errNilCustody
	}
	if e.ledger == nil {
		return errNilLedger
	}
	if e.fees == nil {
		return errNilFees
	}
	if e.rail == nil {
		return errNilRail
	}
	return nativecommon.Guard(e.pauses, marketModuleName)
}

func (e *Engine) loadListing(id uint64) (*Listing, error) {
	listing, ok, err := e.state.ListingGet(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrListingNotFound
	}
	return listing, nil
}

func (e *Engine) storeListing(l *Listing) error {
	sanitized, err := SanitizeListing(l)
	if err != nil {
		return err
	}
	return e.state.ListingPut(sanitized)
}

// GetListing returns a copy of the listing record.
func (e *Engine) GetListing(id uint64) (*Listing, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	listing, err := e.loadListing(id)
	if err != nil {
		return nil, err
	}
	return listing.Clone(), nil
}

// CreateListing takes the asset into custody and records a new active
// listing. For auctions the duration must meet the protocol minimum; the
// minimum bid increment is fixed here as 5% of the list price.
func (e *Engine) CreateListing(seller [20]byte, asset AssetRef, price *big.Int, payRail string, auction bool, auctionDuration int64) (*Listing, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	rail, err := escrow.NormalizeRail(payRail)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, ErrInvalidPrice
	}
	asset = asset.Clone()
	if !e.custody.VerifyOwnership(asset.Contract, asset.TokenID, seller) {
		return nil, ErrNotOwner
	}
	if !e.custody.VerifyApproval(asset.Contract, asset.TokenID, e.operator) {
		return nil, ErrNotApproved
	}
	if auction && auctionDuration < MinAuctionDuration {
		return nil, ErrAuctionTooShort
	}

	now := e.now()
	id, err := e.state.ListingNextID()
	if err != nil {
		return nil, err
	}
	listing := &Listing{
		ID:              id,
		Seller:          seller,
		Asset:           asset,
		Price:           new(big.Int).Set(price),
		PayRail:         rail,
		Active:          true,
		Auction:         auction,
		HighestBid:      big.NewInt(0),
		MinBidIncrement: MinIncrementFor(price),
		CreatedAt:       now,
	}
	if auction {
		listing.AuctionEnd = now + auctionDuration
	}
	// The asset moves into custody atomically with creation: custody first,
	// record second, and the custody move is reversed if the record cannot
	// be persisted.
	if err := e.custody.TakeCustody(asset.Contract, asset.TokenID, seller, e.operator); err != nil {
		return nil, err
	}
	if err := e.storeListing(listing); err != nil {
		_ = e.custody.ReleaseCustody(asset.Contract, asset.TokenID, seller, e.operator)
		return nil, err
	}
	e.emit(NewListingCreatedEvent(listing))
	return listing.Clone(), nil
}

// CommitBid stores a sealed bid hash for the bidder. Valid only on an active
// auction before its end time, and throttled globally per listing: one commit
// per MinTimeBetweenBids relative to the last successful reveal, regardless
// of bidder. Commits never move funds.
func (e *Engine) CommitBid(bidder [20]byte, listingID uint64, commitment [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if !listing.Auction {
		return ErrNotAnAuction
	}
	now := e.now()
	if now >= listing.AuctionEnd {
		return ErrAuctionEnded
	}
	if now < listing.LastBidTime+MinTimeBetweenBids {
		return ErrBidTooSoon
	}
	commit := &BidCommitment{Bidder: bidder, Hash: commitment, CommittedAt: now}
	if err := e.state.CommitmentPut(listingID, commit); err != nil {
		return err
	}
	e.emit(NewBidCommittedEvent(listing, bidder))
	return nil
}

// RevealBid opens a sealed bid. The reveal must arrive within the commit
// window, hash to the stored commitment, and raise the highest bid by at
// least the listing's fixed minimum increment. On success the revealed amount
// is escrow-held from the bidder and the previous highest bid, if any, is
// refunded directly to the previous highest bidder.
func (e *Engine) RevealBid(bidder [20]byte, listingID uint64, amount *big.Int, nonce [32]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if !listing.Auction {
		return ErrNotAnAuction
	}
	commit, ok, err := e.state.CommitmentGet(listingID, bidder)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoBidCommitted
	}
	now := e.now()
	if now > commit.CommittedAt+CommitRevealWindow {
		return ErrRevealWindowExpired
	}
	if amount == nil || CommitmentHash(bidder, amount, nonce) != commit.Hash {
		return ErrInvalidReveal
	}
	floor := new(big.Int).Add(listing.HighestBid, listing.MinBidIncrement)
	if amount.Cmp(floor) < 0 {
		return ErrBidIncrementTooLow
	}

	prevBid := new(big.Int).Set(listing.HighestBid)
	prevBidder := listing.HighestBidder
	before := listing.Clone()

	listing.HighestBid = new(big.Int).Set(amount)
	listing.HighestBidder = bidder
	listing.LastBidTime = now
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := e.state.CommitmentDelete(listingID, bidder); err != nil {
		_ = e.storeListing(before)
		return err
	}
	if err := e.ledger.Hold(listing.PayRail, bidder, amount); err != nil {
		_ = e.state.CommitmentPut(listingID, commit)
		_ = e.storeListing(before)
		return err
	}
	if prevBid.Sign() > 0 {
		if err := e.ledger.Release(listing.PayRail, prevBidder, prevBidder, prevBid); err != nil {
			_ = e.ledger.Release(listing.PayRail, bidder, bidder, amount)
			_ = e.state.CommitmentPut(listingID, commit)
			_ = e.storeListing(before)
			return err
		}
	}
	e.emit(NewBidRevealedEvent(listing, bidder, amount))
	return nil
}

// BuyNFT settles a fixed-price listing immediately: fee/royalty split, direct
// buyer payouts, asset hand-over, active flag flip. A reentrant or repeated
// call observes the flipped flag and fails with ErrListingInactive.
func (e *Engine) BuyNFT(buyer [20]byte, listingID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if listing.Auction {
		return ErrNotFixedPrice
	}
	breakdown, err := e.settle(listing, buyer, listing.Price, false)
	if err != nil {
		return err
	}
	e.emit(NewPurchaseEvent(listing, buyer, listing.Price))
	if breakdown.RoyaltyAmount.Sign() > 0 {
		e.emit(fees.NewRoyaltyPaidEvent(listing.ID, breakdown.RoyaltyReceiver, breakdown.RoyaltyAmount))
	}
	return nil
}

// EndAuction finalises an auction once its end time has passed and a highest
// bidder exists, settling from the winner's escrowed funds. Outstanding
// commitments are cleared to bound the listing's sub-state.
func (e *Engine) EndAuction(listingID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if !listing.Auction {
		return ErrNotAnAuction
	}
	if e.now() < listing.AuctionEnd {
		return ErrAuctionNotEnded
	}
	if listing.HighestBidder == ([20]byte{}) || listing.HighestBid.Sign() == 0 {
		return ErrNoBids
	}
	winner := listing.HighestBidder
	amount := new(big.Int).Set(listing.HighestBid)
	breakdown, err := e.settle(listing, winner, amount, true)
	if err != nil {
		return err
	}
	if err := e.state.CommitmentClear(listingID); err != nil {
		return err
	}
	e.emit(NewAuctionEndedEvent(listing, winner, amount))
	if breakdown.RoyaltyAmount.Sign() > 0 {
		e.emit(fees.NewRoyaltyPaidEvent(listing.ID, breakdown.RoyaltyReceiver, breakdown.RoyaltyAmount))
	}
	return nil
}

// CancelListing lets the seller withdraw an active listing. The asset returns
// to the seller and outstanding commitments are cleared. Funds already
// escrow-held by revealed bidders are deliberately left in place; bidders
// withdraw them through the escrow ledger.
func (e *Engine) CancelListing(caller [20]byte, listingID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	listing, err := e.loadListing(listingID)
	if err != nil {
		return err
	}
	if !listing.Active {
		return ErrListingInactive
	}
	if listing.Seller != caller {
		return ErrNotSeller
	}
	before := listing.Clone()
	listing.Active = false
	if err := e.storeListing(listing); err != nil {
		return err
	}
	if err := e.custody.ReleaseCustody(listing.Asset.Contract, listing.Asset.TokenID, listing.Seller, e.operator); err != nil {
		_ = e.storeListing(before)
		return err
	}
	if err := e.state.CommitmentClear(listingID); err != nil {
		return err
	}
	e.emit(NewListingCancelledEvent(listing))
	return nil
}
