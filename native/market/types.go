package market

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nhbmarket/native/escrow"
)

// Protocol constants, in seconds unless noted. The minimum bid increment is
// fixed at listing creation as a fraction of the original list price; it is
// deliberately not recomputed against the running highest bid.
const (
	MinAuctionDuration int64 = 24 * 60 * 60
	MinTimeBetweenBids int64 = 3 * 60
	CommitRevealWindow int64 = 10 * 60

	minBidIncrementBps int64 = 500
	bpsDenominator     int64 = 10_000
)

// AssetRef identifies one unique asset: a contract plus token id pair.
type AssetRef struct {
	Contract [20]byte `json:"contract"`
	TokenID  *big.Int `json:"tokenId"`
}

// Clone returns a deep copy of the asset reference.
func (a AssetRef) Clone() AssetRef {
	clone := AssetRef{Contract: a.Contract}
	if a.TokenID != nil {
		clone.TokenID = new(big.Int).Set(a.TokenID)
	} else {
		clone.TokenID = big.NewInt(0)
	}
	return clone
}

// Listing captures one asset offered for sale, fixed-price or auction. The
// identifier is a monotonically increasing integer and is never reused.
type Listing struct {
	ID              uint64   `json:"id"`
	Seller          [20]byte `json:"seller"`
	Asset           AssetRef `json:"asset"`
	Price           *big.Int `json:"price"`
	PayRail         string   `json:"payRail"`
	Active          bool     `json:"active"`
	Auction         bool     `json:"auction"`
	AuctionEnd      int64    `json:"auctionEnd"`
	HighestBid      *big.Int `json:"highestBid"`
	HighestBidder   [20]byte `json:"highestBidder"`
	MinBidIncrement *big.Int `json:"minBidIncrement"`
	LastBidTime     int64    `json:"lastBidTime"`
	CreatedAt       int64    `json:"createdAt"`
}

// Clone returns a deep copy of the listing so callers can safely mutate the
// copy without affecting the stored instance.
func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Asset = l.Asset.Clone()
	if l.Price != nil {
		clone.Price = new(big.Int).Set(l.Price)
	} else {
		clone.Price = big.NewInt(0)
	}
	if l.HighestBid != nil {
		clone.HighestBid = new(big.Int).Set(l.HighestBid)
	} else {
		clone.HighestBid = big.NewInt(0)
	}
	if l.MinBidIncrement != nil {
		clone.MinBidIncrement = new(big.Int).Set(l.MinBidIncrement)
	} else {
		clone.MinBidIncrement = big.NewInt(0)
	}
	return &clone
}

// SanitizeListing validates and normalises the supplied listing, returning a
// cloned instance with canonical rail casing and non-nil amount fields. The
// function does not mutate the original value.
func SanitizeListing(l *Listing) (*Listing, error) {
	if l == nil {
		return nil, fmt.Errorf("market: nil listing")
	}
	clone := l.Clone()
	rail, err := escrow.NormalizeRail(clone.PayRail)
	if err != nil {
		return nil, err
	}
	clone.PayRail = rail
	if clone.Price.Sign() <= 0 {
		return nil, fmt.Errorf("market: listing price must be positive")
	}
	if clone.HighestBid.Sign() < 0 {
		return nil, fmt.Errorf("market: highest bid must be non-negative")
	}
	if !clone.Auction && clone.AuctionEnd != 0 {
		return nil, fmt.Errorf("market: fixed-price listing must not carry an auction end time")
	}
	if clone.Auction && clone.AuctionEnd < clone.CreatedAt+MinAuctionDuration {
		return nil, fmt.Errorf("market: auction end before minimum duration")
	}
	return clone, nil
}

// MinIncrementFor derives the fixed minimum raise for a list price.
func MinIncrementFor(price *big.Int) *big.Int {
	if price == nil {
		return big.NewInt(0)
	}
	increment := new(big.Int).Mul(price, big.NewInt(minBidIncrementBps))
	return increment.Div(increment, big.NewInt(bpsDenominator))
}

// BidCommitment is the per-bidder auction sub-state stored between the commit
// and reveal phases. Commitments never move funds.
type BidCommitment struct {
	Bidder      [20]byte `json:"bidder"`
	Hash        [32]byte `json:"hash"`
	CommittedAt int64    `json:"committedAt"`
}

// Clone returns a copy of the commitment.
func (c *BidCommitment) Clone() *BidCommitment {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// CommitmentHash binds the bidder identity into the sealed bid so a
// commitment cannot be replayed or reassigned to a different caller:
// keccak256(bidder || amount as a 32-byte word || nonce).
func CommitmentHash(bidder [20]byte, amount *big.Int, nonce [32]byte) [32]byte {
	padded := common.LeftPadBytes(amount.Bytes(), 32)
	return ethcrypto.Keccak256Hash(bidder[:], padded, nonce[:])
}
