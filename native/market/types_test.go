package market

import (
	"math/big"
	"testing"

	"nhbmarket/native/escrow"
)

func TestCommitmentHashDeterministic(t *testing.T) {
	bidder := newTestAddress(0x01)
	nonce := [32]byte{0x05}
	first := CommitmentHash(bidder, big.NewInt(1000), nonce)
	second := CommitmentHash(bidder, big.NewInt(1000), nonce)
	if first != second {
		t.Fatalf("hash must be deterministic")
	}
}

func TestCommitmentHashBindsAllInputs(t *testing.T) {
	bidder := newTestAddress(0x01)
	nonce := [32]byte{0x05}
	base := CommitmentHash(bidder, big.NewInt(1000), nonce)

	if CommitmentHash(newTestAddress(0x02), big.NewInt(1000), nonce) == base {
		t.Fatalf("hash must bind the bidder")
	}
	if CommitmentHash(bidder, big.NewInt(1001), nonce) == base {
		t.Fatalf("hash must bind the amount")
	}
	if CommitmentHash(bidder, big.NewInt(1000), [32]byte{0x06}) == base {
		t.Fatalf("hash must bind the nonce")
	}
}

func TestMinIncrementFor(t *testing.T) {
	cases := []struct {
		price int64
		want  int64
	}{
		{1000, 50},
		{100, 5},
		{19, 0},
		{20, 1},
		{1, 0},
	}
	for _, tc := range cases {
		if got := MinIncrementFor(big.NewInt(tc.price)); got.Int64() != tc.want {
			t.Fatalf("MinIncrementFor(%d) = %s, want %d", tc.price, got, tc.want)
		}
	}
	if got := MinIncrementFor(nil); got.Sign() != 0 {
		t.Fatalf("nil price should yield zero increment")
	}
}

func TestSanitizeListing(t *testing.T) {
	base := func() *Listing {
		return &Listing{
			ID:         1,
			Seller:     newTestAddress(0x02),
			Asset:      AssetRef{Contract: newTestAddress(0x10), TokenID: big.NewInt(7)},
			Price:      big.NewInt(1000),
			PayRail:    "nhb",
			Active:     true,
			HighestBid: big.NewInt(0),
			CreatedAt:  1_700_000_000,
		}
	}

	sanitized, err := SanitizeListing(base())
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if sanitized.PayRail != escrow.NativeRail {
		t.Fatalf("rail should be canonical, got %q", sanitized.PayRail)
	}

	bad := base()
	bad.Price = big.NewInt(0)
	if _, err := SanitizeListing(bad); err == nil {
		t.Fatalf("zero price should be rejected")
	}

	bad = base()
	bad.AuctionEnd = bad.CreatedAt + MinAuctionDuration
	if _, err := SanitizeListing(bad); err == nil {
		t.Fatalf("fixed-price listing must not carry an auction end time")
	}

	bad = base()
	bad.Auction = true
	bad.AuctionEnd = bad.CreatedAt + MinAuctionDuration - 1
	if _, err := SanitizeListing(bad); err == nil {
		t.Fatalf("short auction should be rejected")
	}

	ok := base()
	ok.Auction = true
	ok.AuctionEnd = ok.CreatedAt + MinAuctionDuration
	if _, err := SanitizeListing(ok); err != nil {
		t.Fatalf("minimum-duration auction should pass: %v", err)
	}
}

func TestListingCloneIsDeep(t *testing.T) {
	listing := &Listing{
		ID:              1,
		Asset:           AssetRef{Contract: newTestAddress(0x10), TokenID: big.NewInt(7)},
		Price:           big.NewInt(1000),
		PayRail:         escrow.NativeRail,
		HighestBid:      big.NewInt(500),
		MinBidIncrement: big.NewInt(50),
	}
	clone := listing.Clone()
	clone.Price.SetInt64(1)
	clone.HighestBid.SetInt64(1)
	clone.Asset.TokenID.SetInt64(1)
	if listing.Price.Int64() != 1000 || listing.HighestBid.Int64() != 500 || listing.Asset.TokenID.Int64() != 7 {
		t.Fatalf("clone must not alias the original's amounts")
	}
}
