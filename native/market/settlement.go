package market

import (
	"math/big"

	"nhbmarket/native/fees"
)

// settlementStep is one side effect of a terminal transition, paired with the
// compensation that reverses it when a later step fails. Settlement must
// leave no partial effect: either every step applies or none do.
type settlementStep struct {
	apply func() error
	undo  func() error
}

func runSettlement(steps []settlementStep) error {
	for i, step := range steps {
		if err := step.apply(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = steps[j].undo()
			}
			return err
		}
	}
	return nil
}

// settle executes the terminal transition for a sale in fixed order: active
// flag flip, seller payout, marketplace fee, royalty, asset hand-over. The
// flag flips before any external value transfer so reentrant calls observe
// the terminal state; a transfer failure unwinds every prior step including
// the flip.
func (e *Engine) settle(listing *Listing, buyer [20]byte, amount *big.Int, fromEscrow bool) (*fees.Breakdown, error) {
	breakdown, err := e.fees.Quote(amount, listing.Asset.Contract, listing.Asset.TokenID)
	if err != nil {
		return nil, err
	}
	rail := listing.PayRail
	contract := listing.Asset.Contract
	tokenID := listing.Asset.TokenID
	feeRecipient := e.fees.FeeRecipient()
	before := listing.Clone()

	pay := func(to [20]byte, amt *big.Int) settlementStep {
		if fromEscrow {
			return settlementStep{
				apply: func() error { return e.ledger.Release(rail, buyer, to, amt) },
				undo:  func() error { return e.ledger.HoldFrom(rail, to, buyer, amt) },
			}
		}
		return settlementStep{
			apply: func() error { return e.rail.Transfer(rail, buyer, to, amt) },
			undo:  func() error { return e.rail.Transfer(rail, to, buyer, amt) },
		}
	}

	steps := []settlementStep{{
		apply: func() error {
			listing.Active = false
			return e.storeListing(listing)
		},
		undo: func() error {
			listing.Active = true
			return e.storeListing(before)
		},
	}}
	if breakdown.SellerAmount.Sign() > 0 {
		steps = append(steps, pay(listing.Seller, breakdown.SellerAmount))
	}
	if breakdown.MarketplaceFee.Sign() > 0 {
		steps = append(steps, pay(feeRecipient, breakdown.MarketplaceFee))
	}
	if breakdown.RoyaltyAmount.Sign() > 0 {
		steps = append(steps, pay(breakdown.RoyaltyReceiver, breakdown.RoyaltyAmount))
	}
	steps = append(steps, settlementStep{
		apply: func() error { return e.custody.ReleaseCustody(contract, tokenID, buyer, e.operator) },
		undo:  func() error { return e.custody.TakeCustody(contract, tokenID, buyer, e.operator) },
	})
	if err := runSettlement(steps); err != nil {
		return nil, err
	}
	return breakdown, nil
}
