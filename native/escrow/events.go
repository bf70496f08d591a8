package escrow

import (
	"encoding/hex"
	"math/big"

	"nhbmarket/core/types"
)

const (
	EventTypeHeld      = "escrow.held"
	EventTypeReleased  = "escrow.released"
	EventTypeWithdrawn = "escrow.withdrawn"
)

// NewHeldEvent returns the canonical event payload emitted when funds are
// pulled into the vault and credited to the payer's pending balance.
func NewHeldEvent(rail string, payer [20]byte, amount, balance *big.Int) *types.Event {
	attrs := map[string]string{
		"rail":    rail,
		"payer":   hex.EncodeToString(payer[:]),
		"amount":  bigString(amount),
		"balance": bigString(balance),
	}
	return &types.Event{Type: EventTypeHeld, Attributes: attrs}
}

// NewReleasedEvent returns the canonical event payload for a direct payout of
// held funds to a recipient.
func NewReleasedEvent(rail string, payer, recipient [20]byte, amount, balance *big.Int) *types.Event {
	attrs := map[string]string{
		"rail":      rail,
		"payer":     hex.EncodeToString(payer[:]),
		"recipient": hex.EncodeToString(recipient[:]),
		"amount":    bigString(amount),
		"balance":   bigString(balance),
	}
	return &types.Event{Type: EventTypeReleased, Attributes: attrs}
}

// NewWithdrawnEvent returns the canonical event payload for a self-service
// withdrawal of the caller's full pending balance.
func NewWithdrawnEvent(rail string, caller [20]byte, amount *big.Int) *types.Event {
	attrs := map[string]string{
		"rail":   rail,
		"caller": hex.EncodeToString(caller[:]),
		"amount": bigString(amount),
	}
	return &types.Event{Type: EventTypeWithdrawn, Attributes: attrs}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
