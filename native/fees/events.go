package fees

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"nhbmarket/core/types"
)

const (
	EventTypeFeeUpdated          = "fees.updated"
	EventTypeFeeRecipientUpdated = "fees.recipient_updated"
	EventTypeRoyaltyPaid         = "fees.royalty_paid"
)

// NewFeeUpdatedEvent carries the old and new fee bps for auditors.
func NewFeeUpdatedEvent(oldBps, newBps uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"oldBps": strconv.FormatUint(uint64(oldBps), 10),
		"newBps": strconv.FormatUint(uint64(newBps), 10),
	}}
}

// NewFeeRecipientUpdatedEvent carries the old and new recipient addresses.
func NewFeeRecipientUpdatedEvent(oldRecipient, newRecipient [20]byte) *types.Event {
	return &types.Event{Type: EventTypeFeeRecipientUpdated, Attributes: map[string]string{
		"oldRecipient": hex.EncodeToString(oldRecipient[:]),
		"newRecipient": hex.EncodeToString(newRecipient[:]),
	}}
}

// NewRoyaltyPaidEvent records a creator royalty payout settled during a sale.
func NewRoyaltyPaidEvent(listingID uint64, receiver [20]byte, amount *big.Int) *types.Event {
	amt := "0"
	if amount != nil {
		amt = amount.String()
	}
	return &types.Event{Type: EventTypeRoyaltyPaid, Attributes: map[string]string{
		"listingId": strconv.FormatUint(listingID, 10),
		"receiver":  hex.EncodeToString(receiver[:]),
		"amount":    amt,
	}}
}
