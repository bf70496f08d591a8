package escrow

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// NativeRail is the sentinel identifier for the platform's native currency.
// Any other rail value must be the hex address of a fungible-token contract.
const NativeRail = "NHB"

const railAddressHexLength = 40

// PaymentRail moves value between accounts on a given rail. The sentinel
// NativeRail denotes the native currency; any other identifier is treated as
// a token contract address.
type PaymentRail interface {
	Transfer(rail string, from, to [20]byte, amount *big.Int) error
}

// NormalizeRail validates a rail identifier and returns its canonical form:
// the uppercase native sentinel, or a lowercase 0x-prefixed token address.
func NormalizeRail(rail string) (string, error) {
	trimmed := strings.TrimSpace(rail)
	if strings.EqualFold(trimmed, NativeRail) {
		return NativeRail, nil
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		trimmed = trimmed[2:]
	}
	if len(trimmed) != railAddressHexLength {
		return "", fmt.Errorf("escrow: rail must be %q or a 20-byte token address", NativeRail)
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", fmt.Errorf("escrow: decode rail address: %w", err)
	}
	return "0x" + strings.ToLower(trimmed), nil
}
