package custody

import (
	"errors"
	"math/big"
	"testing"
)

func newTestAddress(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func newTestRegistry(t *testing.T) (*Registry, [20]byte, [20]byte, [20]byte, *big.Int) {
	t.Helper()
	operator := newTestAddress(0x01)
	owner := newTestAddress(0x02)
	contract := newTestAddress(0x10)
	tokenID := big.NewInt(7)
	registry := NewRegistry(operator)
	if err := registry.Register(contract, tokenID, owner); err != nil {
		t.Fatalf("register: %v", err)
	}
	return registry, operator, owner, contract, tokenID
}

func TestRegisterRejectsDuplicatesAndBadIDs(t *testing.T) {
	registry, _, owner, contract, tokenID := newTestRegistry(t)
	if err := registry.Register(contract, tokenID, owner); !errors.Is(err, ErrAssetExists) {
		t.Fatalf("expected ErrAssetExists, got %v", err)
	}
	if err := registry.Register(contract, big.NewInt(-1), owner); !errors.Is(err, ErrInvalidTokenID) {
		t.Fatalf("expected ErrInvalidTokenID, got %v", err)
	}
	if err := registry.Register(contract, nil, owner); !errors.Is(err, ErrInvalidTokenID) {
		t.Fatalf("expected ErrInvalidTokenID, got %v", err)
	}
}

func TestVerifyOwnershipAndApproval(t *testing.T) {
	registry, operator, owner, contract, tokenID := newTestRegistry(t)
	if !registry.VerifyOwnership(contract, tokenID, owner) {
		t.Fatalf("owner should verify")
	}
	if registry.VerifyOwnership(contract, tokenID, newTestAddress(0x55)) {
		t.Fatalf("stranger should not verify")
	}
	if registry.VerifyApproval(contract, tokenID, operator) {
		t.Fatalf("approval should start empty")
	}
	if err := registry.Approve(contract, tokenID, owner, operator); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !registry.VerifyApproval(contract, tokenID, operator) {
		t.Fatalf("operator should be approved")
	}
	if err := registry.Approve(contract, tokenID, newTestAddress(0x55), operator); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestCustodyLifecycle(t *testing.T) {
	registry, operator, owner, contract, tokenID := newTestRegistry(t)
	if err := registry.Approve(contract, tokenID, owner, operator); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := registry.TakeCustody(contract, tokenID, owner, newTestAddress(0x55)); !errors.Is(err, ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if err := registry.TakeCustody(contract, tokenID, owner, operator); err != nil {
		t.Fatalf("take custody: %v", err)
	}
	if err := registry.TakeCustody(contract, tokenID, owner, operator); !errors.Is(err, ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
	// Taking custody consumes the approval.
	if registry.VerifyApproval(contract, tokenID, operator) {
		t.Fatalf("approval should be cleared on custody")
	}

	recipient := newTestAddress(0x03)
	if err := registry.ReleaseCustody(contract, tokenID, recipient, operator); err != nil {
		t.Fatalf("release custody: %v", err)
	}
	got, held, err := registry.OwnerOf(contract, tokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if held || got != recipient {
		t.Fatalf("release should hand ownership to the recipient")
	}
	if err := registry.ReleaseCustody(contract, tokenID, recipient, operator); !errors.Is(err, ErrNotInCustody) {
		t.Fatalf("expected ErrNotInCustody, got %v", err)
	}
}

func TestTakeCustodyOwnerMismatch(t *testing.T) {
	registry, operator, _, contract, tokenID := newTestRegistry(t)
	if err := registry.TakeCustody(contract, tokenID, newTestAddress(0x55), operator); !errors.Is(err, ErrOwnerMismatch) {
		t.Fatalf("expected ErrOwnerMismatch, got %v", err)
	}
}

func TestTransferDirect(t *testing.T) {
	registry, operator, owner, contract, tokenID := newTestRegistry(t)
	recipient := newTestAddress(0x03)
	if err := registry.TransferDirect(contract, tokenID, owner, recipient, newTestAddress(0x55)); !errors.Is(err, ErrNotOperator) {
		t.Fatalf("expected ErrNotOperator, got %v", err)
	}
	if err := registry.TransferDirect(contract, tokenID, owner, recipient, operator); err != nil {
		t.Fatalf("transfer direct: %v", err)
	}
	got, held, err := registry.OwnerOf(contract, tokenID)
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if held || got != recipient {
		t.Fatalf("direct transfer should move ownership")
	}

	// Held assets move only through custody release.
	if err := registry.Approve(contract, tokenID, recipient, operator); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := registry.TakeCustody(contract, tokenID, recipient, operator); err != nil {
		t.Fatalf("take custody: %v", err)
	}
	if err := registry.TransferDirect(contract, tokenID, recipient, owner, operator); !errors.Is(err, ErrAlreadyHeld) {
		t.Fatalf("expected ErrAlreadyHeld, got %v", err)
	}
}

func TestUnknownAsset(t *testing.T) {
	registry := NewRegistry(newTestAddress(0x01))
	contract := newTestAddress(0x10)
	if registry.VerifyOwnership(contract, big.NewInt(1), newTestAddress(0x02)) {
		t.Fatalf("unknown asset should not verify")
	}
	if _, _, err := registry.OwnerOf(contract, big.NewInt(1)); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("expected ErrAssetNotFound, got %v", err)
	}
}

func TestAssetKeyDistinguishesTokens(t *testing.T) {
	contract := newTestAddress(0x10)
	if AssetKey(contract, big.NewInt(1)) == AssetKey(contract, big.NewInt(2)) {
		t.Fatalf("distinct token ids must map to distinct keys")
	}
	other := newTestAddress(0x11)
	if AssetKey(contract, big.NewInt(1)) == AssetKey(other, big.NewInt(1)) {
		t.Fatalf("distinct contracts must map to distinct keys")
	}
}
