package custody

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrAssetNotFound  = errors.New("custody: asset not registered")
	ErrNotOperator    = errors.New("custody: caller is not the bound operator")
	ErrNotInCustody   = errors.New("custody: asset not held in custody")
	ErrAlreadyHeld    = errors.New("custody: asset already in custody")
	ErrOwnerMismatch  = errors.New("custody: transfer source is not the owner")
	ErrAssetExists    = errors.New("custody: asset already registered")
	ErrInvalidTokenID = errors.New("custody: token id must be non-negative")
)

type asset struct {
	owner     [20]byte
	approved  [20]byte
	inCustody bool
}

// AssetKey derives the deterministic registry key for a contract and token id.
func AssetKey(contract [20]byte, tokenID *big.Int) [32]byte {
	padded := common.LeftPadBytes(tokenID.Bytes(), 32)
	return ethcrypto.Keccak256Hash(contract[:], padded)
}

// Registry is the reference asset-custody collaborator. It tracks per-asset
// ownership, transfer approval and a single in-custody flag; only the bound
// operator (the marketplace engine's address) may move assets. The registry
// holds no state the core depends on beyond that flag.
type Registry struct {
	mu       sync.Mutex
	operator [20]byte
	assets   map[[32]byte]*asset
}

// NewRegistry constructs a registry bound to the supplied operator address.
func NewRegistry(operator [20]byte) *Registry {
	return &Registry{
		operator: operator,
		assets:   make(map[[32]byte]*asset),
	}
}

// Register records a freshly minted asset under its current owner.
func (r *Registry) Register(contract [20]byte, tokenID *big.Int, owner [20]byte) error {
	if tokenID == nil || tokenID.Sign() < 0 {
		return ErrInvalidTokenID
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := AssetKey(contract, tokenID)
	if _, ok := r.assets[key]; ok {
		return ErrAssetExists
	}
	r.assets[key] = &asset{owner: owner}
	return nil
}

// Approve authorizes an operator to take the asset from its owner.
func (r *Registry) Approve(contract [20]byte, tokenID *big.Int, owner, operator [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[AssetKey(contract, tokenID)]
	if !ok {
		return ErrAssetNotFound
	}
	if a.owner != owner {
		return ErrOwnerMismatch
	}
	a.approved = operator
	return nil
}

// VerifyOwnership reports whether the claimed owner holds the asset.
func (r *Registry) VerifyOwnership(contract [20]byte, tokenID *big.Int, claimedOwner [20]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[AssetKey(contract, tokenID)]
	return ok && a.owner == claimedOwner
}

// VerifyApproval reports whether the operator may take the asset.
func (r *Registry) VerifyApproval(contract [20]byte, tokenID *big.Int, operator [20]byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[AssetKey(contract, tokenID)]
	return ok && a.approved == operator
}

// TakeCustody moves the asset from its owner into protocol custody.
func (r *Registry) TakeCustody(contract [20]byte, tokenID *big.Int, from, caller [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.operator {
		return ErrNotOperator
	}
	a, ok := r.assets[AssetKey(contract, tokenID)]
	if !ok {
		return ErrAssetNotFound
	}
	if a.inCustody {
		return ErrAlreadyHeld
	}
	if a.owner != from {
		return ErrOwnerMismatch
	}
	a.inCustody = true
	a.approved = [20]byte{}
	return nil
}

// ReleaseCustody hands a held asset to the recipient and clears the flag.
func (r *Registry) ReleaseCustody(contract [20]byte, tokenID *big.Int, to, caller [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.operator {
		return ErrNotOperator
	}
	a, ok := r.assets[AssetKey(contract, tokenID)]
	if !ok {
		return ErrAssetNotFound
	}
	if !a.inCustody {
		return ErrNotInCustody
	}
	a.inCustody = false
	a.owner = to
	return nil
}

// TransferDirect moves an uncustodied asset between two owners.
func (r *Registry) TransferDirect(contract [20]byte, tokenID *big.Int, from, to, caller [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.operator {
		return ErrNotOperator
	}
	a, ok := r.assets[AssetKey(contract, tokenID)]
	if !ok {
		return ErrAssetNotFound
	}
	if a.inCustody {
		return ErrAlreadyHeld
	}
	if a.owner != from {
		return ErrOwnerMismatch
	}
	a.owner = to
	a.approved = [20]byte{}
	return nil
}

// OwnerOf reports the current owner and custody flag for inspection.
func (r *Registry) OwnerOf(contract [20]byte, tokenID *big.Int) ([20]byte, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[AssetKey(contract, tokenID)]
	if !ok {
		return [20]byte{}, false, ErrAssetNotFound
	}
	return a.owner, a.inCustody, nil
}
