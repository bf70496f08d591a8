package state

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"nhbmarket/native/market"
	"nhbmarket/storage"
)

const (
	listingPrefix    = "market/listing/"
	listingSeqKey    = "market/listing-seq"
	commitmentPrefix = "market/commit/"
	escrowPrefix     = "escrow/balance/"
	bankPrefix       = "bank/balance/"
	feeConfigKey     = "fees/config"

	vaultSalt = "nhbmarket/escrow/vault/"
)

// Store persists marketplace state as JSON values on a key-value database.
// It backs the market engine, the escrow ledger, the bank rail and the fee
// calculator; each component sees only its own interface slice.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

// NewStore wraps the supplied database.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func listingKey(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return []byte(listingPrefix + hex.EncodeToString(buf[:]))
}

func commitmentKey(listingID uint64, bidder [20]byte) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], listingID)
	return []byte(commitmentPrefix + hex.EncodeToString(buf[:]) + "/" + hex.EncodeToString(bidder[:]))
}

func commitmentScope(listingID uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], listingID)
	return []byte(commitmentPrefix + hex.EncodeToString(buf[:]) + "/")
}

func balanceKey(prefix, rail string, account [20]byte) []byte {
	return []byte(prefix + rail + "/" + hex.EncodeToString(account[:]))
}

// --- market engine state ---

// ListingPut stores a listing record keyed by its identifier.
func (s *Store) ListingPut(l *market.Listing) error {
	if l == nil {
		return fmt.Errorf("state: nil listing")
	}
	encoded, err := json.Marshal(l)
	if err != nil {
		return err
	}
	return s.db.Put(listingKey(l.ID), encoded)
}

// ListingGet loads a listing record by identifier.
func (s *Store) ListingGet(id uint64) (*market.Listing, bool, error) {
	raw, err := s.db.Get(listingKey(id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	listing := new(market.Listing)
	if err := json.Unmarshal(raw, listing); err != nil {
		return nil, false, err
	}
	return listing, true, nil
}

// ListingDelete removes a listing record.
func (s *Store) ListingDelete(id uint64) error {
	return s.db.Delete(listingKey(id))
}

// ListingNextID increments and returns the monotonic listing counter.
// Identifiers start at 1 and are never reused.
func (s *Store) ListingNextID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next uint64 = 1
	raw, err := s.db.Get([]byte(listingSeqKey))
	if err == nil {
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: malformed listing counter")
		}
		next = binary.BigEndian.Uint64(raw) + 1
	} else if !errors.Is(err, storage.ErrKeyNotFound) {
		return 0, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Put([]byte(listingSeqKey), buf[:]); err != nil {
		return 0, err
	}
	return next, nil
}

// CommitmentPut stores a bidder's sealed bid for the listing, replacing any
// previous commitment by the same bidder.
func (s *Store) CommitmentPut(listingID uint64, c *market.BidCommitment) error {
	if c == nil {
		return fmt.Errorf("state: nil commitment")
	}
	encoded, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Put(commitmentKey(listingID, c.Bidder), encoded)
}

// CommitmentGet loads the bidder's sealed bid for the listing.
func (s *Store) CommitmentGet(listingID uint64, bidder [20]byte) (*market.BidCommitment, bool, error) {
	raw, err := s.db.Get(commitmentKey(listingID, bidder))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	commitment := new(market.BidCommitment)
	if err := json.Unmarshal(raw, commitment); err != nil {
		return nil, false, err
	}
	return commitment, true, nil
}

// CommitmentDelete removes the bidder's sealed bid for the listing.
func (s *Store) CommitmentDelete(listingID uint64, bidder [20]byte) error {
	return s.db.Delete(commitmentKey(listingID, bidder))
}

// CommitmentClear removes every outstanding commitment for the listing,
// bounding its sub-state when the listing terminates.
func (s *Store) CommitmentClear(listingID uint64) error {
	keys := make([][]byte, 0)
	err := s.db.IteratePrefix(commitmentScope(listingID), func(key, _ []byte) bool {
		keys = append(keys, append([]byte(nil), key...))
		return true
	})
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// --- escrow ledger state ---

// EscrowBalanceGet loads the pending balance for the account on the rail.
func (s *Store) EscrowBalanceGet(rail string, account [20]byte) (*big.Int, error) {
	return s.balanceGet(escrowPrefix, rail, account)
}

// EscrowBalancePut stores the pending balance for the account on the rail.
func (s *Store) EscrowBalancePut(rail string, account [20]byte, amount *big.Int) error {
	return s.balancePut(escrowPrefix, rail, account, amount)
}

// EscrowVaultAddress derives the deterministic module vault address for the
// rail. Vaults exist per rail so balances are never aggregated across rails.
func (s *Store) EscrowVaultAddress(rail string) ([20]byte, error) {
	var addr [20]byte
	if rail == "" {
		return addr, fmt.Errorf("state: rail required")
	}
	digest := ethcrypto.Keccak256([]byte(vaultSalt), []byte(rail))
	copy(addr[:], digest[12:])
	return addr, nil
}

// --- bank rail state ---

// BankBalanceGet loads the account balance on the rail.
func (s *Store) BankBalanceGet(rail string, account [20]byte) (*big.Int, error) {
	return s.balanceGet(bankPrefix, rail, account)
}

// BankBalancePut stores the account balance on the rail.
func (s *Store) BankBalancePut(rail string, account [20]byte, amount *big.Int) error {
	return s.balancePut(bankPrefix, rail, account, amount)
}

func (s *Store) balanceGet(prefix, rail string, account [20]byte) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(prefix, rail, account))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	balance, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state: malformed balance for %s", balanceKey(prefix, rail, account))
	}
	return balance, nil
}

func (s *Store) balancePut(prefix, rail string, account [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: balance must be non-negative")
	}
	return s.db.Put(balanceKey(prefix, rail, account), []byte(amount.String()))
}

// --- fee calculator state ---

type storedFeeConfig struct {
	FeeBps    uint32 `json:"feeBps"`
	Recipient string `json:"recipient"`
}

// FeeConfigGet loads the persisted fee configuration if present.
func (s *Store) FeeConfigGet() (uint32, [20]byte, bool, error) {
	var recipient [20]byte
	raw, err := s.db.Get([]byte(feeConfigKey))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, recipient, false, nil
	}
	if err != nil {
		return 0, recipient, false, err
	}
	var cfg storedFeeConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return 0, recipient, false, err
	}
	decoded, err := hex.DecodeString(cfg.Recipient)
	if err != nil || len(decoded) != len(recipient) {
		return 0, recipient, false, fmt.Errorf("state: malformed fee recipient")
	}
	copy(recipient[:], decoded)
	return cfg.FeeBps, recipient, true, nil
}

// FeeConfigPut persists the fee configuration.
func (s *Store) FeeConfigPut(feeBps uint32, recipient [20]byte) error {
	encoded, err := json.Marshal(storedFeeConfig{
		FeeBps:    feeBps,
		Recipient: hex.EncodeToString(recipient[:]),
	})
	if err != nil {
		return err
	}
	return s.db.Put([]byte(feeConfigKey), encoded)
}
