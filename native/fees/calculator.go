package fees

import (
	"errors"
	"math/big"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
)

// MaxFeeBps caps the marketplace fee at 100%.
const MaxFeeBps uint32 = 10_000

var (
	ErrNotOwner         = errors.New("fees: caller is not the owner")
	ErrFeeBpsOutOfRange = errors.New("fees: fee bps exceeds 10000")
	ErrInvalidRecipient = errors.New("fees: fee recipient must not be the zero address")
	ErrInvalidAmount    = errors.New("fees: sale amount must be positive")
	ErrFeeExceedsSale   = errors.New("fees: fee and royalty exceed sale amount")
)

// RoyaltyLookup resolves the creator royalty owed on a sale. Implementations
// query the asset's own contract; any error degrades to zero royalty and must
// never abort the sale.
type RoyaltyLookup interface {
	RoyaltyInfo(contract [20]byte, tokenID, saleAmount *big.Int) (receiver [20]byte, amount *big.Int, err error)
}

type calculatorState interface {
	FeeConfigGet() (feeBps uint32, recipient [20]byte, ok bool, err error)
	FeeConfigPut(feeBps uint32, recipient [20]byte) error
}

// Breakdown is the settlement split for a single sale. The amounts always
// satisfy SellerAmount + MarketplaceFee + RoyaltyAmount == sale amount.
type Breakdown struct {
	SellerAmount    *big.Int
	MarketplaceFee  *big.Int
	RoyaltyReceiver [20]byte
	RoyaltyAmount   *big.Int
}

type feeEvent struct {
	evt *types.Event
}

func (e feeEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e feeEvent) Event() *types.Event { return e.evt }

// Calculator computes the marketplace-cut and creator-royalty split for sale
// amounts. Fee configuration is owner-gated and persisted through the state
// backend when one is attached.
type Calculator struct {
	owner     Owner
	feeBps    uint32
	recipient [20]byte
	state     calculatorState
	royalties RoyaltyLookup
	emitter   events.Emitter
}

// Owner is the capability token gating fee configuration changes: a single
// privileged address, typically transferred to the coordinating engine's
// administrator at bootstrap.
type Owner [20]byte

// NewCalculator constructs a calculator with the supplied initial fee
// configuration and a no-op emitter.
func NewCalculator(owner Owner, feeBps uint32, recipient [20]byte) (*Calculator, error) {
	if feeBps > MaxFeeBps {
		return nil, ErrFeeBpsOutOfRange
	}
	if recipient == ([20]byte{}) {
		return nil, ErrInvalidRecipient
	}
	return &Calculator{
		owner:     owner,
		feeBps:    feeBps,
		recipient: recipient,
		emitter:   events.NoopEmitter{},
	}, nil
}

// SetState attaches a persistence backend. A previously stored configuration
// takes precedence over the constructor defaults.
func (c *Calculator) SetState(state calculatorState) error {
	c.state = state
	if state == nil {
		return nil
	}
	feeBps, recipient, ok, err := state.FeeConfigGet()
	if err != nil {
		return err
	}
	if ok {
		c.feeBps = feeBps
		c.recipient = recipient
	}
	return nil
}

// SetRoyaltyLookup configures the best-effort royalty collaborator.
func (c *Calculator) SetRoyaltyLookup(lookup RoyaltyLookup) { c.royalties = lookup }

// SetEmitter configures the event emitter. Passing nil resets the emitter to
// a no-op implementation.
func (c *Calculator) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		c.emitter = events.NoopEmitter{}
		return
	}
	c.emitter = emitter
}

func (c *Calculator) emit(evt *types.Event) {
	if c == nil || c.emitter == nil || evt == nil {
		return
	}
	c.emitter.Emit(feeEvent{evt: evt})
}

// FeeBps reports the configured marketplace fee in basis points.
func (c *Calculator) FeeBps() uint32 { return c.feeBps }

// FeeRecipient reports the configured marketplace fee recipient.
func (c *Calculator) FeeRecipient() [20]byte { return c.recipient }

// Quote computes the settlement split for the sale amount. The marketplace
// fee truncates on integer division; the royalty lookup is best-effort and
// contributes zero on any failure. The split is rejected outright when fee
// plus royalty would exceed the sale amount, rather than underflowing the
// seller payout.
func (c *Calculator) Quote(saleAmount *big.Int, contract [20]byte, tokenID *big.Int) (*Breakdown, error) {
	if saleAmount == nil || saleAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	fee := new(big.Int).Mul(saleAmount, new(big.Int).SetUint64(uint64(c.feeBps)))
	fee.Div(fee, big.NewInt(int64(MaxFeeBps)))

	royaltyReceiver, royalty := c.royaltyOf(contract, tokenID, saleAmount)

	total := new(big.Int).Add(fee, royalty)
	if total.Cmp(saleAmount) > 0 {
		return nil, ErrFeeExceedsSale
	}
	return &Breakdown{
		SellerAmount:    new(big.Int).Sub(saleAmount, total),
		MarketplaceFee:  fee,
		RoyaltyReceiver: royaltyReceiver,
		RoyaltyAmount:   royalty,
	}, nil
}

func (c *Calculator) royaltyOf(contract [20]byte, tokenID, saleAmount *big.Int) ([20]byte, *big.Int) {
	if c.royalties == nil {
		return [20]byte{}, big.NewInt(0)
	}
	receiver, amount, err := c.royalties.RoyaltyInfo(contract, tokenID, saleAmount)
	if err != nil || amount == nil || amount.Sign() <= 0 || receiver == ([20]byte{}) {
		return [20]byte{}, big.NewInt(0)
	}
	return receiver, new(big.Int).Set(amount)
}

// UpdateMarketplaceFee changes the fee basis points. Owner-only.
func (c *Calculator) UpdateMarketplaceFee(caller [20]byte, newBps uint32) error {
	if caller != [20]byte(c.owner) {
		return ErrNotOwner
	}
	if newBps > MaxFeeBps {
		return ErrFeeBpsOutOfRange
	}
	oldBps := c.feeBps
	c.feeBps = newBps
	if err := c.persist(); err != nil {
		c.feeBps = oldBps
		return err
	}
	c.emit(NewFeeUpdatedEvent(oldBps, newBps))
	return nil
}

// UpdateFeeRecipient changes the fee recipient. Owner-only.
func (c *Calculator) UpdateFeeRecipient(caller [20]byte, newRecipient [20]byte) error {
	if caller != [20]byte(c.owner) {
		return ErrNotOwner
	}
	if newRecipient == ([20]byte{}) {
		return ErrInvalidRecipient
	}
	oldRecipient := c.recipient
	c.recipient = newRecipient
	if err := c.persist(); err != nil {
		c.recipient = oldRecipient
		return err
	}
	c.emit(NewFeeRecipientUpdatedEvent(oldRecipient, newRecipient))
	return nil
}

func (c *Calculator) persist() error {
	if c.state == nil {
		return nil
	}
	return c.state.FeeConfigPut(c.feeBps, c.recipient)
}
