package escrow

import (
	"errors"
	"fmt"
	"math/big"

	"nhbmarket/core/events"
	"nhbmarket/core/types"
	nativecommon "nhbmarket/native/common"
)

const ledgerModuleName = "escrow"

var (
	errNilState          = errors.New("escrow ledger: state not configured")
	errNilRail           = errors.New("escrow ledger: payment rail not configured")
	ErrInvalidAmount     = errors.New("escrow ledger: amount must be positive")
	ErrInsufficientHold  = errors.New("escrow ledger: release exceeds held balance")
	ErrNoFundsToWithdraw = errors.New("escrow ledger: no funds to withdraw")
)

type ledgerState interface {
	EscrowBalanceGet(rail string, account [20]byte) (*big.Int, error)
	EscrowBalancePut(rail string, account [20]byte, amount *big.Int) error
	EscrowVaultAddress(rail string) ([20]byte, error)
}

type ledgerEvent struct {
	evt *types.Event
}

func (e ledgerEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e ledgerEvent) Event() *types.Event { return e.evt }

// Ledger tracks per-(rail, account) pending balances backed by a module vault.
// Funds enter via Hold, leave via Release (settlement, out-bid refunds) or a
// single-owner Withdraw. The ledger never pays out more than it holds.
type Ledger struct {
	state   ledgerState
	rail    PaymentRail
	emitter events.Emitter
	pauses  nativecommon.PauseView
}

// NewLedger creates an escrow ledger with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewLedger() *Ledger {
	return &Ledger{emitter: events.NoopEmitter{}}
}

// SetState configures the state backend used by the ledger.
func (l *Ledger) SetState(state ledgerState) { l.state = state }

// SetPaymentRail configures the value-transfer collaborator.
func (l *Ledger) SetPaymentRail(rail PaymentRail) { l.rail = rail }

// SetPauses configures the pause view guarding ledger operations.
func (l *Ledger) SetPauses(p nativecommon.PauseView) { l.pauses = p }

// SetEmitter configures the event emitter used by the ledger. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

func (l *Ledger) emit(evt *types.Event) {
	if l == nil || l.emitter == nil || evt == nil {
		return
	}
	l.emitter.Emit(ledgerEvent{evt: evt})
}

func (l *Ledger) ready() error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.rail == nil {
		return errNilRail
	}
	return nativecommon.Guard(l.pauses, ledgerModuleName)
}

// Balance reports the pending balance held for the account on the rail.
func (l *Ledger) Balance(rail string, account [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeRail(rail)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.EscrowBalanceGet(normalized, account)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Hold pulls the amount from the payer into the module vault and credits the
// payer's pending balance. The transfer happens before the credit so a failed
// pull leaves the ledger untouched.
func (l *Ledger) Hold(rail string, payer [20]byte, amount *big.Int) error {
	return l.HoldFrom(rail, payer, payer, amount)
}

// HoldFrom pulls the amount from the source account into the module vault and
// credits the beneficiary's pending balance. Settlement compensation uses it
// to reverse a release without losing the original hold owner.
func (l *Ledger) HoldFrom(rail string, source, beneficiary [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	normalized, err := NormalizeRail(rail)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	vault, err := l.state.EscrowVaultAddress(normalized)
	if err != nil {
		return err
	}
	if err := l.rail.Transfer(normalized, source, vault, amount); err != nil {
		return err
	}
	balance, err := l.state.EscrowBalanceGet(normalized, beneficiary)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	updated := new(big.Int).Add(balance, amount)
	if err := l.state.EscrowBalancePut(normalized, beneficiary, updated); err != nil {
		return err
	}
	l.emit(NewHeldEvent(normalized, beneficiary, amount, updated))
	return nil
}

// Release pays held funds out of the vault directly to the recipient,
// decrementing the payer's pending balance. Releases exceeding the held
// balance are rejected.
func (l *Ledger) Release(rail string, payer, recipient [20]byte, amount *big.Int) error {
	if err := l.ready(); err != nil {
		return err
	}
	normalized, err := NormalizeRail(rail)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.EscrowBalanceGet(normalized, payer)
	if err != nil {
		return err
	}
	if balance == nil || balance.Cmp(amount) < 0 {
		return ErrInsufficientHold
	}
	vault, err := l.state.EscrowVaultAddress(normalized)
	if err != nil {
		return err
	}
	updated := new(big.Int).Sub(balance, amount)
	if err := l.state.EscrowBalancePut(normalized, payer, updated); err != nil {
		return err
	}
	if err := l.rail.Transfer(normalized, vault, recipient, amount); err != nil {
		// Restore the hold so a failed payout leaves the ledger as it was.
		if putErr := l.state.EscrowBalancePut(normalized, payer, balance); putErr != nil {
			return fmt.Errorf("escrow ledger: payout failed (%v) and hold restore failed: %w", err, putErr)
		}
		return err
	}
	l.emit(NewReleasedEvent(normalized, payer, recipient, amount, updated))
	return nil
}

// Withdraw zeroes the caller's pending balance and pays it out in full.
func (l *Ledger) Withdraw(rail string, caller [20]byte) (*big.Int, error) {
	if err := l.ready(); err != nil {
		return nil, err
	}
	normalized, err := NormalizeRail(rail)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.EscrowBalanceGet(normalized, caller)
	if err != nil {
		return nil, err
	}
	if balance == nil || balance.Sign() == 0 {
		return nil, ErrNoFundsToWithdraw
	}
	amount := new(big.Int).Set(balance)
	vault, err := l.state.EscrowVaultAddress(normalized)
	if err != nil {
		return nil, err
	}
	if err := l.state.EscrowBalancePut(normalized, caller, big.NewInt(0)); err != nil {
		return nil, err
	}
	if err := l.rail.Transfer(normalized, vault, caller, amount); err != nil {
		if putErr := l.state.EscrowBalancePut(normalized, caller, amount); putErr != nil {
			return nil, fmt.Errorf("escrow ledger: withdrawal failed (%v) and hold restore failed: %w", err, putErr)
		}
		return nil, err
	}
	l.emit(NewWithdrawnEvent(normalized, caller, amount))
	return amount, nil
}
