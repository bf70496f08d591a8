package bank

import (
	"errors"
	"fmt"
	"math/big"

	"nhbmarket/native/escrow"
)

var (
	errNilState          = errors.New("bank: state not configured")
	ErrInsufficientFunds = errors.New("bank: insufficient balance")
)

type ledgerState interface {
	BankBalanceGet(rail string, account [20]byte) (*big.Int, error)
	BankBalancePut(rail string, account [20]byte, amount *big.Int) error
}

// Ledger is the reference payment-rail collaborator: per-(rail, account)
// balances moved atomically between accounts. It satisfies
// escrow.PaymentRail for both the native rail and token rails.
type Ledger struct {
	state ledgerState
}

// NewLedger constructs a bank ledger over the supplied state backend.
func NewLedger(state ledgerState) *Ledger {
	return &Ledger{state: state}
}

// BalanceOf reports the account balance on the rail.
func (l *Ledger) BalanceOf(rail string, account [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	normalized, err := escrow.NormalizeRail(rail)
	if err != nil {
		return nil, err
	}
	balance, err := l.state.BankBalanceGet(normalized, account)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).Set(balance), nil
}

// Mint credits freshly issued value to the account. Intended for bootstrap
// and tests; production rails receive deposits out of band.
func (l *Ledger) Mint(rail string, account [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := escrow.NormalizeRail(rail)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("bank: mint amount must be positive")
	}
	balance, err := l.state.BankBalanceGet(normalized, account)
	if err != nil {
		return err
	}
	if balance == nil {
		balance = big.NewInt(0)
	}
	return l.state.BankBalancePut(normalized, account, new(big.Int).Add(balance, amount))
}

// Transfer moves value between two accounts on the rail. Zero-amount
// transfers are a no-op; negative amounts are rejected.
func (l *Ledger) Transfer(rail string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	normalized, err := escrow.NormalizeRail(rail)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("bank: negative transfer amount")
	}
	fromBalance, err := l.state.BankBalanceGet(normalized, from)
	if err != nil {
		return err
	}
	if fromBalance == nil || fromBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	toBalance, err := l.state.BankBalanceGet(normalized, to)
	if err != nil {
		return err
	}
	if toBalance == nil {
		toBalance = big.NewInt(0)
	}
	if err := l.state.BankBalancePut(normalized, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	if err := l.state.BankBalancePut(normalized, to, new(big.Int).Add(toBalance, amount)); err != nil {
		return err
	}
	return nil
}
