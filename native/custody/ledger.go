package custody

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"otcdesk/core/types"
)

// Ledger errors.
var (
	ErrInsufficientFunds = errors.New("custody: insufficient funds")
	ErrInvalidTransfer   = errors.New("custody: invalid transfer")
	ErrBalanceOverflow   = errors.New("custody: balance overflow")
)

type balanceKey struct {
	account types.Address
	asset   types.Address
}

// MemoryLedger is an in-memory custody ledger keyed by (account, asset). It
// backs tests and single-process deployments; persistent deployments use the
// storage-backed ledger so transfers share the entity transaction.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[balanceKey]uint64
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[balanceKey]uint64)}
}

// Mint credits an account out of thin air. Used to fund test fixtures and
// genesis balances.
func (l *MemoryLedger) Mint(account, asset types.Address, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := balanceKey{account: account, asset: asset}
	if l.balances[key] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	l.balances[key] += amount
	return nil
}

// Transfer moves amount of asset between accounts. A zero amount is a no-op.
func (l *MemoryLedger) Transfer(from, to, asset types.Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("%w: zero account", ErrInvalidTransfer)
	}
	if amount == 0 {
		return nil
	}
	if from == to {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromKey := balanceKey{account: from, asset: asset}
	toKey := balanceKey{account: to, asset: asset}
	if l.balances[fromKey] < amount {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from.Hex(), l.balances[fromKey], amount)
	}
	if l.balances[toKey] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	l.balances[fromKey] -= amount
	l.balances[toKey] += amount
	return nil
}

// Balance returns the current balance for (account, asset).
func (l *MemoryLedger) Balance(account, asset types.Address) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[balanceKey{account: account, asset: asset}]
}
