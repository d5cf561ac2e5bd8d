// Package settlement moves value between accounts for marketplace purchases.
package settlement

import (
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ruteri/land-registry/interfaces"
	"go.uber.org/atomic"
)

// Ledger is an in-memory account balance table in wei. It implements
// interfaces.Settlement.
type Ledger struct {
	mutex    sync.RWMutex
	balances map[common.Address]*big.Int
	version  atomic.Uint64
	log      *slog.Logger
}

// NewLedger creates an empty ledger.
func NewLedger(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		log:      log,
	}
}

// Credit adds amount to account. Used to fund accounts from outside the system.
func (l *Ledger) Credit(account common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: credit amount %v", interfaces.ErrInvalidPrice, amount)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.balances[account] = new(big.Int).Add(l.balanceLocked(account), amount)
	l.version.Inc()

	l.log.Debug("Credited account",
		slog.String("account", account.Hex()),
		slog.String("amount", amount.String()))
	return nil
}

// BalanceOf returns a copy of the account balance.
func (l *Ledger) BalanceOf(account common.Address) *big.Int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	return new(big.Int).Set(l.balanceLocked(account))
}

// Transfer moves amount from one account to another. On any failure neither
// balance changes.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: invalid amount %v", interfaces.ErrSettlementFailed, amount)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	fromBalance := l.balanceLocked(from)
	if fromBalance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %w: %s holds %s, needs %s", interfaces.ErrSettlementFailed, interfaces.ErrInsufficientFunds,
			from.Hex(), fromBalance.String(), amount.String())
	}

	if from == to {
		return nil
	}

	l.balances[from] = new(big.Int).Sub(fromBalance, amount)
	l.balances[to] = new(big.Int).Add(l.balanceLocked(to), amount)
	l.version.Inc()

	l.log.Debug("Settled transfer",
		slog.String("from", from.Hex()),
		slog.String("to", to.Hex()),
		slog.String("amount", amount.String()))
	return nil
}

// Balance is one row of a ledger snapshot.
type Balance struct {
	Account common.Address `json:"account"`
	Amount  *big.Int       `json:"amount"`
}

// Snapshot returns all non-zero balances ordered by account.
func (l *Ledger) Snapshot() []Balance {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]Balance, 0, len(l.balances))
	for account, amount := range l.balances {
		if amount.Sign() == 0 {
			continue
		}
		out = append(out, Balance{Account: account, Amount: new(big.Int).Set(amount)})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out
}

// Restore replaces all balances with the snapshot.
func (l *Ledger) Restore(balances []Balance) error {
	restored := make(map[common.Address]*big.Int, len(balances))
	for _, b := range balances {
		if b.Amount == nil || b.Amount.Sign() < 0 {
			return fmt.Errorf("invalid balance for %s", b.Account.Hex())
		}
		restored[b.Account] = new(big.Int).Set(b.Amount)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.balances = restored
	l.version.Inc()
	return nil
}

// Version increases on every change to any balance.
func (l *Ledger) Version() uint64 {
	return l.version.Load()
}

func (l *Ledger) balanceLocked(account common.Address) *big.Int {
	if b, ok := l.balances[account]; ok {
		return b
	}
	return new(big.Int)
}
