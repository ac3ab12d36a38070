package ledger

import (
	"fmt"
	"log"
	"math/big"
	"sync"
)

// TreasuryKey is the system account token drops are paid from.
const TreasuryKey = "treasury"

// initialTreasury seeds a fresh ledger: 1,000,000 whole tokens.
var initialTreasury, _ = new(big.Int).SetString("1000000000000000000000000", 10)

// Store persists balances as decimal base-unit strings. Writes may be
// applied asynchronously; the in-memory ledger is authoritative while
// the process runs.
type Store interface {
	LoadAccounts() (map[string]string, error)
	SaveAccount(key, balance string) error
}

// Ledger is an off-chain token balance book. All mutation goes through
// Transfer so every balance change has a counterparty.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*big.Int
	store    Store
	logger   *log.Logger
}

func New(store Store, logger *log.Logger) (*Ledger, error) {
	l := &Ledger{
		accounts: map[string]*big.Int{},
		store:    store,
		logger:   logger,
	}
	if store != nil {
		loaded, err := store.LoadAccounts()
		if err != nil {
			return nil, fmt.Errorf("ledger load: %w", err)
		}
		for k, v := range loaded {
			a, err := ParseAmount(v)
			if err != nil {
				return nil, fmt.Errorf("ledger account %s: %w", k, err)
			}
			l.accounts[k] = a
		}
	}
	if _, ok := l.accounts[TreasuryKey]; !ok {
		l.accounts[TreasuryKey] = new(big.Int).Set(initialTreasury)
		l.persist(TreasuryKey)
	}
	return l, nil
}

// Balance returns a copy; callers cannot mutate the book.
func (l *Ledger) Balance(key string) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.accounts[key]; ok {
		return new(big.Int).Set(a)
	}
	return big.NewInt(0)
}

// Transfer moves amount from one account to another. A zero amount is a
// no-op. Unknown destination accounts are created; an unknown or
// underfunded source fails without partial effect.
func (l *Ledger) Transfer(from, to string, amount *big.Int, note string) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("negative transfer %s", amount)
	}
	if from == "" || to == "" || from == to {
		return fmt.Errorf("bad transfer endpoints %q -> %q", from, to)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.accounts[from]
	if !ok || src.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient funds in %s for %s", from, amount)
	}
	dst, ok := l.accounts[to]
	if !ok {
		dst = big.NewInt(0)
		l.accounts[to] = dst
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	l.persist(from)
	l.persist(to)
	if l.logger != nil {
		l.logger.Printf("[ledger] %s -> %s amount=%s note=%q", from, to, amount, note)
	}
	return nil
}

// persist is best-effort; the caller holds l.mu.
func (l *Ledger) persist(key string) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveAccount(key, l.accounts[key].String()); err != nil && l.logger != nil {
		l.logger.Printf("[ledger] persist %s: %v", key, err)
	}
}
