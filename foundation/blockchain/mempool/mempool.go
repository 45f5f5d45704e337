// Package mempool maintains the pool of transactions waiting to be forged.
package mempool

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// Mempool represents a cache of transactions organized by sender:nonce.
type Mempool struct {
	pool     map[string]*database.Transaction
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default sort strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]*database.Transaction),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A transaction with
// the same sender and nonce is replaced.
func (mp *Mempool) Upsert(tx *database.Transaction) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool[mapKey(tx.SenderAddress(), tx.Nonce())] = tx

	return len(mp.pool)
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx *database.Transaction) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx.SenderAddress(), tx.Nonce()))
}

// DeleteStale removes every transaction from the sender with a nonce lower
// than the account nonce. These can never be forged again.
func (mp *Mempool) DeleteStale(account database.Account) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var deleted int
	for key, tx := range mp.pool {
		if tx.SenderAddress() == account.Address && tx.Nonce() < account.Nonce {
			delete(mp.pool, key)
			deleted++
		}
	}

	return deleted
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]*database.Transaction)
}

// PickBest uses the configured sort strategy to return the next set
// of transactions for the next block. Pass -1 for all the transactions.
func (mp *Mempool) PickBest(howMany int) []*database.Transaction {

	// Group the transactions by sender.
	m := make(map[common.Address][]*database.Transaction)
	mp.mu.RLock()
	{
		if howMany == -1 {
			howMany = len(mp.pool)
		}

		for _, tx := range mp.pool {
			from := tx.SenderAddress()
			m[from] = append(m[from], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// =============================================================================
// These methods implement the state.Observer interface.

// BlockCommitted drops the transactions the block carried along with any
// transaction the new account nonces made stale.
func (mp *Mempool) BlockCommitted(ev state.Event) {
	for _, tx := range ev.Block.Transactions {
		mp.Delete(tx)
	}

	for _, account := range ev.UpdatedAccounts {
		mp.DeleteStale(account)
	}
}

// BlockRemoved returns the transactions of the removed block to the pool so
// they can be forged again.
func (mp *Mempool) BlockRemoved(ev state.Event) {
	for _, tx := range ev.Block.Transactions {
		mp.Upsert(tx)
	}
}

// =============================================================================

// mapKey is used to generate the map key.
func mapKey(from common.Address, nonce uint64) string {
	return fmt.Sprintf("%s:%d", from, nonce)
}
