// Package worker implements block forging for the validator keys a node
// holds.
package worker

import (
	"crypto/ed25519"
	"errors"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultMaxTransactions is the number of transactions the worker asks the
// mempool for when forging a block.
const DefaultMaxTransactions = 64

// Config represents the configuration required to start a worker.
type Config struct {
	State           *state.State
	Mempool         *mempool.Mempool
	Keys            []ed25519.PrivateKey
	MaxTransactions int
	EvHandler       state.EventHandler
}

// Worker manages the forging workflow for the blockchain.
type Worker struct {
	state     *state.State
	mempool   *mempool.Mempool
	keys      map[common.Address]ed25519.PrivateKey
	reveals   map[common.Address]*revealChain
	maxTxs    int
	mu        sync.Mutex
	wg        sync.WaitGroup
	shut      chan struct{}
	evHandler state.EventHandler
}

// New constructs a worker for the set of validator keys.
func New(cfg Config) (*Worker, error) {
	if cfg.State == nil {
		return nil, errors.New("state is required")
	}

	if cfg.Mempool == nil {
		return nil, errors.New("mempool is required")
	}

	if len(cfg.Keys) == 0 {
		return nil, errors.New("at least one validator key is required")
	}

	if cfg.MaxTransactions <= 0 {
		cfg.MaxTransactions = DefaultMaxTransactions
	}

	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Worker{
		state:     cfg.State,
		mempool:   cfg.Mempool,
		keys:      make(map[common.Address]ed25519.PrivateKey),
		reveals:   make(map[common.Address]*revealChain),
		maxTxs:    cfg.MaxTransactions,
		shut:      make(chan struct{}),
		evHandler: ev,
	}

	for _, privateKey := range cfg.Keys {
		address := signature.AddressFromPublicKey(signature.PublicKey(privateKey))
		w.keys[address] = privateKey
		w.reveals[address] = newRevealChain(privateKey, revealChainLength)
	}

	return &w, nil
}

// Run starts up all the background processes of the worker.
func (w *Worker) Run() {

	// Load the set of operations we need to run.
	operations := []func(){
		w.forgeOperations,
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// Addresses returns the validator addresses this worker forges for.
func (w *Worker) Addresses() []common.Address {
	addresses := make([]common.Address, 0, len(w.keys))
	for address := range w.keys {
		addresses = append(addresses, address)
	}
	return addresses
}

// =============================================================================

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
