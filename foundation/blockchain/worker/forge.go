package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/reward"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
	"github.com/ethereum/go-ethereum/common"
)

// Set of reasons a slot is not forged by this worker.
var (
	ErrNotSelected  = errors.New("slot belongs to another validator")
	ErrSlotForged   = errors.New("slot already holds a block")
	ErrNoValidators = errors.New("no active validators")
)

// CORE NOTE: Time is cut into slots of one block time each. Validators take
// turns in validator set order, so the owner of a slot is the validator at
// slot % len(validators). The worker wakes at the start of every slot and
// forges a block only when one of its keys owns the slot.

// forgeOperations handles forging.
func (w *Worker) forgeOperations() {
	w.evHandler("worker: forgeOperations: G started")
	defer w.evHandler("worker: forgeOperations: G completed")

	interval := time.Duration(w.state.Slots().Interval()) * time.Second

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Start this on a slot boundary.
	resetTicker(ticker, interval)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runForgeOperation()
			}
		case <-w.shut:
			w.evHandler("worker: forgeOperations: received shut signal")
			return
		}

		// Reset the ticker for the next slot.
		resetTicker(ticker, interval)
	}
}

// runForgeOperation forges a block for the current slot if one of the keys
// of this worker owns it.
func (w *Worker) runForgeOperation() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.state.Slots().Interval())*time.Second)
	defer cancel()

	block, err := w.ForgeBlock(ctx)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotSelected), errors.Is(err, ErrSlotForged):
			w.evHandler("worker: runForgeOperation: FORGING: skipped: %s", err)
		default:
			w.evHandler("worker: runForgeOperation: FORGING: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runForgeOperation: FORGING: blk[%d]: %s: txs[%d] reward[%d]", block.Height(), block.Header.IDHex(), len(block.Transactions), block.Header.Reward())
}

// ForgeBlock forges, signs and processes the block for the current slot.
func (w *Worker) ForgeBlock(ctx context.Context) (database.Block, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	sl := w.state.Slots()
	slot := sl.CurrentSlot()

	last := w.state.LastBlock()
	if sl.SlotNumber(uint64(last.Header.Timestamp())) >= slot {
		return database.Block{}, fmt.Errorf("slot %d: %w", slot, ErrSlotForged)
	}

	validators := w.state.Validators()
	if len(validators) == 0 {
		return database.Block{}, ErrNoValidators
	}

	generator := validators[slot%uint64(len(validators))].Address
	privateKey, exists := w.keys[generator]
	if !exists {
		return database.Block{}, fmt.Errorf("slot %d, generator %s: %w", slot, generator, ErrNotSelected)
	}
	publicKey := signature.PublicKey(privateKey)

	prevID, err := last.Header.ID()
	if err != nil {
		return database.Block{}, fmt.Errorf("head id: %w", err)
	}

	txs, err := w.selectTransactions()
	if err != nil {
		return database.Block{}, err
	}

	height := last.Height() + 1
	block := database.NewBlock(nil, txs, nil)
	cached := w.state.CachedHeaders()

	fields := database.HeaderFields{
		Timestamp:         uint32(sl.SlotTime(slot)),
		Height:            height,
		PreviousBlockID:   prevID,
		GeneratorAddress:  generator.Bytes(),
		TransactionRoot:   block.TransactionRoot(),
		AssetsRoot:        block.Assets.Root(),
		MaxHeightPrevoted: last.Height(),
	}

	ext := database.ForgerExtension{
		GeneratorPublicKey: publicKey,
		SeedReveal:         w.reveals[generator].next(publicKey, cached),
	}

	// A block without a valid seed reveal may only be forged without reward.
	header := database.NewBlockHeader(fields, ext)
	if state.IsSeedRevealValid(header, cached, len(validators)) {
		ext.Reward = reward.CalculateReward(height, w.state.RewardArgs())
		header = header.WithExtension(ext)
	}

	block.Header = header.Sign(w.state.NetworkID(), privateKey)

	if err := w.state.ProcessBlock(ctx, block); err != nil {
		return database.Block{}, fmt.Errorf("processing forged block: %w", err)
	}

	return block, nil
}

// selectTransactions picks the best transactions from the mempool that can
// be applied on top of the head. A sender with a gap in its nonces or a fee
// it cannot pay contributes nothing past that point.
func (w *Worker) selectTransactions() ([]*database.Transaction, error) {
	store := statestore.New(w.state.Storage())
	networkID := w.state.NetworkID()
	maxPayload := w.state.MaxPayloadLength()

	accounts := make(map[common.Address]database.Account)
	blocked := make(map[common.Address]bool)

	var final []*database.Transaction
	var size int

	for _, tx := range w.mempool.PickBest(w.maxTxs) {
		from := tx.SenderAddress()
		if blocked[from] {
			continue
		}

		account, exists := accounts[from]
		if !exists {
			var err error
			if account, err = store.GetAccount(from); err != nil {
				return nil, fmt.Errorf("sender %s: %w", from, err)
			}
		}

		if tx.Nonce() != account.Nonce || tx.Fee() > account.Balance || tx.VerifySignature(networkID) != nil {
			w.evHandler("worker: selectTransactions: skipping tx[%s]: sender nonce[%d] balance[%d]", tx, account.Nonce, account.Balance)
			blocked[from] = true
			continue
		}

		if size+tx.Size() > maxPayload {
			break
		}

		account.Nonce++
		account.Balance -= tx.Fee()
		accounts[from] = account

		final = append(final, tx)
		size += tx.Size()
	}

	return final, nil
}

// =============================================================================

// resetTicker makes sure the next tick happens on the next slot boundary.
func resetTicker(ticker *time.Ticker, interval time.Duration) {
	nextTick := time.Now().Add(interval).Truncate(interval)
	diff := time.Until(nextTick)
	if diff <= 0 {
		diff = interval
	}
	ticker.Reset(diff)
}
