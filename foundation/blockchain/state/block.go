package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
)

// ProcessBlock validates and verifies the block against the chain head,
// applies its transactions and the generator reward, then commits it.
func (s *State) ProcessBlock(ctx context.Context, block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: ProcessBlock: blk[%d]: started", block.Height())
	defer s.evHandler("state: ProcessBlock: blk[%d]: completed", block.Height())

	if err := ValidateBlock(block, s.validateArgs()); err != nil {
		return err
	}

	if err := VerifyBlockHeader(block, s.verifyArgs()); err != nil {
		return err
	}

	store := statestore.New(s.storage)
	if err := s.applyBlock(block, store); err != nil {
		return err
	}

	finalized, err := s.storage.GetFinalizedHeight()
	if err != nil {
		return err
	}
	if prevoted := block.Header.MaxHeightPrevoted(); prevoted > finalized && prevoted <= block.Height() {
		finalized = prevoted
	}

	return s.saveBlock(ctx, block, store, finalized, true)
}

// DeleteLastBlock removes the head of the chain by reverting the state
// diff recorded for it. The block is archived to the temp table when
// saveTemp is set.
func (s *State) DeleteLastBlock(ctx context.Context, saveTemp bool) (database.Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block := s.lastBlock
	if err := s.removeBlock(ctx, block, saveTemp); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// RestoreTempBlocks processes the archived blocks again in ascending height
// order. It stops at the first block that no longer extends the chain and
// clears the archive.
func (s *State) RestoreTempBlocks(ctx context.Context) (int, error) {
	blocks, err := s.storage.GetTempBlocks()
	if err != nil {
		return 0, err
	}

	var restored int
	for _, block := range blocks {
		if err := s.ProcessBlock(ctx, block); err != nil {
			if IsFatal(err) || ctx.Err() != nil {
				return restored, err
			}
			s.evHandler("state: RestoreTempBlocks: blk[%d]: stopped: %s", block.Height(), err)
			break
		}
		restored++
	}

	if err := s.storage.ClearTempBlocks(ctx); err != nil {
		return restored, err
	}

	return restored, nil
}

// =============================================================================

// SaveBlock persists the block with the changes held by the store, appends
// the header to the cache, advances the head and notifies the observers.
func (s *State) SaveBlock(ctx context.Context, block database.Block, store *statestore.Store, finalizedHeight uint32, removeFromTemp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.saveBlock(ctx, block, store, finalizedHeight, removeFromTemp)
}

func (s *State) saveBlock(ctx context.Context, block database.Block, store *statestore.Store, finalizedHeight uint32, removeFromTemp bool) error {
	s.evHandler("state: saveBlock: blk[%d]: finalized[%d]", block.Height(), finalizedHeight)

	updated, err := store.UpdatedAccounts()
	if err != nil {
		return err
	}

	changes := store.Finalize()

	// The head can't advance unless the block is fully persisted.
	if err := s.storage.SaveBlock(ctx, block, changes, finalizedHeight, removeFromTemp); err != nil {
		return storageFailure(fmt.Errorf("saving blk[%d]: %w", block.Height(), err))
	}

	s.cache.add(block.Header)
	s.lastBlock = block

	if err := s.reloadValidators(); err != nil {
		return fatal(err)
	}

	s.evHandler("state: saveBlock: blk[%d]: committed: %s", block.Height(), block.Header.IDHex())

	s.publish(false, Event{Block: block, UpdatedAccounts: updated})

	return nil
}

// RemoveBlock reverts the block, which must be the head of the chain,
// rewinds the head to its predecessor and notifies the observers. Removing
// the genesis block or a block whose predecessor is gone is fatal. A block
// at or below the finalized height is never removed.
func (s *State) RemoveBlock(ctx context.Context, block database.Block, saveTemp bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeBlock(ctx, block, saveTemp)
}

func (s *State) removeBlock(ctx context.Context, block database.Block, saveTemp bool) error {
	height := block.Height()

	s.evHandler("state: removeBlock: blk[%d]: started", height)

	if block.Header.IsGenesis() || height <= s.genesis.Height() {
		return fatal(ErrRemoveGenesis)
	}

	if s.lastBlock.Header != nil && block.Header.IDHex() != s.lastBlock.Header.IDHex() {
		return fmt.Errorf("blk[%d]: only the head blk[%d] can be removed", height, s.lastBlock.Height())
	}

	finalized, err := s.storage.GetFinalizedHeight()
	if err != nil {
		return err
	}
	if height <= finalized {
		return fmt.Errorf("blk[%d]: finalized[%d]: %w", height, finalized, ErrRemoveFinalized)
	}

	prev, err := s.storage.GetBlockByID(block.Header.PreviousBlockID())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fatal(fmt.Errorf("blk[%d]: %w", height, ErrMissingPredecessor))
		}
		return err
	}

	sd, err := s.storage.GetDiff(height)
	if err != nil {
		return fmt.Errorf("blk[%d]: reading diff: %w", height, err)
	}

	changes, err := statestore.Revert(s.storage, sd)
	if err != nil {
		return fmt.Errorf("blk[%d]: %w", height, err)
	}
	changes.Diff = sd

	updated, err := statestore.ChangedAccounts(changes)
	if err != nil {
		return err
	}

	if err := s.storage.DeleteBlock(ctx, block, changes, saveTemp); err != nil {
		return storageFailure(fmt.Errorf("deleting blk[%d]: %w", height, err))
	}

	s.cache.removeHead()
	s.lastBlock = prev

	if s.cache.len() < s.cache.min {
		if err := s.reloadCache(); err != nil {
			return fatal(err)
		}
	}

	if err := s.reloadValidators(); err != nil {
		return fatal(err)
	}

	s.evHandler("state: removeBlock: blk[%d]: removed: head blk[%d]", height, prev.Height())

	s.publish(true, Event{Block: block, UpdatedAccounts: updated})

	return nil
}

// =============================================================================

// applyBlock charges each transaction fee to its sender and credits the
// generator with the fees plus the block reward.
func (s *State) applyBlock(block database.Block, store *statestore.Store) error {
	height := block.Height()

	var fees uint64
	for _, tx := range block.Transactions {
		sender, err := store.GetAccount(tx.SenderAddress())
		if err != nil {
			return err
		}

		if tx.Nonce() != sender.Nonce {
			return consensusErr(ErrInvalidNonce, height, "transaction %x: nonce %d, expected %d", tx.ID(), tx.Nonce(), sender.Nonce)
		}

		if tx.Fee() > sender.Balance {
			return consensusErr(ErrInsufficientBalance, height, "transaction %x: fee %d, balance %d", tx.ID(), tx.Fee(), sender.Balance)
		}

		sender.Balance -= tx.Fee()
		sender.Nonce++

		if err := store.SetAccount(sender); err != nil {
			return err
		}

		fees += tx.Fee()
	}

	forger, ok := block.Header.Forger()
	if !ok {
		return nil
	}

	generator, err := store.GetAccount(signature.AddressFromPublicKey(forger.GeneratorPublicKey))
	if err != nil {
		return err
	}

	generator.Balance += forger.Reward + fees

	s.evHandler("state: applyBlock: blk[%d]: generator %s: reward %d: fees %d", height, generator.Address, forger.Reward, fees)

	return store.SetAccount(generator)
}
