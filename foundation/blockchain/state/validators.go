package state

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
	"github.com/ethereum/go-ethereum/common"
)

// SetValidators writes the next validator set into the store. The first set
// is active from height zero. Later sets carry forward the activation of
// validators that remain and activate new ones two blocks after the last
// cached block.
func (s *State) SetValidators(store *statestore.Store, next []common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.setValidators(store, next)
}

func (s *State) setValidators(store *statestore.Store, next []common.Address) error {
	current, err := store.GetValidators()
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return err
	}
	first := errors.Is(err, database.ErrNotFound)

	var activation uint32
	if last, ok := s.cache.last(); ok {
		activation = last.Height() + 2
	}

	vs := make(database.Validators, len(next))
	for i, addr := range next {
		switch v, exists := current.Find(addr); {
		case first:
			vs[i] = database.Validator{Address: addr, IsConsensusParticipant: true}
		case exists:
			vs[i] = v
		default:
			vs[i] = database.Validator{Address: addr, MinActiveHeight: activation, IsConsensusParticipant: true}
		}
	}

	s.evHandler("state: setValidators: %d validators, activation height %d", len(vs), activation)

	return store.SetValidators(vs)
}

// ApplyGenesisBlock seeds the accounts and the initial validator set from
// the genesis asset of the block.
func (s *State) ApplyGenesisBlock(block database.Block, store *statestore.Store) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.applyGenesisBlock(block, store)
}

func (s *State) applyGenesisBlock(block database.Block, store *statestore.Store) error {
	data, ok := block.Assets.GetAsset(database.GenesisModuleID)
	if !ok {
		return ErrMissingGenesisAsset
	}

	asset, err := database.DecodeGenesisAsset(data)
	if err != nil {
		return fmt.Errorf("decoding genesis asset: %w", err)
	}

	for _, acct := range asset.Accounts {
		if err := store.SetAccount(acct); err != nil {
			return err
		}
	}

	vs := make(database.Validators, len(asset.InitValidators))
	for i, addr := range asset.InitValidators {
		vs[i] = database.Validator{Address: addr}
	}

	s.evHandler("state: applyGenesisBlock: blk[%d]: %d accounts, %d validators", block.Height(), len(asset.Accounts), len(vs))

	return store.SetValidators(vs)
}
