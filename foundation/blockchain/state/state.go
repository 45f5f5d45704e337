// Package state is the core API for the blockchain and implements all the
// business rules and processing for a slot scheduled chain.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/reward"
	"github.com/ardanlabs/dpos/foundation/blockchain/slots"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
)

// Default chain constants.
const (
	DefaultBlockTime           = 10 * time.Second
	DefaultMaxPayloadLength    = 15 * 1024
	DefaultMinBlockHeaderCache = 309
	DefaultMaxBlockHeaderCache = 515
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Event is published when a block is committed to or removed from the chain.
type Event struct {
	Block           database.Block
	UpdatedAccounts []database.Account
}

// Observer is notified synchronously of every commit and removal.
type Observer interface {
	BlockCommitted(ev Event)
	BlockRemoved(ev Event)
}

// ObserverFuncs adapts a pair of functions to the Observer interface. A nil
// function is skipped.
type ObserverFuncs struct {
	Committed func(ev Event)
	Removed   func(ev Event)
}

// BlockCommitted implements the Observer interface.
func (of ObserverFuncs) BlockCommitted(ev Event) {
	if of.Committed != nil {
		of.Committed(ev)
	}
}

// BlockRemoved implements the Observer interface.
func (of ObserverFuncs) BlockRemoved(ev Event) {
	if of.Removed != nil {
		of.Removed(ev)
	}
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	NetworkID           []byte
	GenesisBlock        database.Block
	BlockTime           time.Duration
	RewardArgs          reward.Args
	MaxPayloadLength    int
	MinBlockHeaderCache int
	MaxBlockHeaderCache int
	Storage             database.Storage
	Observers           []Observer
	Clock               func() time.Time
	EvHandler           EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	networkID        []byte
	genesis          database.Block
	rewardArgs       reward.Args
	maxPayloadLength int
	slots            *slots.Slots
	storage          database.Storage
	observers        []Observer
	evHandler        EventHandler

	lastBlock  database.Block
	validators database.Validators
	cache      *headerCache
}

// New constructs a new blockchain for data management. Init must be called
// before blocks are processed.
func New(cfg Config) (*State, error) {
	if len(cfg.NetworkID) == 0 {
		return nil, errors.New("network id is required")
	}

	if cfg.GenesisBlock.Header == nil {
		return nil, errors.New("genesis block is required")
	}

	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.BlockTime == 0 {
		cfg.BlockTime = DefaultBlockTime
	}

	if cfg.RewardArgs.Distance == 0 {
		cfg.RewardArgs = reward.DefaultArgs()
	}

	if err := cfg.RewardArgs.Validate(); err != nil {
		return nil, fmt.Errorf("reward args: %w", err)
	}

	if cfg.MaxPayloadLength == 0 {
		cfg.MaxPayloadLength = DefaultMaxPayloadLength
	}

	if cfg.MinBlockHeaderCache == 0 {
		cfg.MinBlockHeaderCache = DefaultMinBlockHeaderCache
	}

	if cfg.MaxBlockHeaderCache == 0 {
		cfg.MaxBlockHeaderCache = DefaultMaxBlockHeaderCache
	}

	if cfg.MinBlockHeaderCache > cfg.MaxBlockHeaderCache {
		return nil, fmt.Errorf("min block header cache %d exceeds max %d", cfg.MinBlockHeaderCache, cfg.MaxBlockHeaderCache)
	}

	var opts []func(s *slots.Slots)
	if cfg.Clock != nil {
		opts = append(opts, slots.WithClock(cfg.Clock))
	}

	sl, err := slots.New(cfg.BlockTime, opts...)
	if err != nil {
		return nil, err
	}

	state := State{
		networkID:        append([]byte(nil), cfg.NetworkID...),
		genesis:          cfg.GenesisBlock,
		rewardArgs:       cfg.RewardArgs,
		maxPayloadLength: cfg.MaxPayloadLength,
		slots:            sl,
		storage:          cfg.Storage,
		observers:        cfg.Observers,
		evHandler:        ev,
		cache:            newHeaderCache(cfg.MinBlockHeaderCache, cfg.MaxBlockHeaderCache),
	}

	return &state, nil
}

// Init brings the in memory head in line with storage. An empty storage is
// bootstrapped with the genesis block. A storage holding a different genesis
// block is a fatal error.
func (s *State) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: Init: started")
	defer s.evHandler("state: Init: completed")

	if err := ValidateBlock(s.genesis, s.validateArgs()); err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	genesisID, err := s.genesis.ID()
	if err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	persisted, err := s.storage.IsBlockPersisted(genesisID)
	if err != nil {
		return err
	}

	if !persisted {
		_, err := s.storage.GetLastBlock()
		switch {
		case err == nil:
			return fatal(ErrGenesisMismatch)
		case !errors.Is(err, database.ErrNotFound):
			return err
		}

		s.evHandler("state: Init: blk[%d]: apply genesis block", s.genesis.Height())

		store := statestore.New(s.storage)
		if err := s.applyGenesisBlock(s.genesis, store); err != nil {
			return err
		}

		if err := s.saveBlock(ctx, s.genesis, store, s.genesis.Height(), false); err != nil {
			return err
		}

		return nil
	}

	lastBlock, err := s.storage.GetLastBlock()
	if err != nil {
		return err
	}
	s.lastBlock = lastBlock

	s.evHandler("state: Init: blk[%d]: last block loaded", lastBlock.Height())

	if err := s.reloadCache(); err != nil {
		return err
	}

	return s.reloadValidators()
}

// =============================================================================

// LastBlock returns the head of the chain.
func (s *State) LastBlock() database.Block {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastBlock
}

// Validators returns a copy of the active validator set.
func (s *State) Validators() database.Validators {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append(database.Validators(nil), s.validators...)
}

// CachedHeaders returns the cached headers in ascending height order.
func (s *State) CachedHeaders() []*database.BlockHeader {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cache.items()
}

// GenesisBlock returns the genesis block the chain was started with.
func (s *State) GenesisBlock() database.Block {
	return s.genesis
}

// NetworkID returns a copy of the network id blocks are signed for.
func (s *State) NetworkID() []byte {
	return append([]byte(nil), s.networkID...)
}

// Slots returns the slot calculator for the chain.
func (s *State) Slots() *slots.Slots {
	return s.slots
}

// RewardArgs returns the reward schedule of the chain.
func (s *State) RewardArgs() reward.Args {
	return s.rewardArgs
}

// MaxPayloadLength returns the largest transaction payload a block may carry.
func (s *State) MaxPayloadLength() int {
	return s.maxPayloadLength
}

// Storage returns the storage the chain is persisted to.
func (s *State) Storage() database.Storage {
	return s.storage
}

// ValidateBlockHeader runs the stateless checks with the chain constants.
func (s *State) ValidateBlockHeader(block database.Block) error {
	return ValidateBlockHeader(block, s.validateArgs())
}

// VerifyBlockHeader runs the stateful checks against the chain head.
func (s *State) VerifyBlockHeader(block database.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return VerifyBlockHeader(block, s.verifyArgs())
}

// =============================================================================

func (s *State) validateArgs() ValidateArgs {
	return ValidateArgs{
		NetworkID:        s.networkID,
		RewardArgs:       s.rewardArgs,
		MaxPayloadLength: s.maxPayloadLength,
		EvHandler:        s.evHandler,
	}
}

func (s *State) verifyArgs() VerifyArgs {
	return VerifyArgs{
		LastBlock:     s.lastBlock,
		GenesisHeader: s.genesis.Header,
		Validators:    s.validators,
		CachedHeaders: s.cache.items(),
		Slots:         s.slots,
		EvHandler:     s.evHandler,
	}
}

// reloadCache fills the header cache from storage with the headers up to
// and including the last block.
func (s *State) reloadCache() error {
	to := s.lastBlock.Height()
	from := s.genesis.Height()

	if to == from {
		s.cache.load([]*database.BlockHeader{s.lastBlock.Header})
		return nil
	}

	if limit := uint32(s.cache.max); to-from > limit {
		from = to - limit
	}

	headers, err := s.storage.GetBlockHeadersByHeightBetween(from, to)
	if err != nil {
		return fmt.Errorf("loading block headers [%d, %d]: %w", from, to, err)
	}

	s.cache.load(headers)
	s.evHandler("state: reloadCache: loaded %d headers", s.cache.len())

	return nil
}

// reloadValidators reads the persisted validator set.
func (s *State) reloadValidators() error {
	vs, err := statestore.New(s.storage).GetValidators()
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			s.validators = nil
			return nil
		}
		return err
	}

	s.validators = vs
	return nil
}

func (s *State) publish(removed bool, ev Event) {
	for _, o := range s.observers {
		if removed {
			o.BlockRemoved(ev)
			continue
		}
		o.BlockCommitted(ev)
	}
}
