// Package memory implements the ability to read and write blocks and state
// to memory using maps. Values are held in their canonical encoding so a
// caller can never mutate what has been stored.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

// Memory represents the storage implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu        sync.RWMutex
	blocks    map[string][]byte
	heights   map[uint32]string
	diffs     map[uint32][]byte
	state     map[string][]byte
	temp      map[uint32][]byte
	finalized uint32
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		blocks:  make(map[string][]byte),
		heights: make(map[uint32]string),
		diffs:   make(map[uint32][]byte),
		state:   make(map[string][]byte),
		temp:    make(map[uint32][]byte),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// GetLastBlock returns the block with the greatest height.
func (m *Memory) GetLastBlock() (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.heights) == 0 {
		return database.Block{}, database.ErrNotFound
	}

	var last uint32
	for height := range m.heights {
		if height > last {
			last = height
		}
	}

	return database.DecodeBlock(m.blocks[m.heights[last]])
}

// GetBlockHeaderByID returns the header of the block with the id.
func (m *Memory) GetBlockHeaderByID(id []byte) (*database.BlockHeader, error) {
	block, err := m.GetBlockByID(id)
	if err != nil {
		return nil, err
	}
	return block.Header, nil
}

// GetBlockByID returns the block with the id.
func (m *Memory) GetBlockByID(id []byte) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.blocks[string(id)]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	return database.DecodeBlock(data)
}

// GetBlockByHeight returns the block at the height.
func (m *Memory) GetBlockByHeight(height uint32) (database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, exists := m.heights[height]
	if !exists {
		return database.Block{}, database.ErrNotFound
	}

	return database.DecodeBlock(m.blocks[id])
}

// GetBlockHeadersByHeightBetween returns the headers stored between the
// heights, both included, in ascending height order.
func (m *Memory) GetBlockHeadersByHeightBetween(from uint32, to uint32) ([]*database.BlockHeader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var headers []*database.BlockHeader
	for height := uint64(from); height <= uint64(to); height++ {
		id, exists := m.heights[uint32(height)]
		if !exists {
			continue
		}

		block, err := database.DecodeBlock(m.blocks[id])
		if err != nil {
			return nil, err
		}
		headers = append(headers, block.Header)
	}

	return headers, nil
}

// IsBlockPersisted reports whether the block with the id is stored.
func (m *Memory) IsBlockPersisted(id []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.blocks[string(id)]
	return exists, nil
}

// GetState returns the value stored under the state key.
func (m *Memory) GetState(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, exists := m.state[string(key)]
	if !exists {
		return nil, database.ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

// GetDiff returns the state diff recorded for the height.
func (m *Memory) GetDiff(height uint32) (database.StateDiff, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.diffs[height]
	if !exists {
		return database.StateDiff{}, database.ErrNotFound
	}

	return database.DecodeStateDiff(data)
}

// GetFinalizedHeight returns the highest finalized height recorded.
func (m *Memory) GetFinalizedHeight() (uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.finalized, nil
}

// GetTempBlocks returns the archived blocks in ascending height order.
func (m *Memory) GetTempBlocks() ([]database.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	heights := make([]uint32, 0, len(m.temp))
	for height := range m.temp {
		heights = append(heights, height)
	}
	sort.Slice(heights, func(i, j int) bool { return heights[i] < heights[j] })

	blocks := make([]database.Block, 0, len(heights))
	for _, height := range heights {
		block, err := database.DecodeBlock(m.temp[height])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}

	return blocks, nil
}

// ClearTempBlocks removes every archived block.
func (m *Memory) ClearTempBlocks(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.temp = make(map[uint32][]byte)
	return nil
}

// SaveBlock stores the block, applies the state changes and records the
// diff for the block height.
func (m *Memory) SaveBlock(ctx context.Context, block database.Block, changes database.StateChanges, finalizedHeight uint32, removeFromTemp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := block.ID()
	if err != nil {
		return err
	}
	data := block.Encode()
	diff := changes.Diff.Encode()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks[string(id)] = data
	m.heights[block.Height()] = string(id)
	m.diffs[block.Height()] = diff
	m.apply(changes)

	if finalizedHeight > m.finalized {
		m.finalized = finalizedHeight
	}

	if removeFromTemp {
		delete(m.temp, block.Height())
	}

	return nil
}

// DeleteBlock removes the block and its diff and applies the state changes
// that revert it.
func (m *Memory) DeleteBlock(ctx context.Context, block database.Block, changes database.StateChanges, saveToTemp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := block.ID()
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data, exists := m.blocks[string(id)]
	if !exists {
		return database.ErrNotFound
	}

	delete(m.blocks, string(id))
	delete(m.heights, block.Height())
	delete(m.diffs, block.Height())
	m.apply(changes)

	if saveToTemp {
		m.temp[block.Height()] = data
	}

	return nil
}

func (m *Memory) apply(changes database.StateChanges) {
	for _, kv := range changes.Set {
		m.state[string(kv.Key)] = append([]byte(nil), kv.Value...)
	}
	for _, key := range changes.Delete {
		delete(m.state, string(key))
	}
}
