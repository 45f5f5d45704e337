// Package database defines the entities that make up the chain, their
// canonical encodings, and the storage contract the chain is persisted
// through.
package database

import (
	"context"
	"errors"
)

// ErrNotFound is returned by every Storage lookup that finds nothing.
var ErrNotFound = errors.New("not found")

// Storage interface represents the behavior required to be implemented by any
// package providing support for persisting the chain and its state.
type Storage interface {
	GetLastBlock() (Block, error)
	GetBlockHeaderByID(id []byte) (*BlockHeader, error)
	GetBlockByID(id []byte) (Block, error)
	GetBlockByHeight(height uint32) (Block, error)
	GetBlockHeadersByHeightBetween(from uint32, to uint32) ([]*BlockHeader, error)
	IsBlockPersisted(id []byte) (bool, error)
	GetState(key []byte) ([]byte, error)
	GetDiff(height uint32) (StateDiff, error)
	GetFinalizedHeight() (uint32, error)
	GetTempBlocks() ([]Block, error)
	ClearTempBlocks(ctx context.Context) error

	// SaveBlock persists the block, applies the state changes and records
	// the diff under the block height in one atomic step.
	SaveBlock(ctx context.Context, block Block, changes StateChanges, finalizedHeight uint32, removeFromTemp bool) error

	// DeleteBlock removes the block and its diff and applies the state
	// changes that revert it in one atomic step. The block is archived to
	// the temp table when saveToTemp is set.
	DeleteBlock(ctx context.Context, block Block, changes StateChanges, saveToTemp bool) error

	Close() error
}
