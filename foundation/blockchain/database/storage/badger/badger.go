// Package badger implements the ability to read and write blocks and state
// to a badger key/value database on disk.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	badgerdb "github.com/dgraph-io/badger/v3"
)

// Key prefixes for the different tables held in the database.
var (
	prefixBlock     = []byte("b:")
	prefixHeight    = []byte("h:")
	prefixDiff      = []byte("d:")
	prefixState     = []byte("s:")
	prefixTemp      = []byte("t:")
	keyFinalized    = []byte("m:finalized")
	maxHeightSuffix = []byte{0xff, 0xff, 0xff, 0xff, 0xff}
)

// Badger represents the storage implementation for reading and storing
// blocks in a badger database. This implements the database.Storage
// interface.
type Badger struct {
	db *badgerdb.DB
}

// New opens the database in the specified directory.
func New(dbPath string) (*Badger, error) {
	opts := badgerdb.DefaultOptions(dbPath).WithLogger(nil)
	return open(opts)
}

// NewInMemory opens a database that is never written to disk.
func NewInMemory() (*Badger, error) {
	opts := badgerdb.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	return open(opts)
}

func open(opts badgerdb.Options) (*Badger, error) {
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}

	return &Badger{db: db}, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// GetLastBlock returns the block with the greatest height.
func (b *Badger) GetLastBlock() (database.Block, error) {
	var block database.Block
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefixHeight

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(append(append([]byte{}, prefixHeight...), maxHeightSuffix...))
		if !it.ValidForPrefix(prefixHeight) {
			return database.ErrNotFound
		}

		id, err := it.Item().ValueCopy(nil)
		if err != nil {
			return err
		}

		block, err = getBlock(txn, id)
		return err
	})

	return block, err
}

// GetBlockHeaderByID returns the header of the block with the id.
func (b *Badger) GetBlockHeaderByID(id []byte) (*database.BlockHeader, error) {
	block, err := b.GetBlockByID(id)
	if err != nil {
		return nil, err
	}
	return block.Header, nil
}

// GetBlockByID returns the block with the id.
func (b *Badger) GetBlockByID(id []byte) (database.Block, error) {
	var block database.Block
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		block, err = getBlock(txn, id)
		return err
	})

	return block, err
}

// GetBlockByHeight returns the block at the height.
func (b *Badger) GetBlockByHeight(height uint32) (database.Block, error) {
	var block database.Block
	err := b.db.View(func(txn *badgerdb.Txn) error {
		id, err := get(txn, heightKey(prefixHeight, height))
		if err != nil {
			return err
		}

		block, err = getBlock(txn, id)
		return err
	})

	return block, err
}

// GetBlockHeadersByHeightBetween returns the headers stored between the
// heights, both included, in ascending height order.
func (b *Badger) GetBlockHeadersByHeightBetween(from uint32, to uint32) ([]*database.BlockHeader, error) {
	var headers []*database.BlockHeader
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefixHeight

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(heightKey(prefixHeight, from)); it.ValidForPrefix(prefixHeight); it.Next() {
			height := binary.BigEndian.Uint32(it.Item().Key()[len(prefixHeight):])
			if height > to {
				break
			}

			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			block, err := getBlock(txn, id)
			if err != nil {
				return err
			}
			headers = append(headers, block.Header)
		}

		return nil
	})

	return headers, err
}

// IsBlockPersisted reports whether the block with the id is stored.
func (b *Badger) IsBlockPersisted(id []byte) (bool, error) {
	err := b.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(key(prefixBlock, id))
		return err
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badgerdb.ErrKeyNotFound):
		return false, nil
	}

	return false, err
}

// GetState returns the value stored under the state key.
func (b *Badger) GetState(stateKey []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		var err error
		value, err = get(txn, key(prefixState, stateKey))
		return err
	})

	return value, err
}

// GetDiff returns the state diff recorded for the height.
func (b *Badger) GetDiff(height uint32) (database.StateDiff, error) {
	var diff database.StateDiff
	err := b.db.View(func(txn *badgerdb.Txn) error {
		data, err := get(txn, heightKey(prefixDiff, height))
		if err != nil {
			return err
		}

		diff, err = database.DecodeStateDiff(data)
		return err
	})

	return diff, err
}

// GetFinalizedHeight returns the highest finalized height recorded.
func (b *Badger) GetFinalizedHeight() (uint32, error) {
	var height uint32
	err := b.db.View(func(txn *badgerdb.Txn) error {
		data, err := get(txn, keyFinalized)
		if err != nil {
			return err
		}

		height = binary.BigEndian.Uint32(data)
		return nil
	})

	if errors.Is(err, database.ErrNotFound) {
		return 0, nil
	}

	return height, err
}

// GetTempBlocks returns the archived blocks in ascending height order.
func (b *Badger) GetTempBlocks() ([]database.Block, error) {
	var blocks []database.Block
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = prefixTemp

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.ValidForPrefix(prefixTemp); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			block, err := database.DecodeBlock(data)
			if err != nil {
				return err
			}
			blocks = append(blocks, block)
		}

		return nil
	})

	return blocks, err
}

// ClearTempBlocks removes every archived block.
func (b *Badger) ClearTempBlocks(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.DropPrefix(prefixTemp)
}

// SaveBlock stores the block, applies the state changes and records the
// diff for the block height in a single transaction.
func (b *Badger) SaveBlock(ctx context.Context, block database.Block, changes database.StateChanges, finalizedHeight uint32, removeFromTemp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := block.ID()
	if err != nil {
		return err
	}
	height := block.Height()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Set(key(prefixBlock, id), block.Encode()); err != nil {
			return err
		}
		if err := txn.Set(heightKey(prefixHeight, height), id); err != nil {
			return err
		}
		if err := txn.Set(heightKey(prefixDiff, height), changes.Diff.Encode()); err != nil {
			return err
		}
		if err := applyChanges(txn, changes); err != nil {
			return err
		}

		current, err := get(txn, keyFinalized)
		switch {
		case errors.Is(err, database.ErrNotFound):
		case err != nil:
			return err
		}
		if current == nil || finalizedHeight > binary.BigEndian.Uint32(current) {
			if err := txn.Set(keyFinalized, binary.BigEndian.AppendUint32(nil, finalizedHeight)); err != nil {
				return err
			}
		}

		if removeFromTemp {
			if err := txn.Delete(heightKey(prefixTemp, height)); err != nil {
				return err
			}
		}

		return nil
	})
}

// DeleteBlock removes the block and its diff and applies the state changes
// that revert it in a single transaction.
func (b *Badger) DeleteBlock(ctx context.Context, block database.Block, changes database.StateChanges, saveToTemp bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := block.ID()
	if err != nil {
		return err
	}
	height := block.Height()

	return b.db.Update(func(txn *badgerdb.Txn) error {
		data, err := get(txn, key(prefixBlock, id))
		if err != nil {
			return err
		}

		if err := txn.Delete(key(prefixBlock, id)); err != nil {
			return err
		}
		if err := txn.Delete(heightKey(prefixHeight, height)); err != nil {
			return err
		}
		if err := txn.Delete(heightKey(prefixDiff, height)); err != nil {
			return err
		}
		if err := applyChanges(txn, changes); err != nil {
			return err
		}

		if saveToTemp {
			if err := txn.Set(heightKey(prefixTemp, height), data); err != nil {
				return err
			}
		}

		return nil
	})
}

// =============================================================================

func applyChanges(txn *badgerdb.Txn, changes database.StateChanges) error {
	for _, kv := range changes.Set {
		if err := txn.Set(key(prefixState, kv.Key), kv.Value); err != nil {
			return err
		}
	}

	for _, k := range changes.Delete {
		if err := txn.Delete(key(prefixState, k)); err != nil {
			return err
		}
	}

	return nil
}

func getBlock(txn *badgerdb.Txn, id []byte) (database.Block, error) {
	data, err := get(txn, key(prefixBlock, id))
	if err != nil {
		return database.Block{}, err
	}

	return database.DecodeBlock(data)
}

// get returns a copy of the value and maps a missing key onto
// database.ErrNotFound.
func get(txn *badgerdb.Txn, k []byte) ([]byte, error) {
	item, err := txn.Get(k)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}

	return item.ValueCopy(nil)
}

func key(prefix []byte, k []byte) []byte {
	b := make([]byte, 0, len(prefix)+len(k))
	b = append(b, prefix...)
	return append(b, k...)
}

func heightKey(prefix []byte, height uint32) []byte {
	return binary.BigEndian.AppendUint32(append([]byte{}, prefix...), height)
}
