package database

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/merkle"
	"github.com/ardanlabs/dpos/foundation/validate"
)

// Set of errors for blocks whose header doesn't commit to the contents.
var (
	ErrInvalidTransactionRoot = errors.New("invalid transaction root")
	ErrInvalidAssetsRoot      = errors.New("invalid block header asset root")
)

// Block represents a header together with the transactions and assets it
// commits to.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
	Assets       *BlockAssets
}

// NewBlock constructs a block. A nil asset list is treated as empty.
func NewBlock(header *BlockHeader, txs []*Transaction, assets *BlockAssets) Block {
	if assets == nil {
		assets = NewBlockAssets()
	}

	return Block{
		Header:       header,
		Transactions: append([]*Transaction(nil), txs...),
		Assets:       assets,
	}
}

// DecodeBlock parses the canonical binary form of a block.
func DecodeBlock(b []byte) (Block, error) {
	rec, err := BlockSchema.Decode(b)
	if err != nil {
		return Block{}, err
	}

	header, err := DecodeBlockHeader(rec["header"].([]byte))
	if err != nil {
		return Block{}, err
	}

	items := bytesList(rec["transactions"])
	txs := make([]*Transaction, len(items))
	for i, item := range items {
		tx, err := DecodeTransaction(item)
		if err != nil {
			return Block{}, err
		}
		txs[i] = tx
	}

	assets, err := DecodeBlockAssets(bytesList(rec["assets"]))
	if err != nil {
		return Block{}, err
	}

	return Block{Header: header, Transactions: txs, Assets: assets}, nil
}

// ID returns the id of the block header.
func (b Block) ID() ([]byte, error) {
	return b.Header.ID()
}

// Height returns the height of the block.
func (b Block) Height() uint32 {
	return b.Header.Height()
}

// TransactionRoot returns the merkle root over the transaction ids.
func (b Block) TransactionRoot() []byte {
	ids := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		ids[i] = tx.ID()
	}
	return merkle.RootOf(ids)
}

// PayloadSize returns the length of the concatenated transaction encodings.
func (b Block) PayloadSize() int {
	var size int
	for _, tx := range b.Transactions {
		size += tx.Size()
	}
	return size
}

// Validate checks the header, every transaction and the assets, then checks
// the header roots commit to the contents.
func (b Block) Validate() error {
	if err := b.Header.Validate(); err != nil {
		return err
	}

	if err := b.validateTransactions(); err != nil {
		return err
	}

	if err := b.Assets.Validate(); err != nil {
		return err
	}

	return b.validateRoots()
}

// ValidateGenesis is like Validate but applies the genesis header rules and
// allows unbounded assets.
func (b Block) ValidateGenesis() error {
	if err := b.Header.ValidateGenesis(); err != nil {
		return err
	}

	if err := b.validateTransactions(); err != nil {
		return err
	}

	if err := b.Assets.ValidateGenesis(); err != nil {
		return err
	}

	return b.validateRoots()
}

func (b Block) validateTransactions() error {
	var fe validate.FieldErrors

	seen := make(map[string]struct{}, len(b.Transactions))
	for i, tx := range b.Transactions {
		field := fmt.Sprintf("transactions[%d]", i)
		fe.Merge(field, tx.Validate())

		id := string(tx.ID())
		if _, exists := seen[id]; exists {
			fe.Add(field, "duplicate transaction")
		}
		seen[id] = struct{}{}
	}

	return fe.Err()
}

func (b Block) validateRoots() error {
	if !bytes.Equal(b.Header.TransactionRoot(), b.TransactionRoot()) {
		return ErrInvalidTransactionRoot
	}

	if !bytes.Equal(b.Header.AssetsRoot(), b.Assets.Root()) {
		return ErrInvalidAssetsRoot
	}

	return nil
}

// Encode returns the canonical binary form of the block.
func (b Block) Encode() []byte {
	txs := make([][]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.Encode()
	}

	return BlockSchema.MustEncode(codec.Record{
		"header":       b.Header.Encode(),
		"transactions": anyList(txs),
		"assets":       anyList(b.Assets.Encode()),
	})
}

// =============================================================================

// blockJSON is the JSON projection of a block. Every part uses the JSON
// projection of its own schema.
type blockJSON struct {
	Header       json.RawMessage   `json:"header"`
	Transactions []json.RawMessage `json:"transactions"`
	Assets       []json.RawMessage `json:"assets"`
}

// ToJSON returns the JSON projection of the block.
func (b Block) ToJSON() ([]byte, error) {
	header, err := b.Header.ToJSON()
	if err != nil {
		return nil, err
	}

	bj := blockJSON{
		Header:       header,
		Transactions: make([]json.RawMessage, len(b.Transactions)),
		Assets:       make([]json.RawMessage, b.Assets.Len()),
	}

	for i, tx := range b.Transactions {
		if bj.Transactions[i], err = tx.ToJSON(); err != nil {
			return nil, err
		}
	}

	for i, a := range b.Assets.Assets() {
		rec := codec.Record{"moduleID": a.ModuleID, "data": a.Data}
		if bj.Assets[i], err = AssetSchema.ToJSON(rec); err != nil {
			return nil, err
		}
	}

	return json.Marshal(bj)
}

// BlockFromJSON parses the JSON projection of a block.
func BlockFromJSON(data []byte) (Block, error) {
	var bj blockJSON
	if err := json.Unmarshal(data, &bj); err != nil {
		return Block{}, &codec.DecodeError{Schema: BlockSchema.ID, Err: err}
	}

	if bj.Header == nil {
		return Block{}, &codec.DecodeError{Schema: BlockSchema.ID, Field: "header", Err: errors.New("missing header")}
	}

	header, err := BlockHeaderFromJSON(bj.Header)
	if err != nil {
		return Block{}, err
	}

	txs := make([]*Transaction, len(bj.Transactions))
	for i, raw := range bj.Transactions {
		if txs[i], err = TransactionFromJSON(raw); err != nil {
			return Block{}, err
		}
	}

	assets := make([]Asset, len(bj.Assets))
	for i, raw := range bj.Assets {
		rec, err := AssetSchema.FromJSON(raw)
		if err != nil {
			return Block{}, err
		}
		assets[i] = Asset{ModuleID: rec["moduleID"].([]byte), Data: rec["data"].([]byte)}
	}

	return Block{Header: header, Transactions: txs, Assets: NewBlockAssets(assets...)}, nil
}
