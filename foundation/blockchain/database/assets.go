package database

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/merkle"
	"github.com/ardanlabs/dpos/foundation/validate"
)

// MaxAssetDataLength is the largest asset a module may attach to a block
// outside of genesis.
const MaxAssetDataLength = 64

// ModuleIDLength is the width of an asset module id.
const ModuleIDLength = 4

// Asset is data a module attaches to a block.
type Asset struct {
	ModuleID []byte `json:"moduleID" validate:"len=4"`
	Data     []byte `json:"data"`
}

// Encode returns the canonical binary form of the asset.
func (a Asset) Encode() []byte {
	return AssetSchema.MustEncode(codec.Record{
		"moduleID": a.ModuleID,
		"data":     a.Data,
	})
}

// DecodeAsset parses the canonical binary form of an asset.
func DecodeAsset(b []byte) (Asset, error) {
	rec, err := AssetSchema.Decode(b)
	if err != nil {
		return Asset{}, err
	}

	return Asset{
		ModuleID: rec["moduleID"].([]byte),
		Data:     rec["data"].([]byte),
	}, nil
}

// =============================================================================

// BlockAssets is the immutable list of assets in a block. Every change
// returns a new list so the root can never go stale.
type BlockAssets struct {
	assets   []Asset
	rootOnce sync.Once
	root     []byte
}

// NewBlockAssets constructs a list from copies of the assets in the order
// provided.
func NewBlockAssets(assets ...Asset) *BlockAssets {
	list := make([]Asset, len(assets))
	for i, a := range assets {
		list[i] = Asset{ModuleID: clone(a.ModuleID), Data: clone(a.Data)}
	}

	return &BlockAssets{assets: list}
}

// DecodeBlockAssets parses a list of encoded assets.
func DecodeBlockAssets(items [][]byte) (*BlockAssets, error) {
	list := make([]Asset, len(items))
	for i, item := range items {
		a, err := DecodeAsset(item)
		if err != nil {
			return nil, err
		}
		list[i] = a
	}

	return &BlockAssets{assets: list}, nil
}

// list returns the assets held. A nil list holds none.
func (ba *BlockAssets) list() []Asset {
	if ba == nil {
		return nil
	}
	return ba.assets
}

// Len returns the number of assets.
func (ba *BlockAssets) Len() int {
	return len(ba.list())
}

// Assets returns copies of the assets in order.
func (ba *BlockAssets) Assets() []Asset {
	list := make([]Asset, ba.Len())
	for i, a := range ba.list() {
		list[i] = Asset{ModuleID: clone(a.ModuleID), Data: clone(a.Data)}
	}
	return list
}

// GetAsset returns the data for the module if the list holds it.
func (ba *BlockAssets) GetAsset(moduleID []byte) ([]byte, bool) {
	for _, a := range ba.list() {
		if bytes.Equal(a.ModuleID, moduleID) {
			return clone(a.Data), true
		}
	}
	return nil, false
}

// SetAsset returns a new list with the asset appended. A module can only
// attach one asset to a block.
func (ba *BlockAssets) SetAsset(moduleID []byte, data []byte) (*BlockAssets, error) {
	if _, exists := ba.GetAsset(moduleID); exists {
		return nil, fmt.Errorf("module id %x already has an asset", moduleID)
	}

	assets := append(ba.Assets(), Asset{ModuleID: moduleID, Data: data})
	return NewBlockAssets(assets...), nil
}

// Sort returns a new list ordered by ascending module id.
func (ba *BlockAssets) Sort() *BlockAssets {
	assets := ba.Assets()
	sort.SliceStable(assets, func(i, j int) bool {
		return bytes.Compare(assets[i].ModuleID, assets[j].ModuleID) < 0
	})

	return &BlockAssets{assets: assets}
}

// Encode returns the canonical encoding of every asset in order.
func (ba *BlockAssets) Encode() [][]byte {
	items := make([][]byte, ba.Len())
	for i, a := range ba.list() {
		items[i] = a.Encode()
	}
	return items
}

// Root returns the merkle root over the encoded assets.
func (ba *BlockAssets) Root() []byte {
	if ba == nil {
		return merkle.RootOf(nil)
	}

	ba.rootOnce.Do(func() {
		ba.root = merkle.RootOf(ba.Encode())
	})

	return clone(ba.root)
}

// Validate checks every asset conforms to its schema, the module ids are
// strictly increasing and no asset is larger than MaxAssetDataLength.
func (ba *BlockAssets) Validate() error {
	return ba.validate(true)
}

// ValidateGenesis is like Validate but allows assets of any size since
// genesis carries the bootstrap data.
func (ba *BlockAssets) ValidateGenesis() error {
	return ba.validate(false)
}

func (ba *BlockAssets) validate(bounded bool) error {
	var fe validate.FieldErrors

	assets := ba.list()

	seen := make(map[string]struct{}, len(assets))
	for i, a := range assets {
		field := fmt.Sprintf("assets[%d]", i)
		fe.Check(field, a)

		if bounded && len(a.Data) > MaxAssetDataLength {
			fe.Add(field+".data", fmt.Sprintf("data must be at most %d bytes", MaxAssetDataLength))
		}

		if _, exists := seen[string(a.ModuleID)]; exists {
			fe.Add(field+".moduleID", fmt.Sprintf("duplicate module id %x", a.ModuleID))
		}
		seen[string(a.ModuleID)] = struct{}{}

		if i > 0 && bytes.Compare(assets[i-1].ModuleID, a.ModuleID) > 0 {
			fe.Add(field+".moduleID", "assets must be sorted by module id")
		}
	}

	return fe.Err()
}
