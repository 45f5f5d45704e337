// Package genesis maintains access to the genesis file.
package genesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date       time.Time         `json:"date"`
	NetworkID  string            `json:"network_id"`  // Hex id every signature in the chain commits to.
	BlockTime  uint32            `json:"block_time"`  // Seconds per slot.
	Height     uint32            `json:"height"`      // Height the chain starts at.
	InitRounds uint32            `json:"init_rounds"` // Rounds before the validator set can rotate.
	Balances   map[string]uint64 `json:"balances"`
	Validators []string          `json:"validators"`
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	err = json.Unmarshal(content, &genesis)
	if err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file.
func Save(path string, genesis Genesis) error {
	content, err := json.MarshalIndent(genesis, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, content, 0644)
}

// NetworkIDBytes decodes the hex network id.
func (g Genesis) NetworkIDBytes() ([]byte, error) {
	if !has0xPrefix(g.NetworkID) {
		return nil, errors.New("network id must be 0x prefixed hex")
	}

	id := common.FromHex(g.NetworkID)
	if len(id) == 0 {
		return nil, errors.New("network id must not be empty")
	}

	return id, nil
}

// Block builds the genesis block. Accounts are ordered by address and the
// validators keep the order of the file.
func (g Genesis) Block() (database.Block, error) {
	asset := database.GenesisAsset{
		Accounts: make([]database.Account, 0, len(g.Balances)),
	}

	for addr, balance := range g.Balances {
		if !common.IsHexAddress(addr) {
			return database.Block{}, fmt.Errorf("invalid account address %q", addr)
		}
		asset.Accounts = append(asset.Accounts, database.Account{
			Address: common.HexToAddress(addr),
			Balance: balance,
		})
	}

	sort.Slice(asset.Accounts, func(i, j int) bool {
		return bytes.Compare(asset.Accounts[i].Address.Bytes(), asset.Accounts[j].Address.Bytes()) < 0
	})

	if len(g.Validators) == 0 {
		return database.Block{}, errors.New("genesis requires at least one validator")
	}

	seen := make(map[common.Address]bool)
	for _, addr := range g.Validators {
		if !common.IsHexAddress(addr) {
			return database.Block{}, fmt.Errorf("invalid validator address %q", addr)
		}

		a := common.HexToAddress(addr)
		if seen[a] {
			return database.Block{}, fmt.Errorf("duplicate validator address %q", addr)
		}
		seen[a] = true

		asset.InitValidators = append(asset.InitValidators, a)
	}

	assets := database.NewBlockAssets(database.Asset{
		ModuleID: database.GenesisModuleID,
		Data:     asset.Encode(),
	})

	header := database.NewBlockHeader(database.HeaderFields{
		Timestamp:         uint32(g.Date.Unix()),
		Height:            g.Height,
		PreviousBlockID:   make([]byte, signature.HashLength),
		TransactionRoot:   signature.EmptyHash,
		AssetsRoot:        assets.Root(),
		MaxHeightPrevoted: g.Height,
	}, database.GenesisExtension{InitRounds: g.InitRounds})

	block := database.NewBlock(header, nil, assets)
	if err := block.ValidateGenesis(); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// LoadBlock reads a genesis block from its JSON form.
func LoadBlock(path string) (database.Block, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return database.Block{}, err
	}

	block, err := database.BlockFromJSON(content)
	if err != nil {
		return database.Block{}, err
	}

	if err := block.ValidateGenesis(); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// SaveBlock writes the JSON form of the genesis block.
func SaveBlock(path string, block database.Block) error {
	content, err := block.ToJSON()
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, content, "", "  "); err != nil {
		return err
	}

	return os.WriteFile(path, out.Bytes(), 0644)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
