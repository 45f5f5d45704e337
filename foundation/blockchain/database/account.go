package database

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
)

// GenesisModuleID is the module the genesis bootstrap asset is stored under.
var GenesisModuleID = []byte{0x00, 0x00, 0x00, 0x0d}

// Account represents information stored in the state store for an
// individual account.
type Account struct {
	Address common.Address `json:"address"`
	Balance uint64         `json:"balance"`
	Nonce   uint64         `json:"nonce"`
}

// Encode returns the canonical binary form of the account.
func (a Account) Encode() []byte {
	return AccountSchema.MustEncode(a.record())
}

func (a Account) record() codec.Record {
	return codec.Record{
		"address": a.Address.Bytes(),
		"balance": a.Balance,
		"nonce":   a.Nonce,
	}
}

// DecodeAccount parses the canonical binary form of an account.
func DecodeAccount(b []byte) (Account, error) {
	rec, err := AccountSchema.Decode(b)
	if err != nil {
		return Account{}, err
	}

	return accountFromRecord(rec), nil
}

func accountFromRecord(rec codec.Record) Account {
	return Account{
		Address: common.BytesToAddress(rec["address"].([]byte)),
		Balance: rec["balance"].(uint64),
		Nonce:   rec["nonce"].(uint64),
	}
}

// =============================================================================

// Validator is a member of the active validator set.
type Validator struct {
	Address                common.Address `json:"address"`
	MinActiveHeight        uint32         `json:"minActiveHeight"`
	IsConsensusParticipant bool           `json:"isConsensusParticipant"`
}

// Validators is the ordered active validator set. Slot s belongs to
// validators[s mod len].
type Validators []Validator

// Encode returns the canonical binary form of the validator set.
func (vs Validators) Encode() []byte {
	items := make([]any, len(vs))
	for i, v := range vs {
		items[i] = codec.Record{
			"address":                v.Address.Bytes(),
			"minActiveHeight":        v.MinActiveHeight,
			"isConsensusParticipant": v.IsConsensusParticipant,
		}
	}

	return ValidatorsSchema.MustEncode(codec.Record{"validators": items})
}

// DecodeValidators parses the canonical binary form of a validator set.
func DecodeValidators(b []byte) (Validators, error) {
	rec, err := ValidatorsSchema.Decode(b)
	if err != nil {
		return nil, err
	}

	items := rec["validators"].([]any)
	vs := make(Validators, len(items))
	for i, item := range items {
		r := item.(codec.Record)
		vs[i] = Validator{
			Address:                common.BytesToAddress(r["address"].([]byte)),
			MinActiveHeight:        r["minActiveHeight"].(uint32),
			IsConsensusParticipant: r["isConsensusParticipant"].(bool),
		}
	}

	return vs, nil
}

// Find returns the validator with the address.
func (vs Validators) Find(address common.Address) (Validator, bool) {
	for _, v := range vs {
		if v.Address == address {
			return v, true
		}
	}
	return Validator{}, false
}

// =============================================================================

// GenesisAsset is the bootstrap data stored in the genesis block.
type GenesisAsset struct {
	Accounts       []Account        `json:"accounts"`
	InitValidators []common.Address `json:"initValidators"`
}

// Encode returns the canonical binary form of the asset.
func (ga GenesisAsset) Encode() []byte {
	accounts := make([]any, len(ga.Accounts))
	for i, a := range ga.Accounts {
		accounts[i] = a.record()
	}

	validators := make([]any, len(ga.InitValidators))
	for i, addr := range ga.InitValidators {
		validators[i] = addr.Bytes()
	}

	return GenesisAssetSchema.MustEncode(codec.Record{
		"accounts":       accounts,
		"initValidators": validators,
	})
}

// DecodeGenesisAsset parses the canonical binary form of the asset.
func DecodeGenesisAsset(b []byte) (GenesisAsset, error) {
	rec, err := GenesisAssetSchema.Decode(b)
	if err != nil {
		return GenesisAsset{}, err
	}

	var ga GenesisAsset
	for _, item := range rec["accounts"].([]any) {
		ga.Accounts = append(ga.Accounts, accountFromRecord(item.(codec.Record)))
	}
	for _, addr := range bytesList(rec["initValidators"]) {
		ga.InitValidators = append(ga.InitValidators, common.BytesToAddress(addr))
	}

	return ga, nil
}
