package public

import (
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

type status struct {
	NetworkID       string `json:"networkID"`
	Height          uint32 `json:"height"`
	BlockID         string `json:"blockID"`
	Timestamp       uint32 `json:"timestamp"`
	FinalizedHeight uint32 `json:"finalizedHeight"`
	BlockTime       uint64 `json:"blockTime"`
	CurrentSlot     uint64 `json:"currentSlot"`
	Validators      int    `json:"validators"`
	CachedHeaders   int    `json:"cachedHeaders"`
}

type account struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance,string"`
	Nonce   uint64 `json:"nonce,string"`
}

func toAccount(a database.Account) account {
	return account{
		Address: a.Address.Hex(),
		Balance: a.Balance,
		Nonce:   a.Nonce,
	}
}

type validator struct {
	Address                string `json:"address"`
	Name                   string `json:"name"`
	MinActiveHeight        uint32 `json:"minActiveHeight"`
	IsConsensusParticipant bool   `json:"isConsensusParticipant"`
}

// blockEvent is sent to websocket clients when a block is committed or
// removed.
type blockEvent struct {
	Height          uint32    `json:"height"`
	BlockID         string    `json:"blockID"`
	UpdatedAccounts []account `json:"updatedAccounts"`
}

// NewBlockEvent converts a chain event into the form sent to websocket
// clients.
func NewBlockEvent(block database.Block, accounts []database.Account) any {
	ev := blockEvent{
		Height:          block.Height(),
		BlockID:         block.Header.IDHex(),
		UpdatedAccounts: make([]account, len(accounts)),
	}

	for i, a := range accounts {
		ev.UpdatedAccounts[i] = toAccount(a)
	}

	return ev
}
