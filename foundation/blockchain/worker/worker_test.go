package worker_test

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/database/storage/memory"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/reward"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/state"
	"github.com/ardanlabs/dpos/foundation/blockchain/statestore"
	"github.com/ardanlabs/dpos/foundation/blockchain/worker"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var networkID = []byte{0x01, 0x00, 0x00, 0x00}

var rewardArgs = reward.Args{Distance: 100, RewardOffset: 1, Milestones: []uint64{500}}

func key(seed byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

var (
	validatorKeys = []ed25519.PrivateKey{key(1), key(2), key(3)}
	senderKey     = key(9)
	brokeKey      = key(8)
)

func genesisBlock() database.Block {
	asset := database.GenesisAsset{
		Accounts: []database.Account{{Address: signature.AddressFromPublicKey(signature.PublicKey(senderKey)), Balance: 1_000_000}},
	}
	for _, pk := range validatorKeys {
		asset.InitValidators = append(asset.InitValidators, signature.AddressFromPublicKey(signature.PublicKey(pk)))
	}

	assets := database.NewBlockAssets(database.Asset{ModuleID: database.GenesisModuleID, Data: asset.Encode()})

	header := database.NewBlockHeader(database.HeaderFields{
		Timestamp:       1000,
		PreviousBlockID: make([]byte, signature.HashLength),
		TransactionRoot: signature.EmptyHash,
		AssetsRoot:      assets.Root(),
	}, database.GenesisExtension{InitRounds: 3})

	return database.NewBlock(header, nil, assets)
}

func transfer(pk ed25519.PrivateKey, nonce uint64, fee uint64) *database.Transaction {
	tx := database.NewTransaction(database.TxData{
		ModuleID:        2,
		SenderPublicKey: signature.PublicKey(pk),
		Nonce:           nonce,
		Fee:             fee,
	})
	return tx.Sign(networkID, pk)
}

// =============================================================================

func Test_ForgeBlock(t *testing.T) {
	t.Log("Given the need to forge blocks for the slots a node owns.")
	{
		now := time.Unix(10_000, 0)

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
		}

		st, err := state.New(state.Config{
			NetworkID:    networkID,
			GenesisBlock: genesisBlock(),
			RewardArgs:   rewardArgs,
			Storage:      memory.New(),
			Observers:    []state.Observer{mp},
			Clock:        func() time.Time { return now },
			EvHandler:    func(v string, args ...any) { t.Logf(v, args...) },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		if err := st.Init(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to init the state: %v", failed, err)
		}

		w, err := worker.New(worker.Config{
			State:     st,
			Mempool:   mp,
			Keys:      validatorKeys,
			EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the worker: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the worker.", success)

		mp.Upsert(transfer(senderKey, 0, 100))
		mp.Upsert(transfer(senderKey, 1, 50))
		mp.Upsert(transfer(senderKey, 5, 10))
		mp.Upsert(transfer(brokeKey, 0, 1))

		block, err := w.ForgeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to forge the first block: %v", failed, err)
		}
		if block.Height() != 1 || st.LastBlock().Header.IDHex() != block.Header.IDHex() {
			t.Fatalf("\t%s\tShould commit the forged block as the head.", failed)
		}
		t.Logf("\t%s\tShould commit the forged block as the head.", success)

		if len(block.Transactions) != 2 {
			t.Fatalf("\t%s\tShould only include the transactions that apply: got %d", failed, len(block.Transactions))
		}
		t.Logf("\t%s\tShould only include the transactions that apply.", success)

		if n := mp.Count(); n != 2 {
			t.Fatalf("\t%s\tShould drop the forged transactions from the mempool: got %d", failed, n)
		}
		t.Logf("\t%s\tShould drop the forged transactions from the mempool.", success)

		sender, err := statestore.New(st.Storage()).GetAccount(signature.AddressFromPublicKey(signature.PublicKey(senderKey)))
		if err != nil || sender.Balance != 1_000_000-150 || sender.Nonce != 2 {
			t.Fatalf("\t%s\tShould charge the sender the fees: %+v, %v", failed, sender, err)
		}
		t.Logf("\t%s\tShould charge the sender the fees.", success)

		if got := block.Header.Reward(); got != reward.CalculateReward(1, rewardArgs) {
			t.Fatalf("\t%s\tShould claim the full reward: got %d", failed, got)
		}
		t.Logf("\t%s\tShould claim the full reward.", success)

		if _, err := w.ForgeBlock(context.Background()); !errors.Is(err, worker.ErrSlotForged) {
			t.Fatalf("\t%s\tShould refuse to forge twice in a slot: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse to forge twice in a slot.", success)

		now = now.Add(10 * time.Second)
		if _, err := w.ForgeBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould forge the block of the next slot: %v", failed, err)
		}
		t.Logf("\t%s\tShould forge the block of the next slot.", success)

		// Two slots later the generator of the first block owns the slot
		// again and must reveal the preimage of its last seed reveal.
		now = now.Add(20 * time.Second)
		third, err := w.ForgeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould forge a block chaining the seed reveal: %v", failed, err)
		}
		if !bytes.Equal(third.Header.GeneratorPublicKey(), block.Header.GeneratorPublicKey()) {
			t.Fatalf("\t%s\tShould be forged by the same generator.", failed)
		}
		hash := signature.Hash(third.Header.SeedReveal())
		if !bytes.Equal(hash[:signature.SeedRevealLength], block.Header.SeedReveal()) {
			t.Fatalf("\t%s\tShould reveal the preimage of the previous reveal.", failed)
		}
		if got := third.Header.Reward(); got == 0 || got != reward.CalculateReward(3, rewardArgs) {
			t.Fatalf("\t%s\tShould keep claiming the full reward: got %d", failed, got)
		}
		t.Logf("\t%s\tShould forge a block chaining the seed reveal.", success)
	}

	t.Log("Given a worker that does not own the current slot.")
	{
		st, err := state.New(state.Config{
			NetworkID:    networkID,
			GenesisBlock: genesisBlock(),
			RewardArgs:   rewardArgs,
			Storage:      memory.New(),
			Clock:        func() time.Time { return time.Unix(10_000, 0) },
		})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %v", failed, err)
		}
		if err := st.Init(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould be able to init the state: %v", failed, err)
		}

		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
		}

		// Slot 1000 belongs to the second validator.
		w, err := worker.New(worker.Config{State: st, Mempool: mp, Keys: []ed25519.PrivateKey{validatorKeys[0]}})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the worker: %v", failed, err)
		}

		if _, err := w.ForgeBlock(context.Background()); !errors.Is(err, worker.ErrNotSelected) {
			t.Fatalf("\t%s\tShould not forge for another validator: %v", failed, err)
		}
		t.Logf("\t%s\tShould not forge for another validator.", success)

		if st.LastBlock().Height() != 0 {
			t.Fatalf("\t%s\tShould leave the chain untouched.", failed)
		}
		t.Logf("\t%s\tShould leave the chain untouched.", success)
	}
}
