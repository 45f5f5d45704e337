package mempool_test

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/mempool"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var networkID = []byte{0x01, 0x00, 0x00, 0x00}

func tran(seed byte, nonce uint64, fee uint64) *database.Transaction {
	pk := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))

	tx := database.NewTransaction(database.TxData{
		ModuleID:        2,
		SenderPublicKey: signature.PublicKey(pk),
		Nonce:           nonce,
		Fee:             fee,
	})

	return tx.Sign(networkID, pk)
}

func TestCRUD(t *testing.T) {
	t.Log("Given the need to manage the transactions waiting to be forged.")
	{
		mp, err := mempool.New()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the mempool: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the mempool.", success)

		txs := []*database.Transaction{
			tran(1, 0, 10),
			tran(1, 1, 20),
			tran(1, 2, 30),
			tran(2, 0, 50),
		}
		for _, tx := range txs {
			mp.Upsert(tx)
		}

		if n := mp.Count(); n != 4 {
			t.Fatalf("\t%s\tShould hold 4 transactions, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould hold 4 transactions.", success)

		if n := mp.Upsert(tran(1, 2, 90)); n != 4 {
			t.Fatalf("\t%s\tShould replace a transaction with the same nonce, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould replace a transaction with the same nonce.", success)

		best := mp.PickBest(-1)
		if len(best) != 4 {
			t.Fatalf("\t%s\tShould pick every transaction, got %d.", failed, len(best))
		}
		var found bool
		for _, tx := range best {
			if tx.Nonce() == 2 && tx.Fee() == 90 {
				found = true
			}
		}
		if !found {
			t.Fatalf("\t%s\tShould pick the replacement transaction.", failed)
		}
		t.Logf("\t%s\tShould pick every transaction including the replacement.", success)

		mp.Delete(txs[3])
		if n := mp.Count(); n != 3 {
			t.Fatalf("\t%s\tShould delete a transaction, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould delete a transaction.", success)

		sender := database.Account{Address: txs[0].SenderAddress(), Nonce: 2}
		if n := mp.DeleteStale(sender); n != 2 {
			t.Fatalf("\t%s\tShould delete the stale transactions, got %d.", failed, n)
		}
		if best := mp.PickBest(-1); len(best) != 1 || best[0].Nonce() != 2 {
			t.Fatalf("\t%s\tShould keep the transaction still to be forged.", failed)
		}
		t.Logf("\t%s\tShould delete the stale transactions.", success)

		mp.Truncate()
		if n := mp.Count(); n != 0 {
			t.Fatalf("\t%s\tShould be empty after truncate, got %d.", failed, n)
		}
		t.Logf("\t%s\tShould be empty after truncate.", success)
	}

	t.Log("Given an unknown selection strategy.")
	{
		if _, err := mempool.NewWithStrategy("lottery"); err == nil {
			t.Fatalf("\t%s\tShould fail to construct the mempool.", failed)
		}
		t.Logf("\t%s\tShould fail to construct the mempool.", success)
	}
}
