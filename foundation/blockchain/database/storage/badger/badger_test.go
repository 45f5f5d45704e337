package badger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/database/storage/badger"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func chain(n int) []database.Block {
	prev := make([]byte, signature.HashLength)

	blocks := make([]database.Block, n)
	for i := range blocks {
		header := database.NewBlockHeader(database.HeaderFields{
			Timestamp:         uint32(i * 10),
			Height:            uint32(i),
			PreviousBlockID:   prev,
			TransactionRoot:   signature.EmptyHash,
			AssetsRoot:        signature.EmptyHash,
			MaxHeightPrevoted: uint32(i),
		}, database.GenesisExtension{InitRounds: 3})

		blocks[i] = database.NewBlock(header, nil, nil)
		prev, _ = header.ID()
	}

	return blocks
}

// =============================================================================

func Test_Storage(t *testing.T) {
	ctx := context.Background()
	blocks := chain(3)
	m, err := badger.NewInMemory()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to open badger: %v", failed, err)
	}
	defer m.Close()

	t.Log("Given the need to persist blocks and state in badger.")
	{
		if _, err := m.GetLastBlock(); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("\t%s\tShould report an empty chain as not found: %v", failed, err)
		}
		t.Logf("\t%s\tShould report an empty chain as not found.", success)

		for i, block := range blocks {
			changes := database.StateChanges{
				Set:  []database.KV{{Key: []byte("k"), Value: []byte{byte(i)}}},
				Diff: database.StateDiff{Created: [][]byte{[]byte("k")}},
			}
			if err := m.SaveBlock(ctx, block, changes, uint32(i), false); err != nil {
				t.Fatalf("\t%s\tShould be able to save block %d: %v", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould be able to save blocks.", success)

		last, err := m.GetLastBlock()
		if err != nil || last.Height() != 2 {
			t.Fatalf("\t%s\tShould return the last block: %v", failed, err)
		}
		t.Logf("\t%s\tShould return the last block.", success)

		headers, err := m.GetBlockHeadersByHeightBetween(1, 5)
		if err != nil || len(headers) != 2 || headers[0].Height() != 1 || headers[1].Height() != 2 {
			t.Fatalf("\t%s\tShould return headers in ascending order: %v", failed, err)
		}
		t.Logf("\t%s\tShould return headers in ascending order.", success)

		value, err := m.GetState([]byte("k"))
		if err != nil || value[0] != 2 {
			t.Fatalf("\t%s\tShould apply state changes: %v", failed, err)
		}
		t.Logf("\t%s\tShould apply state changes.", success)

		diff, err := m.GetDiff(2)
		if err != nil || len(diff.Created) != 1 {
			t.Fatalf("\t%s\tShould record the diff: %v", failed, err)
		}
		t.Logf("\t%s\tShould record the diff.", success)

		if h, _ := m.GetFinalizedHeight(); h != 2 {
			t.Fatalf("\t%s\tShould track the finalized height, got %d.", failed, h)
		}
		t.Logf("\t%s\tShould track the finalized height.", success)

		revert := database.StateChanges{Delete: [][]byte{[]byte("k")}}
		if err := m.DeleteBlock(ctx, blocks[2], revert, true); err != nil {
			t.Fatalf("\t%s\tShould be able to delete the last block: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to delete the last block.", success)

		id, _ := blocks[2].ID()
		if ok, _ := m.IsBlockPersisted(id); ok {
			t.Fatalf("\t%s\tShould no longer hold the deleted block.", failed)
		}
		if _, err := m.GetState([]byte("k")); !errors.Is(err, database.ErrNotFound) {
			t.Fatalf("\t%s\tShould apply the revert changes: %v", failed, err)
		}
		t.Logf("\t%s\tShould remove the block and revert state.", success)

		temp, err := m.GetTempBlocks()
		if err != nil || len(temp) != 1 || temp[0].Height() != 2 {
			t.Fatalf("\t%s\tShould archive the deleted block: %v", failed, err)
		}
		t.Logf("\t%s\tShould archive the deleted block.", success)

		if err := m.SaveBlock(ctx, blocks[2], database.StateChanges{}, 2, true); err != nil {
			t.Fatalf("\t%s\tShould be able to save the block again: %v", failed, err)
		}
		if temp, _ := m.GetTempBlocks(); len(temp) != 0 {
			t.Fatalf("\t%s\tShould remove the block from the temp table.", failed)
		}
		t.Logf("\t%s\tShould remove the block from the temp table.", success)
	}
}
