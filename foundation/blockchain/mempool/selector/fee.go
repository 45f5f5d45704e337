package selector

import (
	"bytes"
	"sort"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// feeSelect returns transactions with the best fee while respecting the nonce
// for each sender/transaction.
var feeSelect = func(m map[common.Address][]*database.Transaction, howMany int) []*database.Transaction {

	/*
		Bill: {Nonce: 2, Fee: 250},
			  {Nonce: 1, Fee: 150},
		Pavl: {Nonce: 2, Fee: 200},
			  {Nonce: 1, Fee: 75},
		Edua: {Nonce: 2, Fee: 75},
			  {Nonce: 1, Fee: 100},
	*/

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	/*
		Bill: {Nonce: 1, Fee: 150},
		      {Nonce: 2, Fee: 250},
		Pavl: {Nonce: 1, Fee: 75},
		      {Nonce: 2, Fee: 200},
		Edua: {Nonce: 1, Fee: 100},
		      {Nonce: 2, Fee: 75},
	*/

	// Pick the first transaction in the slice for each sender. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	senders := sortedSenders(m)

	var rows [][]*database.Transaction
	for {
		var row []*database.Transaction
		for _, from := range senders {
			if len(m[from]) > 0 {
				row = append(row, m[from][0])
				m[from] = m[from][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {Nonce: 1, Fee: 150},
		0: Pavl: {Nonce: 1, Fee: 75},
		0: Edua: {Nonce: 1, Fee: 100},
		1: Bill: {Nonce: 2, Fee: 250},
		1: Pavl: {Nonce: 2, Fee: 200},
		1: Edua: {Nonce: 2, Fee: 75},
	*/

	// Sort each row by fee unless we will take all transactions from that row
	// anyway. Then try to select the number of requested transactions. Keep
	// pulling transactions from each row until the amount of fulfilled or
	// there are no more transactions.
	final := []*database.Transaction{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Stable(byFee(row))
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	/*
		0: Bill: {Nonce: 1, Fee: 150},
		1: Pavl: {Nonce: 1, Fee: 75},
		2: Edua: {Nonce: 1, Fee: 100},
		3: Bill: {Nonce: 2, Fee: 250},
	*/

	return final
}

// sortedSenders returns the senders in address order so the selection does
// not depend on map iteration.
func sortedSenders(m map[common.Address][]*database.Transaction) []common.Address {
	senders := make([]common.Address, 0, len(m))
	for from := range m {
		senders = append(senders, from)
	}

	sort.Slice(senders, func(i, j int) bool {
		return bytes.Compare(senders[i].Bytes(), senders[j].Bytes()) < 0
	})

	return senders
}
