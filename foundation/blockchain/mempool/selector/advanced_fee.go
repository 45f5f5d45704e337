package selector

import (
	"sort"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common"
)

// advancedFeeSelect returns transactions with the best total fee while
// respecting the nonce for each sender/transaction. This strategy takes into
// account high-value transactions that happen to be stuck behind a low-nonce
// transaction with a low fee.
var advancedFeeSelect = func(m map[common.Address][]*database.Transaction, howMany int) []*database.Transaction {
	final := []*database.Transaction{}

	// Sort the transactions per sender by nonce.
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(byNonce(m[key]))
		}
	}

	af := newAdvancedFees(m, howMany)
	best := af.findBest()

	for _, from := range af.groups {
		final = append(final, m[from][:best[from]]...)
	}

	return final
}

// =============================================================================

type advancedFees struct {
	howMany   int
	bestFee   uint64
	bestPos   map[common.Address]int
	groupFees map[common.Address][]uint64
	groups    []common.Address
}

func newAdvancedFees(m map[common.Address][]*database.Transaction, howMany int) *advancedFees {
	groupFees := map[common.Address][]uint64{}
	groups := sortedSenders(m)

	// groupFees[from][n] is the total fee of taking the first n transactions.
	for _, from := range groups {
		groupFees[from] = []uint64{0}
		for i, tx := range m[from] {
			if i >= howMany {
				break
			}
			groupFees[from] = append(groupFees[from], tx.Fee()+groupFees[from][i])
		}
	}

	return &advancedFees{
		howMany:   howMany,
		bestPos:   map[common.Address]int{},
		groupFees: groupFees,
		groups:    groups,
	}
}

func (af *advancedFees) findBest() map[common.Address]int {
	af.findBestTransactions(0, af.howMany, map[common.Address]int{}, 0)
	return af.bestPos
}

func (af *advancedFees) findBestTransactions(groupID int, left int, currPos map[common.Address]int, prevFee uint64) {
	if prevFee > af.bestFee {
		af.bestFee = prevFee
		af.bestPos = currPos
	}

	if groupID >= len(af.groups) {
		return
	}
	from := af.groups[groupID]

	for pos, fee := range af.groupFees[from] {
		if left-pos < 0 {
			break
		}

		newCurrPos := copyMap(currPos)
		newCurrPos[from] = pos
		af.findBestTransactions(groupID+1, left-pos, newCurrPos, prevFee+fee)
	}
}

// =============================================================================

func copyMap(m map[common.Address]int) map[common.Address]int {
	newCurrPos := map[common.Address]int{}
	for from, pos := range m {
		newCurrPos[from] = pos
	}

	return newCurrPos
}
