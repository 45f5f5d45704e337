package worker

import (
	"bytes"
	"crypto/ed25519"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
)

// revealChainLength is the number of blocks a validator can forge before
// its reveal chain starts over.
const revealChainLength = 10_000

// revealChain is a hash onion of seed reveals. Every reveal is the truncated
// hash of the one after it, so revealing them in order satisfies the seed
// reveal check of the next block.
type revealChain struct {
	reveals [][]byte
	index   map[string]int
}

func newRevealChain(privateKey ed25519.PrivateKey, length int) *revealChain {
	reveals := make([][]byte, length)

	secret := signature.Hash([]byte("seed-reveal"), privateKey.Seed())
	reveals[length-1] = secret[:signature.SeedRevealLength]

	for i := length - 2; i >= 0; i-- {
		hash := signature.Hash(reveals[i+1])
		reveals[i] = hash[:signature.SeedRevealLength]
	}

	index := make(map[string]int, length)
	for i, reveal := range reveals {
		index[string(reveal)] = i
	}

	return &revealChain{
		reveals: reveals,
		index:   index,
	}
}

// next returns the reveal that follows the most recent reveal of the
// generator found in the cached headers. A generator with no cached block,
// or one whose last reveal is not on this chain, starts at the beginning.
func (rc *revealChain) next(generator []byte, cached []*database.BlockHeader) []byte {
	for i := len(cached) - 1; i >= 0; i-- {
		h := cached[i]
		if !bytes.Equal(h.GeneratorPublicKey(), generator) {
			continue
		}

		pos, exists := rc.index[string(h.SeedReveal())]
		if !exists || pos+1 >= len(rc.reveals) {
			break
		}

		return rc.reveals[pos+1]
	}

	return rc.reveals[0]
}
