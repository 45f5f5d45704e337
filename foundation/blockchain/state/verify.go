package state

import (
	"bytes"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/blockchain/slots"
)

// VerifyArgs holds the chain head and consensus state the stateful checks
// run against.
type VerifyArgs struct {
	LastBlock     database.Block
	GenesisHeader *database.BlockHeader
	Validators    database.Validators
	CachedHeaders []*database.BlockHeader
	Slots         *slots.Slots
	EvHandler     EventHandler
}

// VerifyBlockHeader checks the block extends the chain head, lands in a
// valid slot, carries a valid seed reveal for its reward and was produced
// by the validator that owns the slot.
func VerifyBlockHeader(block database.Block, args VerifyArgs) error {
	ev := args.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	header := block.Header
	height := header.Height()

	if args.GenesisHeader != nil && header.IsGenesis() {
		id, err := header.ID()
		if err != nil {
			return err
		}
		genesisID, err := args.GenesisHeader.ID()
		if err != nil {
			return err
		}
		if bytes.Equal(id, genesisID) {
			ev("state: VerifyBlockHeader: blk[%d]: check: genesis: exempt", height)
			return nil
		}
	}

	ev("state: VerifyBlockHeader: blk[%d]: check: previous block", height)

	if err := verifyPreviousBlock(header, args.LastBlock.Header); err != nil {
		return err
	}

	ev("state: VerifyBlockHeader: blk[%d]: check: slot", height)

	slot := args.Slots.SlotNumber(uint64(header.Timestamp()))

	if lastSlot := args.Slots.SlotNumber(uint64(args.LastBlock.Header.Timestamp())); slot <= lastSlot {
		return consensusErr(ErrStaleSlot, height, "slot %d, last block slot %d", slot, lastSlot)
	}

	if current := args.Slots.CurrentSlot(); slot > current {
		return consensusErr(ErrFutureSlot, height, "slot %d, current slot %d", slot, current)
	}

	ev("state: VerifyBlockHeader: blk[%d]: check: seed reveal", height)

	if !IsSeedRevealValid(header, args.CachedHeaders, len(args.Validators)) && header.Reward() != 0 {
		return consensusErr(ErrInvalidSeedReveal, height, "reward %d must be zero", header.Reward())
	}

	ev("state: VerifyBlockHeader: blk[%d]: check: generator", height)

	return verifyGenerator(header, slot, args.Validators)
}

func verifyPreviousBlock(header *database.BlockHeader, last *database.BlockHeader) error {
	height := header.Height()

	if height != last.Height()+1 {
		return consensusErr(ErrInvalidHeight, height, "last block height %d", last.Height())
	}

	lastID, err := last.ID()
	if err != nil {
		return err
	}

	if !bytes.Equal(header.PreviousBlockID(), lastID) {
		return consensusErr(ErrInvalidPreviousBlock, height, "got %x, expected %x", header.PreviousBlockID(), lastID)
	}

	return nil
}

func verifyGenerator(header *database.BlockHeader, slot uint64, validators database.Validators) error {
	height := header.Height()

	if len(validators) == 0 {
		return consensusErr(ErrInvalidGenerator, height, "no active validators")
	}

	expected := validators[slot%uint64(len(validators))]
	generator := signature.AddressFromPublicKey(header.GeneratorPublicKey())

	if generator != expected.Address {
		return consensusErr(ErrInvalidGenerator, height, "slot %d belongs to %s, got %s", slot, expected.Address, generator)
	}

	if !bytes.Equal(header.GeneratorAddress(), generator.Bytes()) {
		return consensusErr(ErrInvalidGenerator, height, "generator address does not match generator public key")
	}

	return nil
}

// =============================================================================

// LastValidatorsSetHeight returns the lowest height the seed reveal lookback
// covers: the start of the round two rounds before the one holding height.
func LastValidatorsSetHeight(height uint32, numberOfValidators int) uint32 {
	if numberOfValidators <= 0 {
		return 1
	}
	n := uint64(numberOfValidators)

	rounds := (uint64(height) + n - 1) / n
	if rounds < 2 {
		rounds = 2
	}

	return uint32((rounds-2)*n + 1)
}

// IsSeedRevealValid looks for the most recent cached block forged by the
// same generator inside the lookback window. A generator with no such block
// is valid. Otherwise the truncated hash of the new reveal must equal the
// previous reveal.
func IsSeedRevealValid(header *database.BlockHeader, cached []*database.BlockHeader, numberOfValidators int) bool {
	generator := header.GeneratorPublicKey()
	from := LastValidatorsSetHeight(header.Height(), numberOfValidators)

	for i := len(cached) - 1; i >= 0; i-- {
		prev := cached[i]

		if prev.Height() >= header.Height() {
			continue
		}

		if prev.Height() < from {
			return true
		}

		if !bytes.Equal(prev.GeneratorPublicKey(), generator) {
			continue
		}

		hash := signature.Hash(header.SeedReveal())
		return bytes.Equal(hash[:signature.SeedRevealLength], prev.SeedReveal())
	}

	return true
}
