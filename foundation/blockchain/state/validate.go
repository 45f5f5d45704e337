package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/reward"
)

// ValidateArgs holds the chain constants the stateless checks need.
type ValidateArgs struct {
	NetworkID        []byte
	RewardArgs       reward.Args
	MaxPayloadLength int
	EvHandler        EventHandler
}

// ValidateBlockHeader runs the stateless header checks. It never reads
// chain state so any number of candidate blocks can be checked in parallel.
func ValidateBlockHeader(block database.Block, args ValidateArgs) error {
	ev := args.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	header := block.Header
	height := header.Height()

	if header.IsGenesis() {
		ev("state: ValidateBlockHeader: blk[%d]: check: genesis", height)
		return block.ValidateGenesis()
	}

	ev("state: ValidateBlockHeader: blk[%d]: check: header schema", height)

	if err := header.Validate(); err != nil {
		return err
	}

	ev("state: ValidateBlockHeader: blk[%d]: check: header extension", height)

	forger, ok := header.Forger()
	if !ok {
		return fmt.Errorf("blk[%d]: unsupported header version %d", height, header.Version())
	}

	if err := forger.Validate(); err != nil {
		return err
	}

	ev("state: ValidateBlockHeader: blk[%d]: check: signature", height)

	if !header.VerifySignature(args.NetworkID, forger.GeneratorPublicKey) {
		return consensusErr(ErrInvalidSignature, height, "generator %x", forger.GeneratorPublicKey)
	}

	ev("state: ValidateBlockHeader: blk[%d]: check: reward", height)

	if expected := reward.CalculateReward(height, args.RewardArgs); forger.Reward > expected {
		return consensusErr(ErrInvalidReward, height, "reward %d exceeds %d", forger.Reward, expected)
	}

	ev("state: ValidateBlockHeader: blk[%d]: check: payload", height)

	if size := block.PayloadSize(); size > args.MaxPayloadLength {
		return consensusErr(ErrPayloadTooLarge, height, "payload %d exceeds %d", size, args.MaxPayloadLength)
	}

	if !bytes.Equal(header.TransactionRoot(), block.TransactionRoot()) {
		return consensusErr(ErrInvalidTransactionRoot, height, "")
	}

	return nil
}

// ValidateBlock runs ValidateBlockHeader then checks the transactions and
// assets the header commits to, including every transaction signature.
func ValidateBlock(block database.Block, args ValidateArgs) error {
	if err := ValidateBlockHeader(block, args); err != nil {
		return err
	}

	if block.Header.IsGenesis() {
		return nil
	}

	if err := block.Validate(); err != nil {
		if errors.Is(err, ErrInvalidAssetsRoot) || errors.Is(err, ErrInvalidTransactionRoot) {
			return consensusErr(err, block.Height(), "")
		}
		return err
	}

	for _, tx := range block.Transactions {
		if err := tx.VerifySignature(args.NetworkID); err != nil {
			return consensusErr(ErrInvalidSignature, block.Height(), "transaction %x: %s", tx.ID(), err)
		}
	}

	return nil
}
