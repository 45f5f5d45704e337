package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
)

// Set of consensus violations a block can be rejected for.
var (
	ErrInvalidSignature       = errors.New("invalid block signature")
	ErrInvalidReward          = errors.New("invalid block reward")
	ErrPayloadTooLarge        = errors.New("payload length too large")
	ErrInvalidTransactionRoot = database.ErrInvalidTransactionRoot
	ErrInvalidAssetsRoot      = database.ErrInvalidAssetsRoot
	ErrInvalidHeight          = errors.New("invalid block height")
	ErrInvalidPreviousBlock   = errors.New("invalid previous block id")
	ErrFutureSlot             = errors.New("block slot is in the future")
	ErrStaleSlot              = errors.New("block slot is not after the last block")
	ErrInvalidSeedReveal      = errors.New("invalid seed reveal")
	ErrInvalidGenerator       = errors.New("invalid generator for slot")
	ErrInvalidNonce           = errors.New("invalid transaction nonce")
	ErrInsufficientBalance    = errors.New("insufficient balance")
)

// ErrRemoveFinalized is returned when a removal would rewind the chain at or
// below the finalized height.
var ErrRemoveFinalized = errors.New("cannot remove a finalized block")

// Set of conditions that leave the chain in a state that can't be trusted.
var (
	ErrRemoveGenesis       = errors.New("cannot remove the genesis block")
	ErrMissingPredecessor  = errors.New("previous block is not persisted")
	ErrGenesisMismatch     = errors.New("persisted genesis block does not match the configured genesis block")
	ErrMissingGenesisAsset = errors.New("genesis block has no genesis asset")
)

// ConsensusError is returned when a block violates a consensus rule. The
// kind identifies the rule and can be matched with errors.Is.
type ConsensusError struct {
	Kind   error
	Height uint32
	Msg    string
}

// Error implements the error interface.
func (ce *ConsensusError) Error() string {
	if ce.Msg == "" {
		return fmt.Sprintf("blk[%d]: %s", ce.Height, ce.Kind)
	}
	return fmt.Sprintf("blk[%d]: %s: %s", ce.Height, ce.Kind, ce.Msg)
}

// Unwrap returns the kind of violation.
func (ce *ConsensusError) Unwrap() error {
	return ce.Kind
}

func consensusErr(kind error, height uint32, format string, args ...any) error {
	return &ConsensusError{Kind: kind, Height: height, Msg: fmt.Sprintf(format, args...)}
}

// IsConsensusError checks if an error of type ConsensusError exists.
func IsConsensusError(err error) bool {
	var ce *ConsensusError
	return errors.As(err, &ce)
}

// =============================================================================

// FatalError marks an error after which the in memory head and persisted
// chain can no longer be trusted to agree. The node must halt.
type FatalError struct {
	Err error
}

// Error implements the error interface.
func (fe *FatalError) Error() string {
	return "fatal: " + fe.Err.Error()
}

// Unwrap returns the underlying cause.
func (fe *FatalError) Unwrap() error {
	return fe.Err
}

func fatal(err error) error {
	return &FatalError{Err: err}
}

// storageFailure marks a storage error on the commit path as fatal. A
// cancelled or expired context is returned as is since the storage layer
// checks it before writing anything.
func storageFailure(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fatal(err)
}

// IsFatal checks if an error of type FatalError exists.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
