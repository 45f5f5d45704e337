package database

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/validate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of errors for accessing derived header fields.
var (
	ErrNotSigned = errors.New("block header is not signed")
	ErrNoID      = errors.New("cannot derive block header id before signing")
)

// AggregateCommit is the certificate for the finality protocol. It is
// carried as is.
type AggregateCommit struct {
	Height               uint32 `json:"height"`
	AggregationBits      []byte `json:"aggregationBits"`
	CertificateSignature []byte `json:"certificateSignature"`
}

// HeaderFields is the information a block header is built from.
type HeaderFields struct {
	Timestamp          uint32          `json:"timestamp"`
	Height             uint32          `json:"height"`
	PreviousBlockID    []byte          `json:"previousBlockID" validate:"max=32"`
	GeneratorAddress   []byte          `json:"generatorAddress" validate:"max=20"`
	TransactionRoot    []byte          `json:"transactionRoot" validate:"max=32"`
	AssetsRoot         []byte          `json:"assetsRoot" validate:"max=32"`
	EventRoot          []byte          `json:"eventRoot" validate:"max=32"`
	StateRoot          []byte          `json:"stateRoot" validate:"max=32"`
	MaxHeightPrevoted  uint32          `json:"maxHeightPrevoted"`
	MaxHeightGenerated uint32          `json:"maxHeightGenerated"`
	ValidatorsHash     []byte          `json:"validatorsHash" validate:"max=32"`
	AggregateCommit    AggregateCommit `json:"aggregateCommit"`
}

// Roots groups the header fields that commit to the block contents.
type Roots struct {
	TransactionRoot []byte
	AssetsRoot      []byte
	EventRoot       []byte
	StateRoot       []byte
	ValidatorsHash  []byte
}

// BlockHeader is an immutable block header. Changing any field produces a
// new unsigned header so a memoized id can never go stale.
type BlockHeader struct {
	fields    HeaderFields
	ext       Extension
	signature []byte
	id        atomic.Pointer[[]byte]
}

// NewBlockHeader constructs an unsigned header. The extension selects the
// header version.
func NewBlockHeader(fields HeaderFields, ext Extension) *BlockHeader {
	return &BlockHeader{
		fields: copyFields(fields),
		ext:    copyExtension(ext),
	}
}

// DecodeBlockHeader parses the canonical binary form of a header.
func DecodeBlockHeader(b []byte) (*BlockHeader, error) {
	rec, err := BlockHeaderSchema.Decode(b)
	if err != nil {
		return nil, err
	}

	return headerFromRecord(rec)
}

// BlockHeaderFromJSON parses the JSON projection of a header.
func BlockHeaderFromJSON(data []byte) (*BlockHeader, error) {
	rec, err := BlockHeaderSchema.FromJSON(data)
	if err != nil {
		return nil, err
	}

	return headerFromRecord(rec)
}

// Version returns the header version.
func (h *BlockHeader) Version() uint32 { return h.ext.Version() }

// Timestamp returns the unix time the block was generated at.
func (h *BlockHeader) Timestamp() uint32 { return h.fields.Timestamp }

// Height returns the height of the block.
func (h *BlockHeader) Height() uint32 { return h.fields.Height }

// PreviousBlockID returns the id of the parent block.
func (h *BlockHeader) PreviousBlockID() []byte { return clone(h.fields.PreviousBlockID) }

// GeneratorAddress returns the address of the validator that generated the
// block.
func (h *BlockHeader) GeneratorAddress() []byte { return clone(h.fields.GeneratorAddress) }

// TransactionRoot returns the merkle root over the transaction ids.
func (h *BlockHeader) TransactionRoot() []byte { return clone(h.fields.TransactionRoot) }

// AssetsRoot returns the merkle root over the encoded assets.
func (h *BlockHeader) AssetsRoot() []byte { return clone(h.fields.AssetsRoot) }

// EventRoot returns the event root.
func (h *BlockHeader) EventRoot() []byte { return clone(h.fields.EventRoot) }

// StateRoot returns the state root.
func (h *BlockHeader) StateRoot() []byte { return clone(h.fields.StateRoot) }

// MaxHeightPrevoted returns the highest prevoted height known to the
// generator.
func (h *BlockHeader) MaxHeightPrevoted() uint32 { return h.fields.MaxHeightPrevoted }

// MaxHeightGenerated returns the last height generated by the generator.
func (h *BlockHeader) MaxHeightGenerated() uint32 { return h.fields.MaxHeightGenerated }

// ValidatorsHash returns the hash of the next validator set.
func (h *BlockHeader) ValidatorsHash() []byte { return clone(h.fields.ValidatorsHash) }

// AggregateCommit returns a copy of the aggregate commit.
func (h *BlockHeader) AggregateCommit() AggregateCommit {
	return copyFields(h.fields).AggregateCommit
}

// Fields returns a copy of the fields the header was built from.
func (h *BlockHeader) Fields() HeaderFields {
	return copyFields(h.fields)
}

// Extension returns a copy of the version specific extension.
func (h *BlockHeader) Extension() Extension {
	return copyExtension(h.ext)
}

// Forger returns the forger extension when the header carries one.
func (h *BlockHeader) Forger() (ForgerExtension, bool) {
	ext, ok := h.ext.(ForgerExtension)
	if !ok {
		return ForgerExtension{}, false
	}
	return copyExtension(ext).(ForgerExtension), true
}

// Reward returns the reward claimed by the generator. Headers without a
// forger extension claim nothing.
func (h *BlockHeader) Reward() uint64 {
	ext, ok := h.ext.(ForgerExtension)
	if !ok {
		return 0
	}
	return ext.Reward
}

// SeedReveal returns the seed reveal of a forged block.
func (h *BlockHeader) SeedReveal() []byte {
	ext, ok := h.ext.(ForgerExtension)
	if !ok {
		return nil
	}
	return clone(ext.SeedReveal)
}

// GeneratorPublicKey returns the public key of the generator of a forged
// block.
func (h *BlockHeader) GeneratorPublicKey() []byte {
	ext, ok := h.ext.(ForgerExtension)
	if !ok {
		return nil
	}
	return clone(ext.GeneratorPublicKey)
}

// IsGenesis reports whether the header is a genesis header.
func (h *BlockHeader) IsGenesis() bool {
	_, ok := h.ext.(GenesisExtension)
	return ok
}

// Signature returns the header signature. A genesis header is complete
// without a signature and returns an empty one.
func (h *BlockHeader) Signature() ([]byte, error) {
	if len(h.signature) == 0 && !h.IsGenesis() {
		return nil, ErrNotSigned
	}
	return clone(h.signature), nil
}

// ID returns the hash of the full canonical encoding, signature included.
func (h *BlockHeader) ID() ([]byte, error) {
	if id := h.id.Load(); id != nil {
		return clone(*id), nil
	}

	if len(h.signature) == 0 && !h.IsGenesis() {
		return nil, ErrNoID
	}

	id := signature.Hash(h.Encode())
	h.id.Store(&id)

	return clone(id), nil
}

// IDHex returns the hex form of the id or an empty string when the id
// can't be derived yet. It is intended for logging.
func (h *BlockHeader) IDHex() string {
	id, err := h.ID()
	if err != nil {
		return ""
	}
	return hexutil.Encode(id)
}

// IDHash returns the id as a fixed size hash for use as a map key.
func (h *BlockHeader) IDHash() (common.Hash, error) {
	id, err := h.ID()
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(id), nil
}

// WithRoots returns an unsigned copy of the header with the roots replaced.
func (h *BlockHeader) WithRoots(roots Roots) *BlockHeader {
	fields := copyFields(h.fields)
	fields.TransactionRoot = clone(roots.TransactionRoot)
	fields.AssetsRoot = clone(roots.AssetsRoot)
	fields.EventRoot = clone(roots.EventRoot)
	fields.StateRoot = clone(roots.StateRoot)
	fields.ValidatorsHash = clone(roots.ValidatorsHash)

	return &BlockHeader{fields: fields, ext: copyExtension(h.ext)}
}

// WithExtension returns an unsigned copy of the header carrying the
// extension.
func (h *BlockHeader) WithExtension(ext Extension) *BlockHeader {
	return &BlockHeader{fields: copyFields(h.fields), ext: copyExtension(ext)}
}

// SigningBytes returns the encoding a signature commits to.
func (h *BlockHeader) SigningBytes() []byte {
	return blockHeaderSigningSchema.MustEncode(h.record())
}

// Sign returns a signed copy of the header.
func (h *BlockHeader) Sign(networkID []byte, privateKey ed25519.PrivateKey) *BlockHeader {
	sig := signature.Sign(signature.TagBlockHeader, networkID, h.SigningBytes(), privateKey)

	return &BlockHeader{
		fields:    copyFields(h.fields),
		ext:       copyExtension(h.ext),
		signature: sig,
	}
}

// VerifySignature checks the signature against the public key.
func (h *BlockHeader) VerifySignature(networkID []byte, publicKey []byte) bool {
	return signature.Verify(signature.TagBlockHeader, networkID, h.SigningBytes(), h.signature, publicKey)
}

// Validate checks the header conforms to its schema, references a parent
// and carries a full signature. The extension is validated separately.
func (h *BlockHeader) Validate() error {
	var fe validate.FieldErrors
	fe.Check("", h.fields)

	if len(h.fields.PreviousBlockID) == 0 {
		fe.Add("previousBlockID", "previous block id must not be empty")
	}

	if len(h.fields.GeneratorAddress) != signature.AddressLength {
		fe.Add("generatorAddress", fmt.Sprintf("generator address must be %d bytes", signature.AddressLength))
	}

	if len(h.signature) != signature.SignatureLength {
		fe.Add("signature", fmt.Sprintf("signature must be %d bytes", signature.SignatureLength))
	}

	return fe.Err()
}

// ValidateGenesis checks the header conforms to its schema and holds every
// genesis invariant. All violations are reported together.
func (h *BlockHeader) ValidateGenesis() error {
	var fe validate.FieldErrors
	fe.Check("", h.fields)

	if !h.IsGenesis() {
		fe.Add("version", fmt.Sprintf("genesis header must be version %d", GenesisVersion))
	}

	if !bytes.Equal(h.fields.PreviousBlockID, make([]byte, signature.HashLength)) {
		fe.Add("previousBlockID", fmt.Sprintf("previous block id must be %d zero bytes", signature.HashLength))
	}

	if !bytes.Equal(h.fields.TransactionRoot, signature.EmptyHash) {
		fe.Add("transactionRoot", "transaction root must be the empty hash")
	}

	if len(h.fields.GeneratorAddress) != 0 {
		fe.Add("generatorAddress", "generator address must be empty")
	}

	if h.fields.MaxHeightPrevoted != h.fields.Height {
		fe.Add("maxHeightPrevoted", "max height prevoted must equal the height")
	}

	if h.fields.MaxHeightGenerated != 0 {
		fe.Add("maxHeightGenerated", "max height generated must be zero")
	}

	if h.fields.AggregateCommit.Height != 0 {
		fe.Add("aggregateCommit.height", "aggregate commit height must be zero")
	}

	if len(h.fields.AggregateCommit.AggregationBits) != 0 {
		fe.Add("aggregateCommit.aggregationBits", "aggregation bits must be empty")
	}

	if len(h.fields.AggregateCommit.CertificateSignature) != 0 {
		fe.Add("aggregateCommit.certificateSignature", "certificate signature must be empty")
	}

	if len(h.signature) != 0 {
		fe.Add("signature", "signature must be empty")
	}

	return fe.Err()
}

// Encode returns the canonical binary form of the header.
func (h *BlockHeader) Encode() []byte {
	rec := h.record()
	rec["signature"] = h.signature

	return BlockHeaderSchema.MustEncode(rec)
}

// ToJSON returns the JSON projection of the header.
func (h *BlockHeader) ToJSON() ([]byte, error) {
	rec := h.record()
	rec["signature"] = h.signature

	return BlockHeaderSchema.ToJSON(rec)
}

// String implements the fmt.Stringer interface for logging.
func (h *BlockHeader) String() string {
	return fmt.Sprintf("%d:%s", h.fields.Height, h.IDHex())
}

// record returns every field except the signature.
func (h *BlockHeader) record() codec.Record {
	ac := h.fields.AggregateCommit

	return codec.Record{
		"version":            h.ext.Version(),
		"timestamp":          h.fields.Timestamp,
		"height":             h.fields.Height,
		"previousBlockID":    h.fields.PreviousBlockID,
		"generatorAddress":   h.fields.GeneratorAddress,
		"transactionRoot":    h.fields.TransactionRoot,
		"assetsRoot":         h.fields.AssetsRoot,
		"eventRoot":          h.fields.EventRoot,
		"stateRoot":          h.fields.StateRoot,
		"maxHeightPrevoted":  h.fields.MaxHeightPrevoted,
		"maxHeightGenerated": h.fields.MaxHeightGenerated,
		"validatorsHash":     h.fields.ValidatorsHash,
		"aggregateCommit": codec.Record{
			"height":               ac.Height,
			"aggregationBits":      ac.AggregationBits,
			"certificateSignature": ac.CertificateSignature,
		},
		"extension": h.ext.encode(),
	}
}

// =============================================================================

func headerFromRecord(rec codec.Record) (*BlockHeader, error) {
	version := rec["version"].(uint32)

	ext, err := decodeExtension(version, rec["extension"].([]byte))
	if err != nil {
		return nil, err
	}

	ac := rec["aggregateCommit"].(codec.Record)

	h := BlockHeader{
		fields: HeaderFields{
			Timestamp:          rec["timestamp"].(uint32),
			Height:             rec["height"].(uint32),
			PreviousBlockID:    rec["previousBlockID"].([]byte),
			GeneratorAddress:   rec["generatorAddress"].([]byte),
			TransactionRoot:    rec["transactionRoot"].([]byte),
			AssetsRoot:         rec["assetsRoot"].([]byte),
			EventRoot:          rec["eventRoot"].([]byte),
			StateRoot:          rec["stateRoot"].([]byte),
			MaxHeightPrevoted:  rec["maxHeightPrevoted"].(uint32),
			MaxHeightGenerated: rec["maxHeightGenerated"].(uint32),
			ValidatorsHash:     rec["validatorsHash"].([]byte),
			AggregateCommit: AggregateCommit{
				Height:               ac["height"].(uint32),
				AggregationBits:      ac["aggregationBits"].([]byte),
				CertificateSignature: ac["certificateSignature"].([]byte),
			},
		},
		ext:       ext,
		signature: rec["signature"].([]byte),
	}

	// The extension bytes must round trip exactly so the id and signing
	// bytes match what the generator produced.
	if !bytes.Equal(h.ext.encode(), rec["extension"].([]byte)) {
		return nil, &codec.DecodeError{Schema: BlockHeaderSchema.ID, Field: "extension", Err: errors.New("extension is not canonical")}
	}

	return &h, nil
}

func copyFields(f HeaderFields) HeaderFields {
	cpy := f
	cpy.PreviousBlockID = clone(f.PreviousBlockID)
	cpy.GeneratorAddress = clone(f.GeneratorAddress)
	cpy.TransactionRoot = clone(f.TransactionRoot)
	cpy.AssetsRoot = clone(f.AssetsRoot)
	cpy.EventRoot = clone(f.EventRoot)
	cpy.StateRoot = clone(f.StateRoot)
	cpy.ValidatorsHash = clone(f.ValidatorsHash)
	cpy.AggregateCommit.AggregationBits = clone(f.AggregateCommit.AggregationBits)
	cpy.AggregateCommit.CertificateSignature = clone(f.AggregateCommit.CertificateSignature)
	return cpy
}
