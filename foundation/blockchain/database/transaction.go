package database

import (
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

// ErrInvalidTxSignature is returned when the first signature of a
// transaction does not verify against the sender public key.
var ErrInvalidTxSignature = errors.New("invalid transaction signature")

// TxData is the information a transaction is built from.
type TxData struct {
	ModuleID        uint32   `json:"moduleID" validate:"gte=2"`
	CommandID       uint32   `json:"commandID"`
	SenderPublicKey []byte   `json:"senderPublicKey" validate:"len=32"`
	Nonce           uint64   `json:"nonce"`
	Fee             uint64   `json:"fee"`
	Params          []byte   `json:"params"`
	Signatures      [][]byte `json:"signatures" validate:"min=1"`
}

// Transaction is an immutable transaction. The id and the sender address
// are derived on first use and never change afterwards.
type Transaction struct {
	inner  TxData
	id     atomic.Pointer[[]byte]
	sender atomic.Pointer[common.Address]
}

// NewTransaction constructs a transaction from a copy of the data.
func NewTransaction(data TxData) *Transaction {
	return &Transaction{inner: copyTxData(data)}
}

// DecodeTransaction parses the canonical binary form of a transaction.
func DecodeTransaction(b []byte) (*Transaction, error) {
	rec, err := TransactionSchema.Decode(b)
	if err != nil {
		return nil, err
	}

	return txFromRecord(rec), nil
}

// TransactionFromJSON parses the JSON projection of a transaction.
func TransactionFromJSON(data []byte) (*Transaction, error) {
	rec, err := TransactionSchema.FromJSON(data)
	if err != nil {
		return nil, err
	}

	return txFromRecord(rec), nil
}

// ModuleID returns the module that handles the transaction.
func (tx *Transaction) ModuleID() uint32 { return tx.inner.ModuleID }

// CommandID returns the command within the module.
func (tx *Transaction) CommandID() uint32 { return tx.inner.CommandID }

// SenderPublicKey returns a copy of the sender public key.
func (tx *Transaction) SenderPublicKey() []byte { return clone(tx.inner.SenderPublicKey) }

// Nonce returns the sender nonce.
func (tx *Transaction) Nonce() uint64 { return tx.inner.Nonce }

// Fee returns the fee paid by the sender.
func (tx *Transaction) Fee() uint64 { return tx.inner.Fee }

// Params returns a copy of the command parameters.
func (tx *Transaction) Params() []byte { return clone(tx.inner.Params) }

// Signatures returns a copy of the signatures.
func (tx *Transaction) Signatures() [][]byte {
	sigs := make([][]byte, len(tx.inner.Signatures))
	for i, sig := range tx.inner.Signatures {
		sigs[i] = clone(sig)
	}
	return sigs
}

// Data returns a copy of the data the transaction was built from.
func (tx *Transaction) Data() TxData {
	return copyTxData(tx.inner)
}

// ID returns the hash of the canonical encoding.
func (tx *Transaction) ID() []byte {
	if id := tx.id.Load(); id != nil {
		return clone(*id)
	}

	id := signature.Hash(tx.Encode())
	tx.id.Store(&id)

	return clone(id)
}

// SenderAddress returns the address derived from the sender public key.
func (tx *Transaction) SenderAddress() common.Address {
	if addr := tx.sender.Load(); addr != nil {
		return *addr
	}

	addr := signature.AddressFromPublicKey(tx.inner.SenderPublicKey)
	tx.sender.Store(&addr)

	return addr
}

// SigningBytes returns the encoding a signature commits to.
func (tx *Transaction) SigningBytes() []byte {
	return transactionSigningSchema.MustEncode(tx.record())
}

// Sign returns a copy of the transaction with a signature by the private
// key appended to the signature list.
func (tx *Transaction) Sign(networkID []byte, privateKey ed25519.PrivateKey) *Transaction {
	sig := signature.Sign(signature.TagTransaction, networkID, tx.SigningBytes(), privateKey)

	data := copyTxData(tx.inner)
	data.Signatures = append(data.Signatures, sig)

	return &Transaction{inner: data}
}

// Validate checks the transaction conforms to its schema. Every violated
// field is reported.
func (tx *Transaction) Validate() error {
	var fe validate.FieldErrors
	fe.Check("", tx.inner)

	for i, sig := range tx.inner.Signatures {
		if len(sig) != 0 && len(sig) != signature.SignatureLength {
			fe.Add(fmt.Sprintf("signatures[%d]", i), fmt.Sprintf("signature must be empty or %d bytes", signature.SignatureLength))
		}
	}

	return fe.Err()
}

// VerifySignature checks the first signature was produced by the sender
// key over the signing bytes for the network.
func (tx *Transaction) VerifySignature(networkID []byte) error {
	if len(tx.inner.Signatures) == 0 {
		return ErrInvalidTxSignature
	}

	if !signature.Verify(signature.TagTransaction, networkID, tx.SigningBytes(), tx.inner.Signatures[0], tx.inner.SenderPublicKey) {
		return ErrInvalidTxSignature
	}

	return nil
}

// Encode returns the canonical binary form of the transaction.
func (tx *Transaction) Encode() []byte {
	return TransactionSchema.MustEncode(tx.record())
}

// ToJSON returns the JSON projection of the transaction.
func (tx *Transaction) ToJSON() ([]byte, error) {
	return TransactionSchema.ToJSON(tx.record())
}

// Size returns the length of the canonical encoding.
func (tx *Transaction) Size() int {
	return len(tx.Encode())
}

// Hash implements the merkle Hashable interface.
func (tx *Transaction) Hash() ([]byte, error) {
	return tx.ID(), nil
}

// Equals implements the merkle Hashable interface.
func (tx *Transaction) Equals(other *Transaction) bool {
	return string(tx.ID()) == string(other.ID())
}

// String implements the fmt.Stringer interface for logging.
func (tx *Transaction) String() string {
	return fmt.Sprintf("%s:%d", hexutil.Encode(tx.ID()), tx.inner.Nonce)
}

func (tx *Transaction) record() codec.Record {
	return codec.Record{
		"moduleID":        tx.inner.ModuleID,
		"commandID":       tx.inner.CommandID,
		"senderPublicKey": tx.inner.SenderPublicKey,
		"nonce":           tx.inner.Nonce,
		"fee":             tx.inner.Fee,
		"params":          tx.inner.Params,
		"signatures":      anyList(tx.inner.Signatures),
	}
}

// =============================================================================

func txFromRecord(rec codec.Record) *Transaction {
	return &Transaction{
		inner: TxData{
			ModuleID:        rec["moduleID"].(uint32),
			CommandID:       rec["commandID"].(uint32),
			SenderPublicKey: rec["senderPublicKey"].([]byte),
			Nonce:           rec["nonce"].(uint64),
			Fee:             rec["fee"].(uint64),
			Params:          rec["params"].([]byte),
			Signatures:      bytesList(rec["signatures"]),
		},
	}
}

func copyTxData(data TxData) TxData {
	cpy := data
	cpy.SenderPublicKey = clone(data.SenderPublicKey)
	cpy.Params = clone(data.Params)
	cpy.Signatures = make([][]byte, len(data.Signatures))
	for i, sig := range data.Signatures {
		cpy.Signatures[i] = clone(sig)
	}
	return cpy
}
