package database

import "github.com/ardanlabs/dpos/foundation/blockchain/codec"

// Field numbers are part of the protocol. Changing a number or a type is a
// breaking change for every node on the network.

// TransactionSchema is the canonical layout of a transaction.
var TransactionSchema = codec.MustNew("transaction",
	codec.Field{Name: "moduleID", Number: 1, Type: codec.TypeUint32},
	codec.Field{Name: "commandID", Number: 2, Type: codec.TypeUint32},
	codec.Field{Name: "senderPublicKey", Number: 3, Type: codec.TypeBytes},
	codec.Field{Name: "nonce", Number: 4, Type: codec.TypeUint64},
	codec.Field{Name: "fee", Number: 5, Type: codec.TypeUint64},
	codec.Field{Name: "params", Number: 6, Type: codec.TypeBytes},
	codec.Field{Name: "signatures", Number: 7, Type: codec.TypeArray, Items: codec.TypeBytes},
)

// transactionSigningSchema covers everything a transaction signature
// commits to.
var transactionSigningSchema = mustWithout(TransactionSchema, "transaction.signing", "signatures")

// AggregateCommitSchema is the canonical layout of the aggregate commit
// carried in every header.
var AggregateCommitSchema = codec.MustNew("aggregateCommit",
	codec.Field{Name: "height", Number: 1, Type: codec.TypeUint32},
	codec.Field{Name: "aggregationBits", Number: 2, Type: codec.TypeBytes},
	codec.Field{Name: "certificateSignature", Number: 3, Type: codec.TypeBytes},
)

// BlockHeaderSchema is the canonical layout of a block header.
var BlockHeaderSchema = codec.MustNew("blockHeader",
	codec.Field{Name: "version", Number: 1, Type: codec.TypeUint32},
	codec.Field{Name: "timestamp", Number: 2, Type: codec.TypeUint32},
	codec.Field{Name: "height", Number: 3, Type: codec.TypeUint32},
	codec.Field{Name: "previousBlockID", Number: 4, Type: codec.TypeBytes},
	codec.Field{Name: "generatorAddress", Number: 5, Type: codec.TypeBytes},
	codec.Field{Name: "transactionRoot", Number: 6, Type: codec.TypeBytes},
	codec.Field{Name: "assetsRoot", Number: 7, Type: codec.TypeBytes},
	codec.Field{Name: "eventRoot", Number: 8, Type: codec.TypeBytes},
	codec.Field{Name: "stateRoot", Number: 9, Type: codec.TypeBytes},
	codec.Field{Name: "maxHeightPrevoted", Number: 10, Type: codec.TypeUint32},
	codec.Field{Name: "maxHeightGenerated", Number: 11, Type: codec.TypeUint32},
	codec.Field{Name: "validatorsHash", Number: 12, Type: codec.TypeBytes},
	codec.Field{Name: "aggregateCommit", Number: 13, Type: codec.TypeObject, Schema: AggregateCommitSchema},
	codec.Field{Name: "extension", Number: 14, Type: codec.TypeBytes},
	codec.Field{Name: "signature", Number: 15, Type: codec.TypeBytes},
)

// blockHeaderSigningSchema covers everything a header signature commits to.
var blockHeaderSigningSchema = mustWithout(BlockHeaderSchema, "blockHeader.signing", "signature")

// GenesisExtensionSchema is the header extension for version 0 headers.
var GenesisExtensionSchema = codec.MustNew("blockHeader.extension.genesis",
	codec.Field{Name: "initRounds", Number: 1, Type: codec.TypeUint32},
)

// ForgerExtensionSchema is the header extension for version 2 headers.
var ForgerExtensionSchema = codec.MustNew("blockHeader.extension.forger",
	codec.Field{Name: "generatorPublicKey", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "reward", Number: 2, Type: codec.TypeUint64},
	codec.Field{Name: "seedReveal", Number: 3, Type: codec.TypeBytes},
)

// AssetSchema is the canonical layout of a single block asset.
var AssetSchema = codec.MustNew("blockAsset",
	codec.Field{Name: "moduleID", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "data", Number: 2, Type: codec.TypeBytes},
)

// BlockSchema is the canonical layout of a full block. Every part is
// carried in its own canonical encoding.
var BlockSchema = codec.MustNew("block",
	codec.Field{Name: "header", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "transactions", Number: 2, Type: codec.TypeArray, Items: codec.TypeBytes},
	codec.Field{Name: "assets", Number: 3, Type: codec.TypeArray, Items: codec.TypeBytes},
)

// AccountSchema is the canonical layout of an account in the state store.
var AccountSchema = codec.MustNew("account",
	codec.Field{Name: "address", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "balance", Number: 2, Type: codec.TypeUint64},
	codec.Field{Name: "nonce", Number: 3, Type: codec.TypeUint64},
)

var validatorSchema = codec.MustNew("validator",
	codec.Field{Name: "address", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "minActiveHeight", Number: 2, Type: codec.TypeUint32},
	codec.Field{Name: "isConsensusParticipant", Number: 3, Type: codec.TypeBool},
)

// ValidatorsSchema is the canonical layout of the active validator set.
var ValidatorsSchema = codec.MustNew("validators",
	codec.Field{Name: "validators", Number: 1, Type: codec.TypeArray, Items: codec.TypeObject, Schema: validatorSchema},
)

// GenesisAssetSchema is the layout of the bootstrap asset in the genesis
// block.
var GenesisAssetSchema = codec.MustNew("genesisAsset",
	codec.Field{Name: "accounts", Number: 1, Type: codec.TypeArray, Items: codec.TypeObject, Schema: AccountSchema},
	codec.Field{Name: "initValidators", Number: 2, Type: codec.TypeArray, Items: codec.TypeBytes},
)

var kvSchema = codec.MustNew("stateDiff.kv",
	codec.Field{Name: "key", Number: 1, Type: codec.TypeBytes},
	codec.Field{Name: "value", Number: 2, Type: codec.TypeBytes},
)

// StateDiffSchema is the layout of the reversible state changes recorded
// for every block.
var StateDiffSchema = codec.MustNew("stateDiff",
	codec.Field{Name: "updated", Number: 1, Type: codec.TypeArray, Items: codec.TypeObject, Schema: kvSchema},
	codec.Field{Name: "created", Number: 2, Type: codec.TypeArray, Items: codec.TypeBytes},
	codec.Field{Name: "deleted", Number: 3, Type: codec.TypeArray, Items: codec.TypeObject, Schema: kvSchema},
)

func init() {
	codec.MustRegister(
		TransactionSchema,
		AggregateCommitSchema,
		BlockHeaderSchema,
		GenesisExtensionSchema,
		ForgerExtensionSchema,
		AssetSchema,
		BlockSchema,
		AccountSchema,
		ValidatorsSchema,
		GenesisAssetSchema,
		StateDiffSchema,
	)
}

func mustWithout(s *codec.Schema, id string, names ...string) *codec.Schema {
	sub, err := s.Without(id, names...)
	if err != nil {
		panic(err)
	}
	return sub
}

// =============================================================================

// bytesList converts a record array of bytes into a slice.
func bytesList(v any) [][]byte {
	items := v.([]any)
	list := make([][]byte, len(items))
	for i, item := range items {
		list[i] = item.([]byte)
	}
	return list
}

// anyList converts a slice of bytes into a record array.
func anyList(list [][]byte) []any {
	items := make([]any, len(list))
	for i, b := range list {
		items[i] = b
	}
	return items
}

// clone returns a copy of b that never aliases the caller's memory.
func clone(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
