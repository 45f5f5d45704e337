package database

import (
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/validate"
)

// Set of supported header versions. The version selects the extension a
// header carries.
const (
	GenesisVersion uint32 = 0
	ForgerVersion  uint32 = 2
)

// Extension is the version specific part of a header. The set of
// extensions is closed; only types in this package implement it.
type Extension interface {
	Version() uint32
	Validate() error
	encode() []byte
}

// GenesisExtension is carried by the genesis block.
type GenesisExtension struct {
	InitRounds uint32 `json:"initRounds"`
}

// Version implements the Extension interface.
func (GenesisExtension) Version() uint32 { return GenesisVersion }

// Validate implements the Extension interface.
func (ext GenesisExtension) Validate() error {
	return validate.Check(ext)
}

func (ext GenesisExtension) encode() []byte {
	return GenesisExtensionSchema.MustEncode(codec.Record{
		"initRounds": ext.InitRounds,
	})
}

// ForgerExtension is carried by every block a validator generates.
type ForgerExtension struct {
	GeneratorPublicKey []byte `json:"generatorPublicKey" validate:"len=32"`
	Reward             uint64 `json:"reward"`
	SeedReveal         []byte `json:"seedReveal" validate:"len=16"`
}

// Version implements the Extension interface.
func (ForgerExtension) Version() uint32 { return ForgerVersion }

// Validate implements the Extension interface.
func (ext ForgerExtension) Validate() error {
	return validate.Check(ext)
}

func (ext ForgerExtension) encode() []byte {
	return ForgerExtensionSchema.MustEncode(codec.Record{
		"generatorPublicKey": ext.GeneratorPublicKey,
		"reward":             ext.Reward,
		"seedReveal":         ext.SeedReveal,
	})
}

// =============================================================================

// decodeExtension selects the extension layout by header version.
func decodeExtension(version uint32, b []byte) (Extension, error) {
	switch version {
	case GenesisVersion:
		rec, err := GenesisExtensionSchema.Decode(b)
		if err != nil {
			return nil, err
		}
		return GenesisExtension{InitRounds: rec["initRounds"].(uint32)}, nil

	case ForgerVersion:
		rec, err := ForgerExtensionSchema.Decode(b)
		if err != nil {
			return nil, err
		}
		return ForgerExtension{
			GeneratorPublicKey: rec["generatorPublicKey"].([]byte),
			Reward:             rec["reward"].(uint64),
			SeedReveal:         rec["seedReveal"].([]byte),
		}, nil
	}

	return nil, &codec.DecodeError{Schema: BlockHeaderSchema.ID, Field: "version", Err: fmt.Errorf("unsupported header version %d", version)}
}

// copyExtension returns a copy that doesn't alias the caller's slices.
func copyExtension(ext Extension) Extension {
	switch e := ext.(type) {
	case GenesisExtension:
		return e
	case ForgerExtension:
		return ForgerExtension{
			GeneratorPublicKey: clone(e.GeneratorPublicKey),
			Reward:             e.Reward,
			SeedReveal:         clone(e.SeedReveal),
		}
	case *GenesisExtension:
		return *e
	case *ForgerExtension:
		return copyExtension(*e)
	}

	panic(fmt.Sprintf("unsupported header extension %T", ext))
}
