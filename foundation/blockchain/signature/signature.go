// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Set of sizes used by the chain.
const (
	HashLength       = sha256.Size
	SignatureLength  = ed25519.SignatureSize
	PublicKeyLength  = ed25519.PublicKeySize
	AddressLength    = common.AddressLength
	SeedRevealLength = 16
)

// Tags are prefixed into every signed message. A header signature can never
// be replayed as a transaction signature because the tags differ.
const (
	TagBlockHeader = "LSK_BH_"
	TagTransaction = "LSK_TX_"
)

// EmptyHash is the hash of no data. It is the merkle root of an empty list.
var EmptyHash = Hash()

// ErrInvalidKey is returned when key material has the wrong shape.
var ErrInvalidKey = errors.New("invalid key")

// =============================================================================

// Hash returns the sha256 digest of the concatenated data.
func Hash(data ...[]byte) []byte {
	h := sha256.New()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Sign uses the specified private key to sign the message for the network.
func Sign(tag string, networkID []byte, message []byte, privateKey ed25519.PrivateKey) []byte {
	return ed25519.Sign(privateKey, stamp(tag, networkID, message))
}

// Verify checks the signature for the message was produced by the private
// key of the specified public key. Malformed keys or signatures simply fail
// verification.
func Verify(tag string, networkID []byte, message []byte, sig []byte, publicKey []byte) bool {
	if len(publicKey) != PublicKeyLength || len(sig) != SignatureLength {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), stamp(tag, networkID, message), sig)
}

// AddressFromPublicKey derives the account address for a public key. The
// address is the first 20 bytes of the hash of the key.
func AddressFromPublicKey(publicKey []byte) common.Address {
	return common.BytesToAddress(Hash(publicKey)[:AddressLength])
}

// =============================================================================

// GenerateKey produces a new private key.
func GenerateKey() (ed25519.PrivateKey, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	return privateKey, nil
}

// KeyFromHex constructs the private key from its hex encoded seed.
func KeyFromHex(seedHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(seedHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, err)
	}

	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: seed length %d", ErrInvalidKey, len(seed))
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// LoadKey reads a hex encoded seed from the file.
func LoadKey(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return KeyFromHex(string(data))
}

// SaveKey writes the hex encoded seed of the private key to the file.
func SaveKey(path string, privateKey ed25519.PrivateKey) error {
	if len(privateKey) != ed25519.PrivateKeySize {
		return ErrInvalidKey
	}

	return os.WriteFile(path, []byte(hex.EncodeToString(privateKey.Seed())), 0600)
}

// PublicKey returns the public key bytes for the private key.
func PublicKey(privateKey ed25519.PrivateKey) []byte {
	return []byte(privateKey.Public().(ed25519.PublicKey))
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents the message with the
// tag and network id embedded into the final hash.
func stamp(tag string, networkID []byte, message []byte) []byte {
	return Hash([]byte(tag), networkID, message)
}
