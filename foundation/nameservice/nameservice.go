// Package nameservice reads the zblock/keys folder and creates a name
// service lookup for the validator addresses.
package nameservice

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// NameService maintains a map of addresses for name lookup.
type NameService struct {
	addresses map[common.Address]string
}

// New constructs a name service with the keys found under root. The name
// of an address is the file name of its key without the extension.
func New(root string) (*NameService, error) {
	ns := NameService{
		addresses: make(map[common.Address]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if path.Ext(fileName) != ".key" {
			return nil
		}

		privateKey, err := signature.LoadKey(fileName)
		if err != nil {
			return fmt.Errorf("loading %s: %w", fileName, err)
		}

		address := signature.AddressFromPublicKey(signature.PublicKey(privateKey))
		ns.addresses[address] = strings.TrimSuffix(path.Base(fileName), ".key")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified address.
func (ns *NameService) Lookup(address common.Address) string {
	name, exists := ns.addresses[address]
	if !exists {
		return address.Hex()
	}
	return name
}

// Copy returns a copy of the map of names and addresses.
func (ns *NameService) Copy() map[common.Address]string {
	cpy := make(map[common.Address]string, len(ns.addresses))
	for address, name := range ns.addresses {
		cpy[address] = name
	}
	return cpy
}
