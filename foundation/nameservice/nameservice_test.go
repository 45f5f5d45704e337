package nameservice_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/nameservice"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Lookup(t *testing.T) {
	t.Log("Given the need to name the validators from a folder of keys.")
	{
		dir := t.TempDir()

		key, err := signature.GenerateKey()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key: %v", failed, err)
		}

		if err := signature.SaveKey(filepath.Join(dir, "kennedy.key"), key); err != nil {
			t.Fatalf("\t%s\tShould be able to save the key: %v", failed, err)
		}
		if err := os.WriteFile(filepath.Join(dir, "README"), []byte("not a key"), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write a non key file: %v", failed, err)
		}

		ns, err := nameservice.New(dir)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the name service: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct the name service.", success)

		address := signature.AddressFromPublicKey(signature.PublicKey(key))
		if name := ns.Lookup(address); name != "kennedy" {
			t.Fatalf("\t%s\tShould name the address after its key file: got %q", failed, name)
		}
		t.Logf("\t%s\tShould name the address after its key file.", success)

		unknown := common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
		if name := ns.Lookup(unknown); name != unknown.Hex() {
			t.Fatalf("\t%s\tShould fall back to the hex address: got %q", failed, name)
		}
		t.Logf("\t%s\tShould fall back to the hex address.", success)

		cpy := ns.Copy()
		delete(cpy, address)
		if len(ns.Copy()) != 1 {
			t.Fatalf("\t%s\tShould hand out an independent copy.", failed)
		}
		t.Logf("\t%s\tShould hand out an independent copy.", success)
	}

	t.Log("Given a key file holding garbage.")
	{
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "broken.key"), []byte("zz"), 0600); err != nil {
			t.Fatalf("\t%s\tShould be able to write the file: %v", failed, err)
		}

		if _, err := nameservice.New(dir); err == nil {
			t.Fatalf("\t%s\tShould fail to construct the name service.", failed)
		}
		t.Logf("\t%s\tShould fail to construct the name service.", success)
	}
}
