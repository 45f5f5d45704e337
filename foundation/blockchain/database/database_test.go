package database_test

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"reflect"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/signature"
	"github.com/ardanlabs/dpos/foundation/validate"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var networkID = []byte{0x00, 0x00, 0x00, 0x01}

func key(t *testing.T, seed byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
}

func signedTx(t *testing.T, nonce uint64) *database.Transaction {
	pk := key(t, 9)

	tx := database.NewTransaction(database.TxData{
		ModuleID:        2,
		CommandID:       0,
		SenderPublicKey: signature.PublicKey(pk),
		Nonce:           nonce,
		Fee:             100000,
		Params:          []byte{0x01, 0x02},
	})

	return tx.Sign(networkID, pk)
}

func forgedBlock(t *testing.T, txs []*database.Transaction, assets *database.BlockAssets) database.Block {
	pk := key(t, 1)

	block := database.NewBlock(nil, txs, assets)

	header := database.NewBlockHeader(database.HeaderFields{
		Timestamp:        1000,
		Height:           10,
		PreviousBlockID:  signature.Hash([]byte("parent")),
		GeneratorAddress: signature.AddressFromPublicKey(signature.PublicKey(pk)).Bytes(),
	}, database.ForgerExtension{
		GeneratorPublicKey: signature.PublicKey(pk),
		Reward:             500,
		SeedReveal:         make([]byte, signature.SeedRevealLength),
	})

	header = header.WithRoots(database.Roots{
		TransactionRoot: block.TransactionRoot(),
		AssetsRoot:      block.Assets.Root(),
	})

	block.Header = header.Sign(networkID, pk)
	return block
}

func genesisHeader() *database.BlockHeader {
	return database.NewBlockHeader(database.HeaderFields{
		Timestamp:         0,
		Height:            0,
		PreviousBlockID:   make([]byte, signature.HashLength),
		TransactionRoot:   signature.EmptyHash,
		AssetsRoot:        signature.EmptyHash,
		MaxHeightPrevoted: 0,
	}, database.GenesisExtension{InitRounds: 3})
}

// =============================================================================

func Test_Transaction(t *testing.T) {
	t.Log("Given the need to work with transactions.")
	{
		tx := signedTx(t, 1)

		if err := tx.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate a signed transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould validate a signed transaction.", success)

		if err := tx.VerifySignature(networkID); err != nil {
			t.Fatalf("\t%s\tShould verify the signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould verify the signature.", success)

		if err := tx.VerifySignature([]byte{0x09}); !errors.Is(err, database.ErrInvalidTxSignature) {
			t.Fatalf("\t%s\tShould not verify the signature for another network: %v", failed, err)
		}
		t.Logf("\t%s\tShould not verify the signature for another network.", success)

		decoded, err := database.DecodeTransaction(tx.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the transaction: %v", failed, err)
		}
		if !reflect.DeepEqual(decoded.Data(), tx.Data()) || !bytes.Equal(decoded.ID(), tx.ID()) {
			t.Fatalf("\t%s\tShould decode the same transaction.", failed)
		}
		t.Logf("\t%s\tShould decode the same transaction.", success)

		data, err := tx.ToJSON()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal the transaction: %v", failed, err)
		}
		fromJSON, err := database.TransactionFromJSON(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal the transaction: %v", failed, err)
		}
		if !bytes.Equal(fromJSON.Encode(), tx.Encode()) {
			t.Fatalf("\t%s\tShould produce the same bytes from JSON.", failed)
		}
		t.Logf("\t%s\tShould produce the same bytes from JSON.", success)

		if tx.SenderAddress() != signature.AddressFromPublicKey(tx.SenderPublicKey()) {
			t.Fatalf("\t%s\tShould derive the sender address.", failed)
		}
		t.Logf("\t%s\tShould derive the sender address.", success)

		resigned := tx.Sign(networkID, key(t, 9))
		if len(resigned.Signatures()) != 2 || len(tx.Signatures()) != 1 {
			t.Fatalf("\t%s\tShould append signatures to a copy.", failed)
		}
		if bytes.Equal(resigned.ID(), tx.ID()) {
			t.Fatalf("\t%s\tShould change the id when a signature is appended.", failed)
		}
		t.Logf("\t%s\tShould append signatures to a copy.", success)
	}
}

func Test_TransactionValidate(t *testing.T) {
	t.Log("Given the need to report every invalid transaction field.")
	{
		tx := database.NewTransaction(database.TxData{
			ModuleID:        1,
			SenderPublicKey: []byte{0x01},
			Signatures:      [][]byte{{0x01, 0x02}},
		})

		err := tx.Validate()
		fe := validate.GetFieldErrors(err)
		if fe == nil {
			t.Fatalf("\t%s\tShould return field errors: %v", failed, err)
		}
		t.Logf("\t%s\tShould return field errors.", success)

		for _, field := range []string{"moduleID", "senderPublicKey", "signatures[0]"} {
			if !fe.Has(field) {
				t.Fatalf("\t%s\tShould report the %s field: %v", failed, field, fe)
			}
			t.Logf("\t%s\tShould report the %s field.", success, field)
		}

		unsigned := database.NewTransaction(database.TxData{
			ModuleID:        2,
			SenderPublicKey: make([]byte, 32),
		})
		if fe := validate.GetFieldErrors(unsigned.Validate()); !fe.Has("signatures") {
			t.Fatalf("\t%s\tShould require at least one signature: %v", failed, fe)
		}
		t.Logf("\t%s\tShould require at least one signature.", success)

		empty := database.NewTransaction(database.TxData{
			ModuleID:        2,
			SenderPublicKey: make([]byte, 32),
			Signatures:      [][]byte{{}},
		})
		if err := empty.Validate(); err != nil {
			t.Fatalf("\t%s\tShould accept an empty signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept an empty signature.", success)
	}
}

func Test_BlockAssets(t *testing.T) {
	t.Log("Given the need to manage block assets.")
	{
		assets, err := database.NewBlockAssets().SetAsset([]byte{0, 0, 0, 3}, []byte("three"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to set an asset: %v", failed, err)
		}
		assets, err = assets.SetAsset([]byte{0, 0, 0, 1}, []byte("one"))
		if err != nil {
			t.Fatalf("\t%s\tShould be able to set an asset: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to set assets.", success)

		if _, err := assets.SetAsset([]byte{0, 0, 0, 1}, []byte("again")); err == nil {
			t.Fatalf("\t%s\tShould not set a second asset for a module.", failed)
		}
		t.Logf("\t%s\tShould not set a second asset for a module.", success)

		fe := validate.GetFieldErrors(assets.Validate())
		if !fe.Has("assets[1].moduleID") {
			t.Fatalf("\t%s\tShould reject unsorted assets: %v", failed, fe)
		}
		t.Logf("\t%s\tShould reject unsorted assets.", success)

		sorted := assets.Sort()
		if err := sorted.Validate(); err != nil {
			t.Fatalf("\t%s\tShould accept sorted assets: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept sorted assets.", success)

		if bytes.Equal(sorted.Root(), assets.Root()) {
			t.Fatalf("\t%s\tShould commit to the asset order.", failed)
		}
		t.Logf("\t%s\tShould commit to the asset order.", success)

		dup := database.NewBlockAssets(
			database.Asset{ModuleID: []byte{0, 0, 0, 1}, Data: []byte("a")},
			database.Asset{ModuleID: []byte{0, 0, 0, 1}, Data: []byte("b")},
		)
		if err := dup.Sort().Validate(); err == nil {
			t.Fatalf("\t%s\tShould reject duplicate module ids after sorting.", failed)
		}
		t.Logf("\t%s\tShould reject duplicate module ids after sorting.", success)

		big := database.NewBlockAssets(database.Asset{ModuleID: []byte{0, 0, 0, 1}, Data: make([]byte, database.MaxAssetDataLength+1)})
		if fe := validate.GetFieldErrors(big.Validate()); !fe.Has("assets[0].data") {
			t.Fatalf("\t%s\tShould reject oversized assets: %v", failed, fe)
		}
		t.Logf("\t%s\tShould reject oversized assets.", success)

		if err := big.ValidateGenesis(); err != nil {
			t.Fatalf("\t%s\tShould accept oversized assets in genesis: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept oversized assets in genesis.", success)

		bad := database.NewBlockAssets(database.Asset{ModuleID: []byte{1}, Data: nil})
		if fe := validate.GetFieldErrors(bad.ValidateGenesis()); !fe.Has("assets[0].moduleID") {
			t.Fatalf("\t%s\tShould check the asset schema in genesis: %v", failed, fe)
		}
		t.Logf("\t%s\tShould check the asset schema in genesis.", success)
	}
}

func Test_BlockHeader(t *testing.T) {
	t.Log("Given the need to sign and identify block headers.")
	{
		pk := key(t, 1)
		header := database.NewBlockHeader(database.HeaderFields{
			Timestamp:        1000,
			Height:           10,
			PreviousBlockID:  signature.Hash([]byte("parent")),
			GeneratorAddress: make([]byte, signature.AddressLength),
		}, database.ForgerExtension{
			GeneratorPublicKey: signature.PublicKey(pk),
			SeedReveal:         make([]byte, signature.SeedRevealLength),
		})

		if _, err := header.Signature(); !errors.Is(err, database.ErrNotSigned) {
			t.Fatalf("\t%s\tShould not return a signature before signing: %v", failed, err)
		}
		if _, err := header.ID(); !errors.Is(err, database.ErrNoID) {
			t.Fatalf("\t%s\tShould not return an id before signing: %v", failed, err)
		}
		t.Logf("\t%s\tShould not return a signature or id before signing.", success)

		signed := header.Sign(networkID, pk)
		id, err := signed.ID()
		if err != nil {
			t.Fatalf("\t%s\tShould return an id after signing: %v", failed, err)
		}
		t.Logf("\t%s\tShould return an id after signing.", success)

		if !signed.VerifySignature(networkID, signature.PublicKey(pk)) {
			t.Fatalf("\t%s\tShould verify the header signature.", failed)
		}
		t.Logf("\t%s\tShould verify the header signature.", success)

		rooted := signed.WithRoots(database.Roots{TransactionRoot: signature.EmptyHash})
		if _, err := rooted.ID(); !errors.Is(err, database.ErrNoID) {
			t.Fatalf("\t%s\tShould drop the signature when roots change: %v", failed, err)
		}
		if got, _ := signed.ID(); !bytes.Equal(got, id) {
			t.Fatalf("\t%s\tShould leave the original header untouched.", failed)
		}
		t.Logf("\t%s\tShould drop the signature when roots change.", success)

		decoded, err := database.DecodeBlockHeader(signed.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the header: %v", failed, err)
		}
		if got, _ := decoded.ID(); !bytes.Equal(got, id) {
			t.Fatalf("\t%s\tShould decode a header with the same id.", failed)
		}
		if !reflect.DeepEqual(decoded.Fields(), signed.Fields()) || !reflect.DeepEqual(decoded.Extension(), signed.Extension()) {
			t.Fatalf("\t%s\tShould decode the same fields.", failed)
		}
		t.Logf("\t%s\tShould decode the same header.", success)

		data, err := signed.ToJSON()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal the header: %v", failed, err)
		}
		fromJSON, err := database.BlockHeaderFromJSON(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal the header: %v", failed, err)
		}
		if !bytes.Equal(fromJSON.Encode(), signed.Encode()) {
			t.Fatalf("\t%s\tShould produce the same bytes from JSON.", failed)
		}
		t.Logf("\t%s\tShould produce the same bytes from JSON.", success)

		rec, err := database.BlockHeaderSchema.Decode(signed.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould decode the raw header: %v", failed, err)
		}
		rec["version"] = uint32(7)
		if _, err := database.DecodeBlockHeader(database.BlockHeaderSchema.MustEncode(rec)); !codec.IsDecodeError(err) {
			t.Fatalf("\t%s\tShould reject an unknown header version: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an unknown header version.", success)
	}
}

func Test_BlockHeaderValidate(t *testing.T) {
	t.Log("Given the need to validate block headers.")
	{
		block := forgedBlock(t, nil, nil)
		if err := block.Header.Validate(); err != nil {
			t.Fatalf("\t%s\tShould accept a signed header: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a signed header.", success)

		fields := block.Header.Fields()
		fields.PreviousBlockID = nil
		fields.GeneratorAddress = []byte{0x01}
		header := database.NewBlockHeader(fields, block.Header.Extension())

		fe := validate.GetFieldErrors(header.Validate())
		for _, field := range []string{"previousBlockID", "generatorAddress", "signature"} {
			if !fe.Has(field) {
				t.Fatalf("\t%s\tShould report the %s field: %v", failed, field, fe)
			}
			t.Logf("\t%s\tShould report the %s field.", success, field)
		}
	}
}

func Test_BlockHeaderValidateGenesis(t *testing.T) {
	type table struct {
		field  string
		mutate func(f *database.HeaderFields)
	}

	tt := []table{
		{field: "previousBlockID", mutate: func(f *database.HeaderFields) { f.PreviousBlockID = []byte{0x01} }},
		{field: "transactionRoot", mutate: func(f *database.HeaderFields) { f.TransactionRoot = make([]byte, 32) }},
		{field: "generatorAddress", mutate: func(f *database.HeaderFields) { f.GeneratorAddress = make([]byte, 20) }},
		{field: "maxHeightPrevoted", mutate: func(f *database.HeaderFields) { f.MaxHeightPrevoted = 1 }},
		{field: "maxHeightGenerated", mutate: func(f *database.HeaderFields) { f.MaxHeightGenerated = 1 }},
		{field: "aggregateCommit.height", mutate: func(f *database.HeaderFields) { f.AggregateCommit.Height = 1 }},
		{field: "aggregateCommit.aggregationBits", mutate: func(f *database.HeaderFields) { f.AggregateCommit.AggregationBits = []byte{1} }},
		{field: "aggregateCommit.certificateSignature", mutate: func(f *database.HeaderFields) { f.AggregateCommit.CertificateSignature = []byte{1} }},
	}

	t.Log("Given the need to enforce the genesis header invariants.")
	{
		if err := genesisHeader().ValidateGenesis(); err != nil {
			t.Fatalf("\t%s\tShould accept a valid genesis header: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a valid genesis header.", success)

		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen violating the %s invariant.", testID, tst.field)
				{
					fields := genesisHeader().Fields()
					tst.mutate(&fields)
					header := database.NewBlockHeader(fields, database.GenesisExtension{InitRounds: 3})

					fe := validate.GetFieldErrors(header.ValidateGenesis())
					if len(fe) != 1 || !fe.Has(tst.field) {
						t.Fatalf("\t%s\tTest %d:\tShould report only the %s field: %v", failed, testID, tst.field, fe)
					}
					t.Logf("\t%s\tTest %d:\tShould report only the %s field.", success, testID, tst.field)
				}
			}

			t.Run(tst.field, f)
		}

		signed := genesisHeader().Sign(networkID, key(t, 1))
		if fe := validate.GetFieldErrors(signed.ValidateGenesis()); !fe.Has("signature") {
			t.Fatalf("\t%s\tShould reject a signed genesis header: %v", failed, fe)
		}
		t.Logf("\t%s\tShould reject a signed genesis header.", success)

		fields := genesisHeader().Fields()
		fields.MaxHeightGenerated = 4
		fields.AggregateCommit.Height = 4
		all := validate.GetFieldErrors(database.NewBlockHeader(fields, database.GenesisExtension{}).ValidateGenesis())
		if len(all) != 2 {
			t.Fatalf("\t%s\tShould collect every violation: %v", failed, all)
		}
		t.Logf("\t%s\tShould collect every violation.", success)

		if _, err := genesisHeader().ID(); err != nil {
			t.Fatalf("\t%s\tShould derive a genesis id without a signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould derive a genesis id without a signature.", success)
	}
}

func Test_Block(t *testing.T) {
	t.Log("Given the need to validate and encode blocks.")
	{
		txs := []*database.Transaction{signedTx(t, 1), signedTx(t, 2)}
		assets := database.NewBlockAssets(database.Asset{ModuleID: []byte{0, 0, 0, 5}, Data: []byte("seed")})

		block := forgedBlock(t, txs, assets)
		if err := block.Validate(); err != nil {
			t.Fatalf("\t%s\tShould accept a valid block: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept a valid block.", success)

		decoded, err := database.DecodeBlock(block.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the block: %v", failed, err)
		}
		if !bytes.Equal(decoded.Encode(), block.Encode()) {
			t.Fatalf("\t%s\tShould decode the same block.", failed)
		}
		t.Logf("\t%s\tShould decode the same block.", success)

		data, err := block.ToJSON()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to marshal the block: %v", failed, err)
		}
		fromJSON, err := database.BlockFromJSON(data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to unmarshal the block: %v", failed, err)
		}
		if !bytes.Equal(fromJSON.Encode(), block.Encode()) {
			t.Fatalf("\t%s\tShould produce the same bytes from JSON.", failed)
		}
		t.Logf("\t%s\tShould produce the same bytes from JSON.", success)

		tampered := database.NewBlock(block.Header, txs[:1], assets)
		if err := tampered.Validate(); !errors.Is(err, database.ErrInvalidTransactionRoot) {
			t.Fatalf("\t%s\tShould reject a block with a wrong transaction root: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block with a wrong transaction root.", success)

		tampered = database.NewBlock(block.Header, txs, database.NewBlockAssets())
		if err := tampered.Validate(); !errors.Is(err, database.ErrInvalidAssetsRoot) {
			t.Fatalf("\t%s\tShould reject a block with a wrong asset root: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a block with a wrong asset root.", success)

		empty := forgedBlock(t, txs, nil)
		literal := database.Block{Header: empty.Header, Transactions: txs}
		if err := literal.Validate(); err != nil {
			t.Fatalf("\t%s\tShould treat missing assets as an empty list: %v", failed, err)
		}
		if _, err := literal.ToJSON(); err != nil {
			t.Fatalf("\t%s\tShould marshal a block without assets: %v", failed, err)
		}
		if !bytes.Equal(literal.Encode(), empty.Encode()) {
			t.Fatalf("\t%s\tShould encode missing assets as an empty list.", failed)
		}
		t.Logf("\t%s\tShould treat missing assets as an empty list.", success)

		dup := forgedBlock(t, []*database.Transaction{txs[0], txs[0]}, nil)
		if fe := validate.GetFieldErrors(dup.Validate()); !fe.Has("transactions[1]") {
			t.Fatalf("\t%s\tShould reject duplicate transactions: %v", failed, fe)
		}
		t.Logf("\t%s\tShould reject duplicate transactions.", success)
	}
}

func Test_StateRecords(t *testing.T) {
	t.Log("Given the need to store state records.")
	{
		addr := common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")

		acct := database.Account{Address: addr, Balance: 1000, Nonce: 3}
		gotAcct, err := database.DecodeAccount(acct.Encode())
		if err != nil || gotAcct != acct {
			t.Fatalf("\t%s\tShould round trip an account: %v", failed, err)
		}
		t.Logf("\t%s\tShould round trip an account.", success)

		vs := database.Validators{
			{Address: addr, MinActiveHeight: 0, IsConsensusParticipant: true},
			{Address: common.Address{0x01}, MinActiveHeight: 12},
		}
		gotVS, err := database.DecodeValidators(vs.Encode())
		if err != nil || !reflect.DeepEqual(gotVS, vs) {
			t.Fatalf("\t%s\tShould round trip a validator set: %v", failed, err)
		}
		t.Logf("\t%s\tShould round trip a validator set.", success)

		ga := database.GenesisAsset{
			Accounts:       []database.Account{acct},
			InitValidators: []common.Address{addr, {0x01}},
		}
		gotGA, err := database.DecodeGenesisAsset(ga.Encode())
		if err != nil || !reflect.DeepEqual(gotGA, ga) {
			t.Fatalf("\t%s\tShould round trip a genesis asset: %v", failed, err)
		}
		t.Logf("\t%s\tShould round trip a genesis asset.", success)

		sd := database.StateDiff{
			Updated: []database.KV{{Key: []byte("a"), Value: []byte{'=', 1}}},
			Created: [][]byte{[]byte("b")},
			Deleted: []database.KV{{Key: []byte("c"), Value: []byte("old")}},
		}
		gotSD, err := database.DecodeStateDiff(sd.Encode())
		if err != nil || !reflect.DeepEqual(gotSD, sd) {
			t.Fatalf("\t%s\tShould round trip a state diff: %v", failed, err)
		}
		t.Logf("\t%s\tShould round trip a state diff.", success)
	}
}
