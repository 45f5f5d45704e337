// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.

package merkle_test

import (
	"bytes"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/merkle"
)

// Data uses the sha256 hashing algorithm for the merkle tree.
type Data struct {
	x string
}

// Hash hashes the values using sha256.
func (d Data) Hash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write([]byte(d.x)); err != nil {
		return nil, err
	}

	return h.Sum(nil), nil
}

// Equals tests for equality of two piece of data.
func (d Data) Equals(other Data) bool {
	return d.x == other.x
}

// =============================================================================

func Test_NewTreeWithDefault(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}

		exp := expectedRoot(t, tt.data, sha256.New)
		if !bytes.Equal(tree.MerkleRoot, exp) {
			t.Errorf("[case:%d] error: expected hash equal to %x got %x", tt.testCaseID, exp, tree.MerkleRoot)
		}
	}
}

func Test_NewTreeWithHashingStrategy(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data, merkle.WithHashStrategy[Data](sha512.New))
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}

		exp := expectedRoot(t, tt.data, sha512.New)
		if !bytes.Equal(tree.MerkleRoot, exp) {
			t.Errorf("[case:%d] error: expected hash equal to %x got %x", tt.testCaseID, exp, tree.MerkleRoot)
		}
	}
}

func Test_EmptyTree(t *testing.T) {
	tree, err := merkle.NewTree([]Data{})
	if err != nil {
		t.Fatalf("error: unexpected error: %v", err)
	}

	exp := sha256.Sum256(nil)
	if !bytes.Equal(tree.MerkleRoot, exp[:]) {
		t.Errorf("error: expected empty root %x got %x", exp, tree.MerkleRoot)
	}

	if err := tree.Verify(); err != nil {
		t.Errorf("error: expected empty tree to verify: %v", err)
	}

	if !bytes.Equal(merkle.RootOf(nil), exp[:]) {
		t.Errorf("error: expected RootOf(nil) to be the empty root")
	}
}

func Test_Verify(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}

		if err := tree.Verify(); err != nil {
			t.Errorf("[case:%d] error: expected tree to be valid: %v", tt.testCaseID, err)
		}

		tree.Root.Hash = []byte{1}
		tree.MerkleRoot = []byte{1}
		if err := tree.Verify(); err == nil {
			t.Errorf("[case:%d] error: expected tree to be invalid", tt.testCaseID)
		}
	}
}

func Test_VerifyData(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}

		for _, d := range tt.data {
			if err := tree.VerifyData(d); err != nil {
				t.Errorf("[case:%d] error: expected valid content %q: %v", tt.testCaseID, d.x, err)
			}
		}

		if err := tree.VerifyData(tt.notInContents); err == nil {
			t.Errorf("[case:%d] error: expected invalid content", tt.testCaseID)
		}

		if err := tree.Rebuild(); err != nil {
			t.Fatalf("[case:%d] error: unexpected rebuild error: %v", tt.testCaseID, err)
		}

		exp := expectedRoot(t, tt.data, sha256.New)
		if !bytes.Equal(tree.MerkleRoot, exp) {
			t.Errorf("[case:%d] error: expected rebuilt hash equal to %x got %x", tt.testCaseID, exp, tree.MerkleRoot)
		}
	}
}

func Test_Proof(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}

		for j, d := range tt.data {
			proof, order, err := tree.Proof(d)
			if err != nil {
				t.Fatalf("[case:%d] error: unexpected proof error: %v", tt.testCaseID, err)
			}

			h := tree.Leafs[j].Hash
			for k := range proof {
				if order[k] == 1 {
					h = branch(sha256.New, h, proof[k])
					continue
				}
				h = branch(sha256.New, proof[k], h)
			}

			if !bytes.Equal(tree.MerkleRoot, h) {
				t.Errorf("[case:%d] error: proof for %q: expected %x got %x", tt.testCaseID, d.x, tree.MerkleRoot, h)
			}
		}
	}
}

func Test_RootOf(t *testing.T) {
	items := [][]byte{[]byte("a"), []byte("b"), []byte("c")}

	la := leaf(sha256.New, items[0])
	lb := leaf(sha256.New, items[1])
	lc := leaf(sha256.New, items[2])
	exp := branch(sha256.New, branch(sha256.New, la, lb), lc)

	if got := merkle.RootOf(items); !bytes.Equal(got, exp) {
		t.Errorf("error: expected root %x got %x", exp, got)
	}

	single := merkle.RootOf(items[:1])
	if !bytes.Equal(single, la) {
		t.Errorf("error: expected single item root to be its leaf hash %x got %x", la, single)
	}

	swapped := merkle.RootOf([][]byte{items[1], items[0], items[2]})
	if bytes.Equal(swapped, exp) {
		t.Errorf("error: expected ordering to change the root")
	}
}

func Test_String(t *testing.T) {
	for _, tt := range table {
		tree, err := merkle.NewTree(tt.data)
		if err != nil {
			t.Fatalf("[case:%d] error: unexpected error: %v", tt.testCaseID, err)
		}
		if tree.String() == "" {
			t.Errorf("[case:%d] error: expected not empty string", tt.testCaseID)
		}
	}
}

// =============================================================================

func leaf(hashStrategy func() hash.Hash, data []byte) []byte {
	h := hashStrategy()
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

func branch(hashStrategy func() hash.Hash, left []byte, right []byte) []byte {
	h := hashStrategy()
	h.Write([]byte{0x01})
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

// expectedRoot folds the leaf hashes level by level, carrying a trailing
// odd node up unchanged.
func expectedRoot(t *testing.T, data []Data, hashStrategy func() hash.Hash) []byte {
	level := make([][]byte, len(data))
	for i, d := range data {
		v, err := d.Hash()
		if err != nil {
			t.Fatalf("error: unexpected hash error: %v", err)
		}
		level[i] = leaf(hashStrategy, v)
	}

	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, branch(hashStrategy, level[i], level[i+1]))
		}
		level = next
	}

	return level[0]
}

// =============================================================================

var table = []struct {
	testCaseID    int
	data          []Data
	notInContents Data
}{
	{
		testCaseID:    1,
		data:          []Data{{x: "Hello"}},
		notInContents: Data{x: "NotInTestTable"},
	},
	{
		testCaseID:    2,
		data:          []Data{{x: "Hello"}, {x: "Hi"}, {x: "Hey"}, {x: "Hola"}},
		notInContents: Data{x: "NotInTestTable"},
	},
	{
		testCaseID:    3,
		data:          []Data{{x: "Hello"}, {x: "Hi"}, {x: "Hey"}},
		notInContents: Data{x: "NotInTestTable"},
	},
	{
		testCaseID:    4,
		data:          []Data{{x: "Hello"}, {x: "Hi"}, {x: "Hey"}, {x: "Greetings"}, {x: "Hola"}},
		notInContents: Data{x: "NotInTestTable"},
	},
	{
		testCaseID: 5,
		data: []Data{
			{x: "123"}, {x: "234"}, {x: "345"}, {x: "456"}, {x: "1123"}, {x: "2234"}, {x: "3345"}, {x: "4456"}, {x: "5567"},
		},
		notInContents: Data{x: "NotInTestTable"},
	},
}
