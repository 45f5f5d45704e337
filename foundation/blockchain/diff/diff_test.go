package diff_test

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
	"github.com/ardanlabs/dpos/foundation/blockchain/diff"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// =============================================================================

func Test_Calculate(t *testing.T) {
	type table struct {
		name    string
		initial []byte
		final   []byte
		edits   int
		script  diff.Script
	}

	tt := []table{
		{
			name:    "both-empty",
			initial: []byte{},
			final:   []byte{},
			script:  diff.Script{},
		},
		{
			name:    "all-insert",
			initial: []byte{},
			final:   []byte("abc"),
			edits:   3,
			script: diff.Script{
				{Code: diff.OpInsert, Value: 'a'},
				{Code: diff.OpInsert, Value: 'b'},
				{Code: diff.OpInsert, Value: 'c'},
			},
		},
		{
			name:    "all-delete",
			initial: []byte("abc"),
			final:   nil,
			edits:   3,
			script: diff.Script{
				{Code: diff.OpDelete, Value: 'a'},
				{Code: diff.OpDelete, Value: 'b'},
				{Code: diff.OpDelete, Value: 'c'},
			},
		},
		{
			name:    "equal",
			initial: []byte("validator"),
			final:   []byte("validator"),
			script:  diff.Script{{Code: diff.OpEqual, Value: 9}},
		},
		{
			name:    "append",
			initial: []byte("abc"),
			final:   []byte("abcd"),
			edits:   1,
			script: diff.Script{
				{Code: diff.OpEqual, Value: 3},
				{Code: diff.OpInsert, Value: 'd'},
			},
		},
		{
			name:    "replace-last",
			initial: []byte("abc"),
			final:   []byte("abd"),
			edits:   2,
		},
		{
			name:    "classic",
			initial: []byte("ABCABBA"),
			final:   []byte("CBABAC"),
			edits:   5,
		},
	}

	t.Log("Given the need to calculate edit scripts between buffers.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling the %s case.", testID, tst.name)
				{
					script := diff.Calculate(tst.initial, tst.final)

					if tst.script != nil {
						if script.String() != tst.script.String() {
							t.Logf("\t\tTest %d:\tgot: %s", testID, script)
							t.Logf("\t\tTest %d:\texp: %s", testID, tst.script)
							t.Fatalf("\t%s\tTest %d:\tShould produce the expected script.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould produce the expected script.", success, testID)
					}

					var edits int
					for _, op := range script {
						if op.Code != diff.OpEqual {
							edits++
						}
					}
					if edits != tst.edits {
						t.Fatalf("\t%s\tTest %d:\tShould produce %d edits, got %d: %s", failed, testID, tst.edits, edits, script)
					}
					t.Logf("\t%s\tTest %d:\tShould produce %d edits.", success, testID, tst.edits)

					got, err := diff.Undo(tst.final, script)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to undo the script: %v", failed, testID, err)
					}
					if !bytes.Equal(got, tst.initial) {
						t.Fatalf("\t%s\tTest %d:\tShould reconstruct the initial buffer, got %q.", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould reconstruct the initial buffer.", success, testID)

					got, err = diff.Apply(tst.initial, script)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to apply the script: %v", failed, testID, err)
					}
					if !bytes.Equal(got, tst.final) {
						t.Fatalf("\t%s\tTest %d:\tShould reconstruct the final buffer, got %q.", failed, testID, got)
					}
					t.Logf("\t%s\tTest %d:\tShould reconstruct the final buffer.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_UndoProperty(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))

	random := func(max int) []byte {
		b := make([]byte, rnd.Intn(max+1))
		for i := range b {
			b[i] = byte(rnd.Intn(4))
		}
		return b
	}

	t.Log("Given the need to revert any buffer from its edit script.")
	{
		for i := 0; i < 500; i++ {
			a := random(64)
			b := random(64)

			// Start from a mutation of a so scripts mix all three ops.
			if i%2 == 0 {
				b = append(append([]byte{}, a[:len(a)/2]...), b...)
			}

			script := diff.Calculate(a, b)

			got, err := diff.Undo(b, script)
			if err != nil {
				t.Fatalf("\t%s\tRun %d:\tShould undo the script: %v", failed, i, err)
			}
			if !bytes.Equal(got, a) {
				t.Logf("\t\tRun %d:\tinitial: %x", i, a)
				t.Logf("\t\tRun %d:\tfinal  : %x", i, b)
				t.Logf("\t\tRun %d:\tscript : %s", i, script)
				t.Fatalf("\t%s\tRun %d:\tShould reconstruct the initial buffer.", failed, i)
			}

			fwd, err := diff.Apply(a, script)
			if err != nil || !bytes.Equal(fwd, b) {
				t.Fatalf("\t%s\tRun %d:\tShould reconstruct the final buffer: %v", failed, i, err)
			}

			same := diff.Calculate(a, a)
			if len(a) > 0 && (len(same) != 1 || same[0].Code != diff.OpEqual || same[0].Value != uint32(len(a))) {
				t.Fatalf("\t%s\tRun %d:\tShould reduce identical buffers to a single equal run, got %s.", failed, i, same)
			}
		}
		t.Logf("\t%s\tShould reconstruct both buffers for 500 random pairs.", success)
		t.Logf("\t%s\tShould reduce identical buffers to a single equal run.", success)
	}
}

func Test_InvalidScript(t *testing.T) {
	t.Log("Given the need to reject scripts that don't fit the buffer.")
	{
		_, err := diff.Undo([]byte("abc"), diff.Script{{Code: '*', Value: 1}})
		if !errors.Is(err, diff.ErrInvalidScript) {
			t.Fatalf("\t%s\tShould reject an unknown op: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an unknown op.", success)

		_, err = diff.Undo([]byte("abc"), diff.Script{{Code: diff.OpEqual, Value: 2}})
		if !errors.Is(err, diff.ErrInvalidScript) {
			t.Fatalf("\t%s\tShould reject a script that doesn't cover the buffer: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a script that doesn't cover the buffer.", success)

		_, err = diff.Undo([]byte("abc"), diff.Script{{Code: diff.OpEqual, Value: 2}, {Code: diff.OpInsert, Value: 'x'}})
		if !errors.Is(err, diff.ErrInvalidScript) {
			t.Fatalf("\t%s\tShould reject an insert that doesn't match the buffer: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an insert that doesn't match the buffer.", success)

		_, err = diff.Apply([]byte("abc"), diff.Script{{Code: diff.OpDelete, Value: 'x'}, {Code: diff.OpEqual, Value: 2}})
		if !errors.Is(err, diff.ErrInvalidScript) {
			t.Fatalf("\t%s\tShould reject a delete that doesn't match the buffer: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a delete that doesn't match the buffer.", success)
	}
}

func Test_ScriptEncoding(t *testing.T) {
	t.Log("Given the need to store edit scripts.")
	{
		script := diff.Calculate([]byte("balance:100"), []byte("balance:75"))

		got, err := diff.DecodeScript(script.Encode())
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the script: %v", failed, err)
		}
		if got.String() != script.String() {
			t.Logf("\t\tgot: %s", got)
			t.Logf("\t\texp: %s", script)
			t.Fatalf("\t%s\tShould decode the same script.", failed)
		}
		t.Logf("\t%s\tShould decode the same script.", success)

		bad := diff.Script{{Code: '*', Value: 1}}.Encode()
		_, err = diff.DecodeScript(bad)
		if !codec.IsDecodeError(err) {
			t.Fatalf("\t%s\tShould reject an unknown op code with a decode error: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject an unknown op code with a decode error.", success)
	}
}
