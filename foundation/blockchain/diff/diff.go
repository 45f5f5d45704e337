// Package diff computes byte level edit scripts between two buffers and
// replays them in either direction. State changes are stored as scripts so
// a block can be reverted without keeping full snapshots of prior values.
package diff

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/dpos/foundation/blockchain/codec"
)

// Set of operation codes used in a script.
const (
	OpEqual  byte = '='
	OpInsert byte = '+'
	OpDelete byte = '-'
)

// ErrInvalidScript is returned when a script can't be replayed against the
// provided buffer.
var ErrInvalidScript = errors.New("invalid diff script")

// Op is a single edit. For OpEqual the value is the length of the run of
// unchanged bytes, for OpInsert and OpDelete it is the byte itself.
type Op struct {
	Code  byte
	Value uint32
}

// String implements the fmt.Stringer interface.
func (op Op) String() string {
	switch op.Code {
	case OpEqual:
		return fmt.Sprintf("=%d", op.Value)
	case OpInsert, OpDelete:
		return fmt.Sprintf("%c%02x", op.Code, op.Value)
	}
	return fmt.Sprintf("?%d", op.Code)
}

// Script is an ordered list of edits that turns an initial buffer into a
// final buffer.
type Script []Op

// =============================================================================

// Calculate returns the shortest edit script that turns initial into final
// using the Myers O(ND) algorithm. Runs of unchanged bytes are collapsed
// into a single equal op.
func Calculate(initial []byte, final []byte) Script {
	n, m := len(initial), len(final)
	maxD := n + m
	offset := maxD + 1

	// v holds the furthest x reached on each diagonal k = x - y.
	v := make([]int, 2*maxD+3)

	// trace keeps a copy of v[-d..d] taken at the start of every round
	// which is all the backtrack needs.
	var trace [][]int

	for d := 0; d <= maxD; d++ {
		snap := make([]int, 2*d+1)
		copy(snap, v[offset-d:offset+d+1])
		trace = append(trace, snap)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k

			for x < n && y < m && initial[x] == final[y] {
				x++
				y++
			}
			v[offset+k] = x

			if x >= n && y >= m {
				return backtrack(trace, initial, final)
			}
		}
	}

	// Unreachable, the loop always terminates once d reaches n + m.
	return nil
}

// backtrack walks the trace from the end of both buffers to the start and
// rebuilds the edit path.
func backtrack(trace [][]int, initial []byte, final []byte) Script {
	x, y := len(initial), len(final)
	var rev []Op

	for d := len(trace) - 1; d >= 0; d-- {
		if d == 0 {
			for ; x > 0; x-- {
				rev = append(rev, Op{Code: OpEqual, Value: 1})
			}
			break
		}

		snap := trace[d]
		at := func(k int) int { return snap[k+d] }

		k := x - y
		var prevK int
		if k == -d || (k != d && at(k-1) < at(k+1)) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := at(prevK)
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, Op{Code: OpEqual, Value: 1})
			x--
			y--
		}

		if x == prevX {
			rev = append(rev, Op{Code: OpInsert, Value: uint32(final[prevY])})
		} else {
			rev = append(rev, Op{Code: OpDelete, Value: uint32(initial[prevX])})
		}

		x, y = prevX, prevY
	}

	script := make(Script, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		op := rev[i]
		if op.Code == OpEqual && len(script) > 0 && script[len(script)-1].Code == OpEqual {
			script[len(script)-1].Value++
			continue
		}
		script = append(script, op)
	}

	return script
}

// =============================================================================

// Undo replays the script in reverse against the final buffer and returns
// the initial buffer the script was calculated from.
func Undo(final []byte, script Script) ([]byte, error) {
	var size, consumed int
	for _, op := range script {
		switch op.Code {
		case OpEqual:
			size += int(op.Value)
			consumed += int(op.Value)
		case OpInsert:
			if op.Value > 0xff {
				return nil, fmt.Errorf("%w: byte value %d out of range", ErrInvalidScript, op.Value)
			}
			consumed++
		case OpDelete:
			if op.Value > 0xff {
				return nil, fmt.Errorf("%w: byte value %d out of range", ErrInvalidScript, op.Value)
			}
			size++
		default:
			return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidScript, op.Code)
		}
	}

	if consumed != len(final) {
		return nil, fmt.Errorf("%w: script covers %d bytes, buffer has %d", ErrInvalidScript, consumed, len(final))
	}

	initial := make([]byte, size)
	pos := len(final)
	out := size

	for i := len(script) - 1; i >= 0; i-- {
		op := script[i]

		switch op.Code {
		case OpEqual:
			n := int(op.Value)
			pos -= n
			out -= n
			copy(initial[out:out+n], final[pos:pos+n])

		case OpInsert:
			pos--
			if uint32(final[pos]) != op.Value {
				return nil, fmt.Errorf("%w: inserted byte at %d does not match", ErrInvalidScript, pos)
			}

		case OpDelete:
			out--
			initial[out] = byte(op.Value)
		}
	}

	return initial, nil
}

// Apply replays the script forward against the initial buffer and returns
// the final buffer.
func Apply(initial []byte, script Script) ([]byte, error) {
	final := make([]byte, 0, len(initial))
	var pos int

	for _, op := range script {
		switch op.Code {
		case OpEqual:
			n := int(op.Value)
			if pos+n > len(initial) {
				return nil, fmt.Errorf("%w: equal run past end of buffer", ErrInvalidScript)
			}
			final = append(final, initial[pos:pos+n]...)
			pos += n

		case OpInsert:
			final = append(final, byte(op.Value))

		case OpDelete:
			if pos >= len(initial) || uint32(initial[pos]) != op.Value {
				return nil, fmt.Errorf("%w: deleted byte at %d does not match", ErrInvalidScript, pos)
			}
			pos++

		default:
			return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidScript, op.Code)
		}
	}

	if pos != len(initial) {
		return nil, fmt.Errorf("%w: script covers %d bytes, buffer has %d", ErrInvalidScript, pos, len(initial))
	}

	return final, nil
}

// =============================================================================

var opSchema = codec.MustNew("diff.op",
	codec.Field{Name: "code", Number: 1, Type: codec.TypeUint32},
	codec.Field{Name: "value", Number: 2, Type: codec.TypeUint32},
)

// ScriptSchema is the canonical layout of an edit script.
var ScriptSchema = codec.MustNew("diff.script",
	codec.Field{Name: "ops", Number: 1, Type: codec.TypeArray, Items: codec.TypeObject, Schema: opSchema},
)

func init() {
	codec.MustRegister(ScriptSchema)
}

// Encode returns the canonical binary form of the script.
func (s Script) Encode() []byte {
	ops := make([]any, len(s))
	for i, op := range s {
		ops[i] = codec.Record{"code": uint32(op.Code), "value": op.Value}
	}

	return ScriptSchema.MustEncode(codec.Record{"ops": ops})
}

// DecodeScript parses the canonical binary form of a script. Every op code
// must be one of the known codes.
func DecodeScript(b []byte) (Script, error) {
	rec, err := ScriptSchema.Decode(b)
	if err != nil {
		return nil, err
	}

	ops := rec["ops"].([]any)
	script := make(Script, len(ops))
	for i, item := range ops {
		r := item.(codec.Record)
		code := r["code"].(uint32)
		value := r["value"].(uint32)

		switch {
		case code == uint32(OpEqual):
		case code == uint32(OpInsert) || code == uint32(OpDelete):
			if value > 0xff {
				return nil, &codec.DecodeError{Schema: ScriptSchema.ID, Field: "ops", Err: fmt.Errorf("op %d: byte value %d out of range", i, value)}
			}
		default:
			return nil, &codec.DecodeError{Schema: ScriptSchema.ID, Field: "ops", Err: fmt.Errorf("op %d: unknown op code %d", i, code)}
		}

		script[i] = Op{Code: byte(code), Value: value}
	}

	return script, nil
}

// String renders the script in a compact human readable form.
func (s Script) String() string {
	str := ""
	for i, op := range s {
		if i > 0 {
			str += " "
		}
		str += op.String()
	}
	return str
}
