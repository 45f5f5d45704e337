package database

import "github.com/ardanlabs/dpos/foundation/blockchain/codec"

// KV is a state store key together with a value.
type KV struct {
	Key   []byte
	Value []byte
}

// StateDiff records what a block changed in the state store so the block
// can be reverted. Updated values hold the edit script from the prior
// value, deleted values hold the prior value itself.
type StateDiff struct {
	Updated []KV
	Created [][]byte
	Deleted []KV
}

// Encode returns the canonical binary form of the diff.
func (sd StateDiff) Encode() []byte {
	kvs := func(list []KV) []any {
		items := make([]any, len(list))
		for i, kv := range list {
			items[i] = codec.Record{"key": kv.Key, "value": kv.Value}
		}
		return items
	}

	return StateDiffSchema.MustEncode(codec.Record{
		"updated": kvs(sd.Updated),
		"created": anyList(sd.Created),
		"deleted": kvs(sd.Deleted),
	})
}

// DecodeStateDiff parses the canonical binary form of a diff.
func DecodeStateDiff(b []byte) (StateDiff, error) {
	rec, err := StateDiffSchema.Decode(b)
	if err != nil {
		return StateDiff{}, err
	}

	kvs := func(v any) []KV {
		var list []KV
		for _, item := range v.([]any) {
			r := item.(codec.Record)
			list = append(list, KV{Key: r["key"].([]byte), Value: r["value"].([]byte)})
		}
		return list
	}

	sd := StateDiff{
		Updated: kvs(rec["updated"]),
		Deleted: kvs(rec["deleted"]),
	}
	if created := bytesList(rec["created"]); len(created) > 0 {
		sd.Created = created
	}

	return sd, nil
}

// StateChanges is everything the storage layer has to apply atomically
// with a block: the values to write, the keys to remove and the diff to
// record for the block height.
type StateChanges struct {
	Diff   StateDiff
	Set    []KV
	Delete [][]byte
}
