// Package statestore maintains the block scoped working set of state
// changes. Reads fall through to persisted state, writes are held until the
// block is committed and are then turned into the changes to persist plus a
// diff that can revert them.
package statestore

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/dpos/foundation/blockchain/database"
	"github.com/ardanlabs/dpos/foundation/blockchain/diff"
	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes for the different kinds of state.
var (
	prefixAccount   = []byte("account:")
	prefixConsensus = []byte("consensus:")
)

// ValidatorsKey is the consensus state key the active validator set is
// stored under.
const ValidatorsKey = "validators"

// Reader represents the behavior required to read persisted state.
type Reader interface {
	GetState(key []byte) ([]byte, error)
}

// AccountKey returns the state key for an account.
func AccountKey(address common.Address) []byte {
	return append(append([]byte{}, prefixAccount...), address.Bytes()...)
}

// ConsensusKey returns the state key for a consensus value.
func ConsensusKey(name string) []byte {
	return append(append([]byte{}, prefixConsensus...), name...)
}

// =============================================================================

type entry struct {
	key     []byte
	initial []byte
	existed bool
	value   []byte
	deleted bool
}

// Store is the working set for a single block.
type Store struct {
	reader  Reader
	entries map[string]*entry
	updated map[common.Address]struct{}
	mu      sync.RWMutex
}

// New constructs a working set over the persisted state.
func New(reader Reader) *Store {
	return &Store{
		reader:  reader,
		entries: make(map[string]*entry),
		updated: make(map[common.Address]struct{}),
	}
}

// Get returns the current value for the key.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.load(key)
	if err != nil {
		return nil, err
	}

	if e.deleted || (!e.existed && e.value == nil) {
		return nil, database.ErrNotFound
	}

	return append([]byte(nil), e.value...), nil
}

// Set replaces the value for the key.
func (s *Store) Set(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.load(key)
	if err != nil {
		return err
	}

	e.value = append([]byte{}, value...)
	e.deleted = false

	return nil
}

// Delete removes the key.
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.load(key)
	if err != nil {
		return err
	}

	e.value = nil
	e.deleted = true

	return nil
}

// load returns the entry for the key, reading the persisted value on first
// access.
func (s *Store) load(key []byte) (*entry, error) {
	if e, exists := s.entries[string(key)]; exists {
		return e, nil
	}

	e := entry{key: append([]byte{}, key...)}

	value, err := s.reader.GetState(key)
	switch {
	case err == nil:
		e.existed = true
		e.initial = value
		e.value = append([]byte{}, value...)

	case errors.Is(err, database.ErrNotFound):

	default:
		return nil, fmt.Errorf("reading state %q: %w", key, err)
	}

	s.entries[string(key)] = &e
	return &e, nil
}

// =============================================================================

// GetAccount returns the account for the address. An account that was never
// written returns a zero balance account.
func (s *Store) GetAccount(address common.Address) (database.Account, error) {
	data, err := s.Get(AccountKey(address))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Account{Address: address}, nil
		}
		return database.Account{}, err
	}

	return database.DecodeAccount(data)
}

// SetAccount writes the account and marks it as updated by the block.
func (s *Store) SetAccount(account database.Account) error {
	if err := s.Set(AccountKey(account.Address), account.Encode()); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.updated[account.Address] = struct{}{}
	return nil
}

// UpdatedAccounts returns the accounts written through the working set,
// ordered by address.
func (s *Store) UpdatedAccounts() ([]database.Account, error) {
	s.mu.RLock()
	addrs := make([]common.Address, 0, len(s.updated))
	for addr := range s.updated {
		addrs = append(addrs, addr)
	}
	s.mu.RUnlock()

	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i].Bytes(), addrs[j].Bytes()) < 0
	})

	accounts := make([]database.Account, 0, len(addrs))
	for _, addr := range addrs {
		acct, err := s.GetAccount(addr)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}

	return accounts, nil
}

// GetConsensusState returns the consensus value stored under the name.
func (s *Store) GetConsensusState(name string) ([]byte, error) {
	return s.Get(ConsensusKey(name))
}

// SetConsensusState writes the consensus value under the name.
func (s *Store) SetConsensusState(name string, value []byte) error {
	return s.Set(ConsensusKey(name), value)
}

// GetValidators returns the active validator set.
func (s *Store) GetValidators() (database.Validators, error) {
	data, err := s.GetConsensusState(ValidatorsKey)
	if err != nil {
		return nil, err
	}

	return database.DecodeValidators(data)
}

// SetValidators writes the active validator set.
func (s *Store) SetValidators(vs database.Validators) error {
	return s.SetConsensusState(ValidatorsKey, vs.Encode())
}

// =============================================================================

// Finalize returns the changes the working set holds compared to persisted
// state, ordered by key. Updated values are recorded as the edit script
// from the persisted value so they can be reverted later.
func (s *Store) Finalize() database.StateChanges {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var changes database.StateChanges
	for _, k := range keys {
		e := s.entries[k]

		switch {
		case e.existed && e.deleted:
			changes.Delete = append(changes.Delete, e.key)
			changes.Diff.Deleted = append(changes.Diff.Deleted, database.KV{Key: e.key, Value: e.initial})

		case e.existed && !bytes.Equal(e.initial, e.value):
			changes.Set = append(changes.Set, database.KV{Key: e.key, Value: e.value})
			script := diff.Calculate(e.initial, e.value)
			changes.Diff.Updated = append(changes.Diff.Updated, database.KV{Key: e.key, Value: script.Encode()})

		case !e.existed && !e.deleted && e.value != nil:
			changes.Set = append(changes.Set, database.KV{Key: e.key, Value: e.value})
			changes.Diff.Created = append(changes.Diff.Created, e.key)
		}
	}

	return changes
}

// Revert returns the changes that undo the diff against the current
// persisted state.
func Revert(reader Reader, sd database.StateDiff) (database.StateChanges, error) {
	var changes database.StateChanges

	changes.Delete = append(changes.Delete, sd.Created...)

	for _, kv := range sd.Updated {
		current, err := reader.GetState(kv.Key)
		if err != nil {
			return database.StateChanges{}, fmt.Errorf("reading state %q: %w", kv.Key, err)
		}

		script, err := diff.DecodeScript(kv.Value)
		if err != nil {
			return database.StateChanges{}, fmt.Errorf("decoding diff for %q: %w", kv.Key, err)
		}

		initial, err := diff.Undo(current, script)
		if err != nil {
			return database.StateChanges{}, fmt.Errorf("reverting %q: %w", kv.Key, err)
		}

		changes.Set = append(changes.Set, database.KV{Key: kv.Key, Value: initial})
	}

	changes.Set = append(changes.Set, sd.Deleted...)

	return changes, nil
}

// ChangedAccounts returns the accounts the changes write or delete, ordered
// by address. A deleted account is returned with a zero balance.
func ChangedAccounts(changes database.StateChanges) ([]database.Account, error) {
	var accounts []database.Account

	for _, kv := range changes.Set {
		if !bytes.HasPrefix(kv.Key, prefixAccount) {
			continue
		}

		acct, err := database.DecodeAccount(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("decoding account %x: %w", kv.Key, err)
		}
		accounts = append(accounts, acct)
	}

	for _, key := range changes.Delete {
		if !bytes.HasPrefix(key, prefixAccount) {
			continue
		}

		addr := common.BytesToAddress(key[len(prefixAccount):])
		accounts = append(accounts, database.Account{Address: addr})
	}

	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address.Bytes(), accounts[j].Address.Bytes()) < 0
	})

	return accounts, nil
}
