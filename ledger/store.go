// Package ledger persists the accounting state of one funder instance in a
// key-value store.
//
// Layout (all values RLP-encoded):
//
//	"s"                 -> istate.RateSchedule (head of the decay schedule)
//	"e" + be64(start)   -> istate.RateEpoch    (decay history, ordered by start)
//	"g"                 -> istate.Gate
//	"a" + address       -> istate.AccountState
//
// Mutations go through a Batch so that an account, the schedule head and any
// new history entries land together or not at all.
package ledger

import (
	"errors"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/table"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-gauge-funder/emission/genesis"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/inter/istate"
)

var (
	// ErrNotInitialized is returned when reading a store that was never seeded with a genesis.
	ErrNotInitialized = errors.New("ledger: not initialized")
	// ErrAlreadyInitialized is returned by Init on a seeded store.
	ErrAlreadyInitialized = errors.New("ledger: already initialized")
)

var (
	scheduleKey   = []byte("s")
	gateKey       = []byte("g")
	epochPrefix   = []byte("e")
	accountPrefix = []byte("a")
)

// Store is the durable state of a single funder instance.
type Store struct {
	db  kvdb.Store
	log log.Logger
}

// New wraps db. The store owns no resources; closing db is the caller's job.
func New(db kvdb.Store) *Store {
	return &Store{db: db, log: log.New("module", "ledger")}
}

// NewInstance namespaces the funder at addr inside a shared database.
func NewInstance(db kvdb.Store, addr common.Address) *Store {
	s := New(table.New(db, append([]byte("f"), addr.Bytes()...)))
	s.log = s.log.New("funder", addr)
	return s
}

// Initialized reports whether a genesis has been written.
func (s *Store) Initialized() (bool, error) {
	return s.db.Has(scheduleKey)
}

// Init seeds the store with the genesis schedule, the first decay history
// entry and a gate caching receiver.
func (s *Store) Init(g genesis.Genesis, receiver common.Address) error {
	if err := g.Validate(); err != nil {
		return err
	}
	ok, err := s.Initialized()
	if err != nil {
		return err
	}
	if ok {
		return ErrAlreadyInitialized
	}

	b := s.NewBatch()
	if err := b.SetSchedule(g.Schedule()); err != nil {
		return err
	}
	if err := b.AddEpoch(g.FirstEpoch()); err != nil {
		return err
	}
	if err := b.SetGate(istate.Gate{CachedReceiver: receiver}); err != nil {
		return err
	}
	if err := b.Write(); err != nil {
		return err
	}
	s.log.Info("Ledger initialized", "genesis", g.String(), "receiver", receiver)
	return nil
}

// GetSchedule returns the schedule head.
func (s *Store) GetSchedule() (istate.RateSchedule, error) {
	var v istate.RateSchedule
	if err := s.get(scheduleKey, &v); err != nil {
		return istate.RateSchedule{}, err
	}
	return v, nil
}

// GetGate returns the kill gate and cached receiver.
func (s *Store) GetGate() (istate.Gate, error) {
	var v istate.Gate
	if err := s.get(gateKey, &v); err != nil {
		return istate.Gate{}, err
	}
	return v, nil
}

// GetAccount returns the stored state of addr. ok is false when the
// participant has never checkpointed.
func (s *Store) GetAccount(addr common.Address) (acc istate.AccountState, ok bool, err error) {
	b, err := s.db.Get(accountKey(addr))
	if err != nil {
		return istate.AccountState{}, false, err
	}
	if b == nil {
		return istate.AccountState{}, false, nil
	}
	if err := acc.UnmarshalBinary(b); err != nil {
		return istate.AccountState{}, false, fmt.Errorf("ledger: account %s: %w", addr.Hex(), err)
	}
	return acc, true, nil
}

// ForEachAccount calls fn for every participant that has checkpointed, in
// address order. Iteration stops at the first error fn returns.
func (s *Store) ForEachAccount(fn func(common.Address, istate.AccountState) error) error {
	it := s.db.NewIterator(accountPrefix, nil)
	defer it.Release()

	for it.Next() {
		var acc istate.AccountState
		if err := acc.UnmarshalBinary(it.Value()); err != nil {
			return err
		}
		addr := common.BytesToAddress(it.Key()[len(accountPrefix):])
		if err := fn(addr, acc); err != nil {
			return err
		}
	}
	return it.Error()
}

// Epochs returns the decay history ordered by start time.
func (s *Store) Epochs() ([]istate.RateEpoch, error) {
	it := s.db.NewIterator(epochPrefix, nil)
	defer it.Release()

	var epochs []istate.RateEpoch
	for it.Next() {
		var e istate.RateEpoch
		if err := e.UnmarshalBinary(it.Value()); err != nil {
			return nil, err
		}
		epochs = append(epochs, e)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	if len(epochs) == 0 {
		return nil, ErrNotInitialized
	}
	return epochs, nil
}

func (s *Store) get(key []byte, v interface{ UnmarshalBinary([]byte) error }) error {
	b, err := s.db.Get(key)
	if err != nil {
		return err
	}
	if b == nil {
		return ErrNotInitialized
	}
	return v.UnmarshalBinary(b)
}

// NewBatch starts an atomic set of writes.
func (s *Store) NewBatch() *Batch {
	return &Batch{b: s.db.NewBatch()}
}

// Batch collects writes until Write. Nothing is visible before Write succeeds.
type Batch struct {
	b kvdb.Batch
}

// SetSchedule replaces the schedule head.
func (b *Batch) SetSchedule(v istate.RateSchedule) error {
	return b.put(scheduleKey, v)
}

// AddEpoch appends a decay history entry.
func (b *Batch) AddEpoch(v istate.RateEpoch) error {
	return b.put(epochKey(v.Start), v)
}

// SetGate replaces the gate.
func (b *Batch) SetGate(v istate.Gate) error {
	return b.put(gateKey, v)
}

// SetAccount replaces the state of addr.
func (b *Batch) SetAccount(addr common.Address, v istate.AccountState) error {
	return b.put(accountKey(addr), v)
}

// Write commits the batch.
func (b *Batch) Write() error {
	return b.b.Write()
}

func (b *Batch) put(key []byte, v interface{ MarshalBinary() ([]byte, error) }) error {
	val, err := v.MarshalBinary()
	if err != nil {
		return err
	}
	return b.b.Put(key, val)
}

func epochKey(start inter.Timestamp) []byte {
	return append(append([]byte{}, epochPrefix...), bigendian.Uint64ToBytes(uint64(start))...)
}

func accountKey(addr common.Address) []byte {
	return append(append([]byte{}, accountPrefix...), addr.Bytes()...)
}
