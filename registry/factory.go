// Package registry implements the funder factory: the owner of all deployed
// funder instances, the holder of the fallback receiver and the
// implementation new instances are cloned from.
//
// Ownership moves in two steps: the owner commits a future owner, who then
// accepts. Every administrative change is posted on an event feed.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/table"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	// ErrNotFutureOwner is returned when someone other than the committed
	// future owner accepts ownership.
	ErrNotFutureOwner = errors.New("registry: caller is not the future owner")
	// ErrNoImplementation is returned by Deploy before an implementation is set.
	ErrNoImplementation = errors.New("registry: implementation not set")
	// ErrUnknownFunder is returned for an address the factory never deployed.
	ErrUnknownFunder = errors.New("registry: unknown funder")
)

var (
	stateKey      = []byte("s")
	funderPrefix  = []byte("d")
	addressPrefix = []byte("a")
)

// Config seeds a new factory. It is ignored when db already holds one.
type Config struct {
	// Address is the factory's own address; instance addresses derive from it.
	Address          common.Address
	Owner            common.Address
	FallbackReceiver common.Address
	Implementation   common.Address
	Clock            gauge.Clock
}

// FunderRecord describes one deployed funder instance.
type FunderRecord struct {
	Address        common.Address
	Receiver       common.Address
	MaxEmissions   *uint256.Int
	Implementation common.Address
	CreatedAt      inter.Timestamp
	Nonce          uint64
}

// TransferOwnership is posted when a future owner accepts ownership.
type TransferOwnership struct {
	OldOwner common.Address
	NewOwner common.Address
}

// UpdateFallbackReceiver is posted when the fallback receiver changes.
type UpdateFallbackReceiver struct {
	OldFallback common.Address
	NewFallback common.Address
}

// UpdateImplementation is posted when the implementation changes.
type UpdateImplementation struct {
	OldImplementation common.Address
	NewImplementation common.Address
}

// NewFunder is posted after a deploy.
type NewFunder struct {
	Funder FunderRecord
}

type state struct {
	Address          common.Address
	Owner            common.Address
	FutureOwner      common.Address
	FallbackReceiver common.Address
	Implementation   common.Address
	Nonce            uint64
}

type funderRLP struct {
	Address        common.Address
	Receiver       common.Address
	MaxEmissions   *big.Int
	Implementation common.Address
	CreatedAt      uint64
	Nonce          uint64
}

// Factory is the persisted registry.
type Factory struct {
	db    kvdb.Store
	clock gauge.Clock

	mu sync.RWMutex
	st state

	transferFeed       event.Feed
	fallbackFeed       event.Feed
	implementationFeed event.Feed
	newFunderFeed      event.Feed
	scope              event.SubscriptionScope

	log log.Logger
}

// Open loads the factory stored in db, or creates it from cfg.
func Open(db kvdb.Store, cfg Config) (*Factory, error) {
	f := &Factory{
		db:    table.New(db, []byte("r")),
		clock: cfg.Clock,
		log:   log.New("module", "registry"),
	}
	if f.clock == nil {
		f.clock = inter.Now
	}

	b, err := f.db.Get(stateKey)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if err := rlp.DecodeBytes(b, &f.st); err != nil {
			return nil, fmt.Errorf("registry: decode state: %w", err)
		}
		f.log = f.log.New("factory", f.st.Address)
		return f, nil
	}

	f.st = state{
		Address:          cfg.Address,
		Owner:            cfg.Owner,
		FallbackReceiver: cfg.FallbackReceiver,
		Implementation:   cfg.Implementation,
	}
	if err := f.writeState(f.st); err != nil {
		return nil, err
	}
	f.log = f.log.New("factory", f.st.Address)
	f.log.Info("Factory created", "owner", cfg.Owner, "fallback", cfg.FallbackReceiver)
	return f, nil
}

func (f *Factory) writeState(st state) error {
	b, err := rlp.EncodeToBytes(&st)
	if err != nil {
		return err
	}
	return f.db.Put(stateKey, b)
}

// update applies fn to a copy of the state, persists it and publishes it.
func (f *Factory) update(caller common.Address, fn func(st *state) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if caller != f.st.Owner {
		return gauge.ErrUnauthorized
	}
	st := f.st
	if err := fn(&st); err != nil {
		return err
	}
	if err := f.writeState(st); err != nil {
		return err
	}
	f.st = st
	return nil
}

// Address returns the factory address.
func (f *Factory) Address() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.st.Address
}

// Owner returns the current owner.
func (f *Factory) Owner() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.st.Owner
}

// FutureOwner returns the committed, not yet accepted owner.
func (f *Factory) FutureOwner() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.st.FutureOwner
}

// IsOwner implements gauge.Admin.
func (f *Factory) IsOwner(caller common.Address) bool {
	return f.Owner() == caller
}

// FallbackReceiver implements gauge.ReceiverSource.
func (f *Factory) FallbackReceiver() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.st.FallbackReceiver
}

// Implementation returns the implementation new funders are cloned from.
func (f *Factory) Implementation() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.st.Implementation
}

// CommitTransferOwnership records future as the next owner. Owner only.
func (f *Factory) CommitTransferOwnership(caller, future common.Address) error {
	err := f.update(caller, func(st *state) error {
		st.FutureOwner = future
		return nil
	})
	if err == nil {
		f.log.Info("Ownership transfer committed", "future", future)
	}
	return err
}

// AcceptTransferOwnership makes the committed future owner the owner.
func (f *Factory) AcceptTransferOwnership(caller common.Address) error {
	f.mu.Lock()
	if caller != f.st.FutureOwner || caller == (common.Address{}) {
		f.mu.Unlock()
		return ErrNotFutureOwner
	}
	st := f.st
	ev := TransferOwnership{OldOwner: st.Owner, NewOwner: caller}
	st.Owner = caller
	if err := f.writeState(st); err != nil {
		f.mu.Unlock()
		return err
	}
	f.st = st
	f.mu.Unlock()

	f.log.Info("Ownership transferred", "old", ev.OldOwner, "new", ev.NewOwner)
	f.transferFeed.Send(ev)
	return nil
}

// SetFallbackReceiver replaces the fallback receiver. Owner only. Deployed
// funders keep their cached copy until they refresh it.
func (f *Factory) SetFallbackReceiver(caller, receiver common.Address) error {
	var ev UpdateFallbackReceiver
	err := f.update(caller, func(st *state) error {
		ev = UpdateFallbackReceiver{OldFallback: st.FallbackReceiver, NewFallback: receiver}
		st.FallbackReceiver = receiver
		return nil
	})
	if err != nil {
		return err
	}
	f.log.Info("Fallback receiver updated", "old", ev.OldFallback, "new", ev.NewFallback)
	f.fallbackFeed.Send(ev)
	return nil
}

// SetImplementation replaces the implementation. Owner only.
func (f *Factory) SetImplementation(caller, implementation common.Address) error {
	var ev UpdateImplementation
	err := f.update(caller, func(st *state) error {
		ev = UpdateImplementation{OldImplementation: st.Implementation, NewImplementation: implementation}
		st.Implementation = implementation
		return nil
	})
	if err != nil {
		return err
	}
	f.log.Info("Implementation updated", "old", ev.OldImplementation, "new", ev.NewImplementation)
	f.implementationFeed.Send(ev)
	return nil
}

// Deploy registers a new funder instance paying receiver, capped at
// maxEmissions per participant (zero means uncapped). Anyone may deploy.
// The instance address is derived from the factory address and its nonce.
func (f *Factory) Deploy(receiver common.Address, maxEmissions *uint256.Int) (FunderRecord, error) {
	f.mu.Lock()
	if f.st.Implementation == (common.Address{}) {
		f.mu.Unlock()
		return FunderRecord{}, ErrNoImplementation
	}

	st := f.st
	rec := FunderRecord{
		Address:        crypto.CreateAddress(st.Address, st.Nonce),
		Receiver:       receiver,
		MaxEmissions:   fixed.Clone(maxEmissions),
		Implementation: st.Implementation,
		CreatedAt:      f.clock(),
		Nonce:          st.Nonce,
	}
	st.Nonce++

	if err := f.writeDeploy(st, rec); err != nil {
		f.mu.Unlock()
		return FunderRecord{}, err
	}
	f.st = st
	f.mu.Unlock()

	f.log.Info("Funder deployed", "funder", rec.Address, "receiver", receiver, "max", fixed.String(rec.MaxEmissions))
	f.newFunderFeed.Send(NewFunder{Funder: rec})
	return rec, nil
}

func (f *Factory) writeDeploy(st state, rec FunderRecord) error {
	stateBytes, err := rlp.EncodeToBytes(&st)
	if err != nil {
		return err
	}
	recBytes, err := rlp.EncodeToBytes(&funderRLP{
		Address:        rec.Address,
		Receiver:       rec.Receiver,
		MaxEmissions:   rec.MaxEmissions.ToBig(),
		Implementation: rec.Implementation,
		CreatedAt:      uint64(rec.CreatedAt),
		Nonce:          rec.Nonce,
	})
	if err != nil {
		return err
	}

	batch := f.db.NewBatch()
	if err := batch.Put(stateKey, stateBytes); err != nil {
		return err
	}
	if err := batch.Put(funderKey(rec.Nonce), recBytes); err != nil {
		return err
	}
	if err := batch.Put(addressKey(rec.Address), bigendian.Uint64ToBytes(rec.Nonce)); err != nil {
		return err
	}
	return batch.Write()
}

// Funders returns every deployed instance in deploy order.
func (f *Factory) Funders() ([]FunderRecord, error) {
	it := f.db.NewIterator(funderPrefix, nil)
	defer it.Release()

	var out []FunderRecord
	for it.Next() {
		rec, err := decodeFunder(it.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, it.Error()
}

// Funder returns the record of the instance at addr.
func (f *Factory) Funder(addr common.Address) (FunderRecord, error) {
	nonce, err := f.db.Get(addressKey(addr))
	if err != nil {
		return FunderRecord{}, err
	}
	if nonce == nil {
		return FunderRecord{}, fmt.Errorf("%w: %s", ErrUnknownFunder, addr.Hex())
	}
	b, err := f.db.Get(funderKey(bigendian.BytesToUint64(nonce)))
	if err != nil {
		return FunderRecord{}, err
	}
	if b == nil {
		return FunderRecord{}, fmt.Errorf("%w: %s", ErrUnknownFunder, addr.Hex())
	}
	return decodeFunder(b)
}

func decodeFunder(b []byte) (FunderRecord, error) {
	var r funderRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return FunderRecord{}, err
	}
	maxEmissions := fixed.Zero()
	if r.MaxEmissions != nil {
		var overflow bool
		if maxEmissions, overflow = uint256.FromBig(r.MaxEmissions); overflow {
			return FunderRecord{}, fixed.ErrOverflow
		}
	}
	return FunderRecord{
		Address:        r.Address,
		Receiver:       r.Receiver,
		MaxEmissions:   maxEmissions,
		Implementation: r.Implementation,
		CreatedAt:      inter.Timestamp(r.CreatedAt),
		Nonce:          r.Nonce,
	}, nil
}

// SubscribeTransferOwnership delivers TransferOwnership events.
func (f *Factory) SubscribeTransferOwnership(ch chan<- TransferOwnership) event.Subscription {
	return f.scope.Track(f.transferFeed.Subscribe(ch))
}

// SubscribeUpdateFallbackReceiver delivers UpdateFallbackReceiver events.
func (f *Factory) SubscribeUpdateFallbackReceiver(ch chan<- UpdateFallbackReceiver) event.Subscription {
	return f.scope.Track(f.fallbackFeed.Subscribe(ch))
}

// SubscribeUpdateImplementation delivers UpdateImplementation events.
func (f *Factory) SubscribeUpdateImplementation(ch chan<- UpdateImplementation) event.Subscription {
	return f.scope.Track(f.implementationFeed.Subscribe(ch))
}

// SubscribeNewFunder delivers NewFunder events.
func (f *Factory) SubscribeNewFunder(ch chan<- NewFunder) event.Subscription {
	return f.scope.Track(f.newFunderFeed.Subscribe(ch))
}

// Close ends all subscriptions.
func (f *Factory) Close() {
	f.scope.Close()
}

func funderKey(nonce uint64) []byte {
	return append(append([]byte{}, funderPrefix...), bigendian.Uint64ToBytes(nonce)...)
}

func addressKey(addr common.Address) []byte {
	return append(append([]byte{}, addressPrefix...), addr.Bytes()...)
}
