// Package gauge implements the checkpoint and emission accounting engine of a
// funding gauge.
//
// A Funder owns the shared rate schedule, the kill gate, the cached receiver
// and the per-participant accounts of one instance. Every mutation happens
// under a single lock and is committed to the ledger in one batch before the
// in-memory view changes, so a failed call leaves no trace.
//
// Key concepts:
//   - Checkpoint: bring a participant's integrated entitlement up to a given instant
//   - Decay history: the schedule in force at any past instant, so lagging
//     participants are accounted with the rate of their own weeks
//   - Kill gate: zero effective rate from the kill instant onwards, stored rate untouched
//   - Cached receiver: a stale copy of the registry value, refreshed on request only
package gauge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/emission/genesis"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/inter/istate"
	"github.com/rony4d/go-gauge-funder/ledger"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var errIncompleteConfig = errors.New("gauge: store, oracle, admin and receivers are required")

// Config wires a Funder to its collaborators.
type Config struct {
	// Address identifies the instance in logs and events.
	Address common.Address
	Genesis genesis.Genesis
	Store   *ledger.Store

	Oracle    WeightOracle
	Admin     Admin
	Receivers ReceiverSource

	// Clock defaults to inter.Now.
	Clock Clock
}

// CheckpointEvent is posted after every committed checkpoint.
type CheckpointEvent struct {
	Funder      common.Address
	Participant common.Address
	Time        inter.Timestamp
	Delta       *uint256.Int
	Total       *uint256.Int
	// Rate is the stored schedule rate after the checkpoint.
	Rate *uint256.Int
}

// Funder is one funding gauge instance.
type Funder struct {
	addr    common.Address
	genesis genesis.Genesis
	store   *ledger.Store

	oracle    WeightOracle
	admin     Admin
	receivers ReceiverSource
	clock     Clock

	mu       sync.RWMutex
	schedule istate.RateSchedule
	history  []istate.RateEpoch
	gate     istate.Gate

	checkpointFeed event.Feed
	scope          event.SubscriptionScope

	log log.Logger
}

// New opens the funder stored in cfg.Store, seeding it from cfg.Genesis on
// first use. The cached receiver starts as the registry's current value.
func New(cfg Config) (*Funder, error) {
	if cfg.Store == nil || cfg.Oracle == nil || cfg.Admin == nil || cfg.Receivers == nil {
		return nil, errIncompleteConfig
	}
	f := &Funder{
		addr:      cfg.Address,
		genesis:   cfg.Genesis,
		store:     cfg.Store,
		oracle:    cfg.Oracle,
		admin:     cfg.Admin,
		receivers: cfg.Receivers,
		clock:     cfg.Clock,
		log:       log.New("module", "gauge", "funder", cfg.Address),
	}
	if f.clock == nil {
		f.clock = inter.Now
	}

	ok, err := f.store.Initialized()
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := f.store.Init(cfg.Genesis, cfg.Receivers.FallbackReceiver()); err != nil {
			return nil, err
		}
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Funder) load() error {
	schedule, err := f.store.GetSchedule()
	if err != nil {
		return err
	}
	history, err := f.store.Epochs()
	if err != nil {
		return err
	}
	gate, err := f.store.GetGate()
	if err != nil {
		return err
	}
	f.schedule, f.history, f.gate = schedule, history, gate
	f.log.Debug("Funder loaded", "schedule", schedule, "epochs", len(history), "killed", gate.Killed)
	return nil
}

// Address returns the instance address.
func (f *Funder) Address() common.Address {
	return f.addr
}

// Rules returns the emission rules the instance was created with.
func (f *Funder) Rules() emission.Rules {
	return f.genesis.Rules.Copy()
}

// UserCheckpoint brings participant up to the current clock and returns the
// newly accrued entitlement.
func (f *Funder) UserCheckpoint(participant common.Address) (*uint256.Int, error) {
	return f.CheckpointAt(participant, f.clock())
}

// CheckpointAt brings participant up to now and returns the newly accrued
// entitlement. It fails without side effects on overflow, oracle failure,
// an out-of-order now, or a now ahead of the clock.
func (f *Funder) CheckpointAt(participant common.Address, now inter.Timestamp) (*uint256.Int, error) {
	ev, err := f.checkpoint(participant, now)
	if err != nil {
		return nil, err
	}
	if !ev.Delta.IsZero() {
		f.checkpointFeed.Send(ev)
	}
	return fixed.Clone(ev.Delta), nil
}

func (f *Funder) checkpoint(participant common.Address, now inter.Timestamp) (CheckpointEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	acc, err := f.account(participant)
	if err != nil {
		return CheckpointEvent{}, err
	}
	if now < acc.LastCheckpoint {
		return CheckpointEvent{}, fmt.Errorf("%w: %d < %d", ErrOutOfOrder, uint64(now), uint64(acc.LastCheckpoint))
	}
	if clock := f.clock(); now > clock {
		return CheckpointEvent{}, fmt.Errorf("%w: %d > %d", ErrFutureCheckpoint, uint64(now), uint64(clock))
	}

	w := walker{
		weekLength:  f.genesis.Rules.WeekLength,
		decayFactor: f.schedule.DecayFactor,
		epochLength: f.schedule.EpochLength,
		history:     f.history,
		gate:        f.gate,
		oracle:      f.oracle,
	}
	res, err := w.run(participant, acc.LastCheckpoint, now)
	if err != nil {
		return CheckpointEvent{}, err
	}

	total, err := fixed.Add(acc.IntegratedEntitlement, res.accrued)
	if err != nil {
		return CheckpointEvent{}, err
	}
	if f.genesis.Rules.Capped() {
		total = fixed.Clone(fixed.Min(total, f.genesis.Rules.MaxEmissions))
		if total.Lt(acc.IntegratedEntitlement) {
			total = fixed.Clone(acc.IntegratedEntitlement)
		}
	}
	delta := new(uint256.Int).Sub(total, acc.IntegratedEntitlement)

	// The head only moves forward; decays at or past it are new history.
	head := f.schedule
	var added []istate.RateEpoch
	if res.schedule.FutureEpochTime > head.FutureEpochTime {
		head = res.schedule
		for _, d := range res.decays {
			if d.Start >= f.schedule.FutureEpochTime {
				added = append(added, d)
			}
		}
	}

	batch := f.store.NewBatch()
	next := istate.AccountState{LastCheckpoint: now, IntegratedEntitlement: total}
	if err := batch.SetAccount(participant, next); err != nil {
		return CheckpointEvent{}, err
	}
	if len(added) != 0 {
		if err := batch.SetSchedule(head); err != nil {
			return CheckpointEvent{}, err
		}
		for _, e := range added {
			if err := batch.AddEpoch(e); err != nil {
				return CheckpointEvent{}, err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return CheckpointEvent{}, err
	}

	if len(added) != 0 {
		f.schedule = head
		f.history = append(f.history, added...)
		f.log.Info("Emission rate decayed", "rate", fixed.String(head.Rate), "next", head.FutureEpochTime, "decays", len(added))
	}
	f.log.Debug("Checkpoint", "participant", participant, "from", acc.LastCheckpoint, "to", now,
		"delta", fixed.String(delta), "total", fixed.String(total))

	return CheckpointEvent{
		Funder:      f.addr,
		Participant: participant,
		Time:        now,
		Delta:       delta,
		Total:       fixed.Clone(total),
		Rate:        fixed.Clone(f.schedule.Rate),
	}, nil
}

// account returns the stored state of participant, or the genesis state for
// a participant that never checkpointed. Callers hold f.mu.
func (f *Funder) account(participant common.Address) (istate.AccountState, error) {
	acc, ok, err := f.store.GetAccount(participant)
	if err != nil {
		return istate.AccountState{}, err
	}
	if !ok {
		return istate.NewAccountState(f.genesis.Time), nil
	}
	return acc, nil
}

// Account returns a snapshot of participant's accounting state.
func (f *Funder) Account(participant common.Address) (istate.AccountState, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.account(participant)
}

// Participants lists everyone that has checkpointed at least once.
func (f *Funder) Participants() ([]common.Address, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []common.Address
	err := f.store.ForEachAccount(func(addr common.Address, _ istate.AccountState) error {
		out = append(out, addr)
		return nil
	})
	return out, err
}

// IntegratedEntitlement returns the cumulative entitlement of participant as
// of its last checkpoint.
func (f *Funder) IntegratedEntitlement(participant common.Address) (*uint256.Int, error) {
	acc, err := f.Account(participant)
	if err != nil {
		return nil, err
	}
	return acc.IntegratedEntitlement, nil
}

// LastCheckpoint returns the instant through which participant is accounted.
func (f *Funder) LastCheckpoint(participant common.Address) (inter.Timestamp, error) {
	acc, err := f.Account(participant)
	if err != nil {
		return 0, err
	}
	return acc.LastCheckpoint, nil
}

// EffectiveRate returns the stored rate, or zero once killed.
func (f *Funder) EffectiveRate() *uint256.Int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.gate.Killed {
		return fixed.Zero()
	}
	return fixed.Clone(f.schedule.Rate)
}

// InflationRate is EffectiveRate under its historical name.
func (f *Funder) InflationRate() *uint256.Int {
	return f.EffectiveRate()
}

// Schedule returns a copy of the schedule head.
func (f *Funder) Schedule() istate.RateSchedule {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.schedule.Copy()
}

// FutureEpochTime returns the next decay instant of the schedule head.
func (f *Funder) FutureEpochTime() inter.Timestamp {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.schedule.FutureEpochTime
}

// History returns a copy of the decay history.
func (f *Funder) History() []istate.RateEpoch {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]istate.RateEpoch, len(f.history))
	for i, e := range f.history {
		out[i] = e.Copy()
	}
	return out
}

// IsKilled reports whether the kill switch is set.
func (f *Funder) IsKilled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.gate.Killed
}

// Gate returns the kill state and cached receiver.
func (f *Funder) Gate() istate.Gate {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.gate
}

// SetKilled flips the kill switch on behalf of caller. Killing is owner-only
// and one-way; killing twice keeps the first kill instant.
func (f *Funder) SetKilled(caller common.Address, killed bool) error {
	if !f.admin.IsOwner(caller) {
		return ErrUnauthorized
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !killed {
		if f.gate.Killed {
			return ErrUnkillUnsupported
		}
		return nil
	}
	if f.gate.Killed {
		return nil
	}

	gate := f.gate
	gate.Killed = true
	gate.KilledAt = f.clock()
	if err := f.writeGate(gate); err != nil {
		return err
	}
	f.log.Warn("Funder killed", "by", caller, "at", gate.KilledAt)
	return nil
}

// CachedReceiver returns the receiver snapshot, which may lag the registry.
func (f *Funder) CachedReceiver() common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.gate.CachedReceiver
}

// UpdateCachedReceiver copies the registry's current fallback receiver into
// the cache and returns it.
func (f *Funder) UpdateCachedReceiver() (common.Address, error) {
	receiver := f.receivers.FallbackReceiver()

	f.mu.Lock()
	defer f.mu.Unlock()

	if receiver == f.gate.CachedReceiver {
		return receiver, nil
	}
	gate := f.gate
	gate.CachedReceiver = receiver
	if err := f.writeGate(gate); err != nil {
		return common.Address{}, err
	}
	f.log.Info("Cached receiver updated", "receiver", receiver)
	return receiver, nil
}

// writeGate persists gate and then publishes it in memory. Callers hold f.mu.
func (f *Funder) writeGate(gate istate.Gate) error {
	batch := f.store.NewBatch()
	if err := batch.SetGate(gate); err != nil {
		return err
	}
	if err := batch.Write(); err != nil {
		return err
	}
	f.gate = gate
	return nil
}

// SubscribeCheckpoints delivers every checkpoint that accrued a non-zero delta.
func (f *Funder) SubscribeCheckpoints(ch chan<- CheckpointEvent) event.Subscription {
	return f.scope.Track(f.checkpointFeed.Subscribe(ch))
}

// Close ends all subscriptions.
func (f *Funder) Close() {
	f.scope.Close()
}
