// Package oracle provides relative weight sources for funding gauges.
//
// Constant reports the same share for everyone and is used for simulations.
// Table stores one sample per participant per week in a key-value store and
// refuses to guess: a registered participant with a missing past week is an
// error, never a silent zero. Weeks that have started are frozen: samples are
// written once, and never for a week before the current one.
package oracle

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/kvdb"
	"github.com/Fantom-foundation/lachesis-base/kvdb/table"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// Constant reports the same weight for every participant and week.
type Constant struct {
	Weight *uint256.Int
}

// NewConstant returns an oracle reporting w.
func NewConstant(w *uint256.Int) Constant {
	return Constant{Weight: fixed.Clone(w)}
}

// RelativeWeight implements gauge.WeightOracle.
func (c Constant) RelativeWeight(common.Address, inter.Timestamp) (*uint256.Int, error) {
	return fixed.Clone(c.Weight), nil
}

var (
	// ErrPastWeek is returned when writing a week that has already ended.
	ErrPastWeek = errors.New("oracle: week already elapsed")
	// ErrSampleExists is returned when a week already has a sample.
	ErrSampleExists = errors.New("oracle: weight already set for week")
)

var (
	registrationPrefix = []byte("r")
	samplePrefix       = []byte("w")
)

// Table is a persisted per-week weight table.
type Table struct {
	db         kvdb.Store
	weekLength inter.Timestamp
	clock      gauge.Clock

	mu  sync.RWMutex
	log log.Logger
}

// NewTable namespaces the table inside db. Samples are keyed by the start of
// the week, weeks being weekLength long. clock defaults to inter.Now.
func NewTable(db kvdb.Store, weekLength inter.Timestamp, clock gauge.Clock) *Table {
	if clock == nil {
		clock = inter.Now
	}
	return &Table{
		db:         table.New(db, []byte("o")),
		weekLength: weekLength,
		clock:      clock,
		log:        log.New("module", "oracle"),
	}
}

// Register marks participant as weighted from the week containing from.
// Earlier weeks read as zero. Registering again moves the start only
// backwards, and never before the current week.
func (t *Table) Register(participant common.Address, from inter.Timestamp) error {
	week := inter.WeekStart(from, t.weekLength)
	if err := t.checkOpen(week); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.register(participant, week)
}

// checkOpen rejects weeks that ended before the current one began.
func (t *Table) checkOpen(week inter.Timestamp) error {
	if current := inter.WeekStart(t.clock(), t.weekLength); week < current {
		return fmt.Errorf("%w: week %d, current %d", ErrPastWeek, uint64(week), uint64(current))
	}
	return nil
}

func (t *Table) register(participant common.Address, week inter.Timestamp) error {
	start, ok, err := t.registeredFrom(participant)
	if err != nil {
		return err
	}
	if ok && start <= week {
		return nil
	}
	return t.db.Put(registrationKey(participant), bigendian.Uint64ToBytes(uint64(week)))
}

// Set stores the weight of participant for the week containing at,
// registering the participant if needed. Each week is written once.
func (t *Table) Set(participant common.Address, at inter.Timestamp, weight *uint256.Int) error {
	if weight.Gt(fixed.Unit()) {
		return fmt.Errorf("%w: %s", gauge.ErrWeightRange, fixed.String(weight))
	}
	week := inter.WeekStart(at, t.weekLength)
	if err := t.checkOpen(week); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := sampleKey(participant, week)
	exists, err := t.db.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s week %d", ErrSampleExists, participant.Hex(), uint64(week))
	}
	if err := t.register(participant, week); err != nil {
		return err
	}
	b := weight.Bytes32()
	if err := t.db.Put(key, b[:]); err != nil {
		return err
	}
	t.log.Debug("Weight set", "participant", participant, "week", week, "weight", fixed.String(weight))
	return nil
}

// RelativeWeight implements gauge.WeightOracle. Unregistered participants and
// weeks before registration weigh zero; a missing sample afterwards is
// gauge.ErrStaleWeight.
func (t *Table) RelativeWeight(participant common.Address, at inter.Timestamp) (*uint256.Int, error) {
	week := inter.WeekStart(at, t.weekLength)

	t.mu.RLock()
	defer t.mu.RUnlock()

	start, ok, err := t.registeredFrom(participant)
	if err != nil {
		return nil, err
	}
	if !ok || week < start {
		return fixed.Zero(), nil
	}
	b, err := t.db.Get(sampleKey(participant, week))
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("%w: %s week %d", gauge.ErrStaleWeight, participant.Hex(), uint64(week))
	}
	return new(uint256.Int).SetBytes(b), nil
}

func (t *Table) registeredFrom(participant common.Address) (inter.Timestamp, bool, error) {
	b, err := t.db.Get(registrationKey(participant))
	if err != nil {
		return 0, false, err
	}
	if b == nil {
		return 0, false, nil
	}
	return inter.Timestamp(bigendian.BytesToUint64(b)), true, nil
}

func registrationKey(participant common.Address) []byte {
	return append(append([]byte{}, registrationPrefix...), participant.Bytes()...)
}

func sampleKey(participant common.Address, week inter.Timestamp) []byte {
	key := append(append([]byte{}, samplePrefix...), participant.Bytes()...)
	return append(key, bigendian.Uint64ToBytes(uint64(week))...)
}
