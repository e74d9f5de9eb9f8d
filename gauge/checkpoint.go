package gauge

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/inter/istate"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// walker integrates one participant's entitlement over a time range, one
// calendar week at a time. It reads shared state but never mutates it.
type walker struct {
	weekLength  inter.Timestamp
	decayFactor *uint256.Int
	epochLength inter.Timestamp

	// history is the decay history ordered by Start.
	history []istate.RateEpoch
	gate    istate.Gate
	oracle  WeightOracle
}

// walkResult is the outcome of a walk.
type walkResult struct {
	accrued *uint256.Int
	// schedule is the schedule in force at the end of the walk.
	schedule istate.RateSchedule
	// decays lists every reduction applied during the walk, in order.
	decays []istate.RateEpoch
}

// scheduleAt returns the schedule that was in force at t.
func (w *walker) scheduleAt(t inter.Timestamp) istate.RateSchedule {
	i := sort.Search(len(w.history), func(i int) bool {
		return w.history[i].Start > t
	})
	if i > 0 {
		i--
	}
	return w.history[i].Schedule(w.decayFactor, w.epochLength)
}

// run walks [from, to). Each segment ends at the next week boundary, at to,
// or at the kill instant, whichever comes first. A segment containing the
// decay instant is split in two around it.
func (w *walker) run(participant common.Address, from, to inter.Timestamp) (walkResult, error) {
	schedule := w.scheduleAt(from)
	res := walkResult{accrued: fixed.Zero()}

	for prev := from; prev < to; {
		boundary := inter.MinTimestamp(inter.NextWeek(prev, w.weekLength), to)
		if w.gate.Killed && prev < w.gate.KilledAt && w.gate.KilledAt < boundary {
			boundary = w.gate.KilledAt
		}

		weight, err := w.weight(participant, prev)
		if err != nil {
			return walkResult{}, err
		}

		if epoch := schedule.FutureEpochTime; prev <= epoch && epoch < boundary {
			if res.accrued, err = w.accrue(res.accrued, weight, schedule.Rate, prev, epoch-prev); err != nil {
				return walkResult{}, err
			}
			if err := schedule.Decay(); err != nil {
				return walkResult{}, err
			}
			res.decays = append(res.decays, istate.RateEpoch{
				Start:           epoch,
				Rate:            fixed.Clone(schedule.Rate),
				FutureEpochTime: schedule.FutureEpochTime,
			})
			if res.accrued, err = w.accrue(res.accrued, weight, schedule.Rate, prev, boundary-epoch); err != nil {
				return walkResult{}, err
			}
		} else {
			if res.accrued, err = w.accrue(res.accrued, weight, schedule.Rate, prev, boundary-prev); err != nil {
				return walkResult{}, err
			}
		}

		prev = boundary
	}

	res.schedule = schedule
	return res, nil
}

func (w *walker) weight(participant common.Address, t inter.Timestamp) (*uint256.Int, error) {
	weight, err := w.oracle.RelativeWeight(participant, t)
	if err != nil {
		return nil, fmt.Errorf("weight of %s at %d: %w", participant.Hex(), uint64(t), err)
	}
	if weight == nil {
		return nil, fmt.Errorf("%w: no weight for %s at %d", ErrStaleWeight, participant.Hex(), uint64(t))
	}
	if weight.Gt(fixed.Unit()) {
		return nil, fmt.Errorf("%w: %s at %d", ErrWeightRange, fixed.String(weight), uint64(t))
	}
	return weight, nil
}

// accrue adds weight*rate*dt/1e18 to total. The rate is gated by the kill
// switch according to the segment start.
func (w *walker) accrue(total, weight, rate *uint256.Int, segmentStart, dt inter.Timestamp) (*uint256.Int, error) {
	part, err := fixed.Accrue(weight, w.gate.EffectiveRate(rate, segmentStart), uint64(dt))
	if err != nil {
		return nil, err
	}
	return fixed.Add(total, part)
}
