// Package genesis defines the inception parameters of a funder instance and
// turns them into the initial ledger state.
//
// Key concepts:
//   - Rules: the emission parameters (week length, epochs, initial rate, cap)
//   - Time: the instant the instance starts accounting; new participants begin here
//   - FutureEpochTime: the first instant at which the global rate decays
//
// Usage:
//
//	g := genesis.New(emission.MainNetRules(), inter.Now())
//	if err := g.Validate(); err != nil { ... }
//	schedule := g.Schedule()
package genesis

import (
	"errors"
	"fmt"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/inter/istate"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	// ErrInvalidEpoch is returned when the first decay instant precedes inception.
	ErrInvalidEpoch = errors.New("genesis: first epoch precedes inception")
	// ErrInvalidRules wraps a rules validation failure.
	ErrInvalidRules = errors.New("genesis: invalid rules")
)

// Genesis is the complete inception definition of a funder instance.
type Genesis struct {
	Rules emission.Rules

	// Time is the inception instant. It is also the last checkpoint of every
	// participant that has never checkpointed.
	Time inter.Timestamp

	// FutureEpochTime is the first decay instant. It must not precede Time.
	FutureEpochTime inter.Timestamp
}

// New returns a genesis starting at t whose first decay happens one epoch later.
func New(rules emission.Rules, t inter.Timestamp) Genesis {
	return Genesis{
		Rules:           rules,
		Time:            t,
		FutureEpochTime: t + rules.Epochs.Length,
	}
}

// Validate checks the genesis can seed a ledger.
func (g Genesis) Validate() error {
	if err := g.Rules.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}
	if g.FutureEpochTime < g.Time {
		return fmt.Errorf("%w: epoch %d, inception %d", ErrInvalidEpoch, g.FutureEpochTime, g.Time)
	}
	return nil
}

// Schedule returns the rate schedule in force at inception.
func (g Genesis) Schedule() istate.RateSchedule {
	return istate.RateSchedule{
		Rate:            fixed.Clone(g.Rules.InitialRate),
		FutureEpochTime: g.FutureEpochTime,
		DecayFactor:     fixed.Clone(g.Rules.Epochs.DecayFactor),
		EpochLength:     g.Rules.Epochs.Length,
	}
}

// FirstEpoch returns the first entry of the decay history.
func (g Genesis) FirstEpoch() istate.RateEpoch {
	return istate.RateEpoch{
		Start:           g.Time,
		Rate:            fixed.Clone(g.Rules.InitialRate),
		FutureEpochTime: g.FutureEpochTime,
	}
}

func (g Genesis) String() string {
	return fmt.Sprintf("{time=%d epoch=%d rules=%s}", uint64(g.Time), uint64(g.FutureEpochTime), g.Rules.String())
}
