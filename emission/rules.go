// Package emission defines the emission rules a funding gauge is configured with.
//
// This package provides:
//   - Calendar granularity (week length) used to sample relative weights
//   - Epoch rules: how often the global rate steps down and by how much
//   - The initial global rate and an optional per-instance emission cap
//   - Presets for the production schedule (MainNet) and an accelerated one (FakeNet)
//
// The Rules type is the single source of emission parameters; the genesis
// package turns it into the initial ledger state.
package emission

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	// ErrInvalidRules is returned by Validate for unusable parameters.
	ErrInvalidRules = errors.New("invalid emission rules")
)

// Network preset names.
const (
	MainNetName = "main"
	FakeNetName = "fake"
)

var (
	// DefaultDecayFactor is the per-epoch rate reduction coefficient, 2^(1/4) scaled by 1e18.
	DefaultDecayFactor = fixed.MustParse("1189207115002721024")

	// DefaultInitialRate is 274815283 tokens per year expressed per second (1e18 scale).
	DefaultInitialRate = fixed.MustParse("8714335457889396245")
)

// EpochsRules defines the decay schedule of the global rate.
type EpochsRules struct {
	// Length is the time between two consecutive rate reductions.
	Length inter.Timestamp

	// DecayFactor divides the rate at each epoch boundary (1e18 scale, > 1e18).
	DecayFactor *uint256.Int
}

// Rules describes the complete emission configuration of a funder instance.
type Rules struct {
	Name string

	// WeekLength is the accounting granularity; weights are constant within one week.
	WeekLength inter.Timestamp

	Epochs EpochsRules

	// InitialRate is the global emission rate per second at genesis (1e18 scale).
	InitialRate *uint256.Int

	// MaxEmissions caps the integrated entitlement of each participant.
	// nil or zero means uncapped.
	MaxEmissions *uint256.Int
}

// MainNetRules returns the production schedule: one-week granularity, yearly
// epochs and the default decay factor.
func MainNetRules() Rules {
	return Rules{
		Name:        MainNetName,
		WeekLength:  inter.Week,
		Epochs:      DefaultEpochsRules(),
		InitialRate: fixed.Clone(DefaultInitialRate),
	}
}

// FakeNetRules returns an accelerated schedule for local development:
//   - one-hour weeks
//   - one-day epochs
//   - same decay factor and initial rate as mainnet
func FakeNetRules() Rules {
	return Rules{
		Name:       FakeNetName,
		WeekLength: inter.Timestamp(3600),
		Epochs: EpochsRules{
			Length:      inter.Day,
			DecayFactor: fixed.Clone(DefaultDecayFactor),
		},
		InitialRate: fixed.Clone(DefaultInitialRate),
	}
}

// DefaultEpochsRules returns yearly epochs with the default decay factor.
func DefaultEpochsRules() EpochsRules {
	return EpochsRules{
		Length:      inter.Year,
		DecayFactor: fixed.Clone(DefaultDecayFactor),
	}
}

// Capped reports whether a per-participant emission cap is configured.
func (r Rules) Capped() bool {
	return r.MaxEmissions != nil && !r.MaxEmissions.IsZero()
}

// Validate checks the rules are usable by the checkpoint engine.
func (r Rules) Validate() error {
	if r.WeekLength == 0 {
		return fmt.Errorf("%w: zero week length", ErrInvalidRules)
	}
	if r.Epochs.Length == 0 {
		return fmt.Errorf("%w: zero epoch length", ErrInvalidRules)
	}
	// at most one decay per week segment
	if r.Epochs.Length < r.WeekLength {
		return fmt.Errorf("%w: epoch shorter than a week", ErrInvalidRules)
	}
	if r.Epochs.DecayFactor == nil || !r.Epochs.DecayFactor.Gt(fixed.Unit()) {
		return fmt.Errorf("%w: decay factor must exceed 1e18", ErrInvalidRules)
	}
	if r.InitialRate == nil {
		return fmt.Errorf("%w: missing initial rate", ErrInvalidRules)
	}
	return nil
}

// Copy creates a deep copy of Rules; the *uint256.Int fields are not shared.
func (r Rules) Copy() Rules {
	cp := r
	cp.Epochs.DecayFactor = fixed.Clone(r.Epochs.DecayFactor)
	cp.InitialRate = fixed.Clone(r.InitialRate)
	if r.MaxEmissions != nil {
		cp.MaxEmissions = fixed.Clone(r.MaxEmissions)
	}
	return cp
}

// String returns a one-line description of the rules for logs.
func (r Rules) String() string {
	maxEmissions := "uncapped"
	if r.Capped() {
		maxEmissions = fixed.String(r.MaxEmissions)
	}
	return fmt.Sprintf("{name=%s week=%ds epoch=%ds decay=%s rate=%s max=%s}",
		r.Name, uint64(r.WeekLength), uint64(r.Epochs.Length),
		fixed.String(r.Epochs.DecayFactor), fixed.String(r.InitialRate), maxEmissions)
}
