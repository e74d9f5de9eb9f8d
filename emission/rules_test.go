package emission

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// TestDefaultConstants verifies the reduction coefficient and the initial
// rate match the production schedule.
func TestDefaultConstants(t *testing.T) {
	require.Equal(t, "1189207115002721024", fixed.String(DefaultDecayFactor))

	// 274815283 * 1e18 / YEAR
	want := fixed.MustParse("274815283000000000000000000")
	want.Div(want, uint256.NewInt(uint64(inter.Year)))
	require.Equal(t, want, DefaultInitialRate)
}

// TestMainNetRules verifies that MainNetRules returns the production schedule.
func TestMainNetRules(t *testing.T) {
	rules := MainNetRules()

	require.Equal(t, MainNetName, rules.Name)
	require.Equal(t, inter.Week, rules.WeekLength)
	require.Equal(t, inter.Year, rules.Epochs.Length)
	require.Equal(t, DefaultDecayFactor, rules.Epochs.DecayFactor)
	require.False(t, rules.Capped())
	require.NoError(t, rules.Validate())
}

// TestFakeNetRules verifies that FakeNetRules returns an accelerated schedule.
func TestFakeNetRules(t *testing.T) {
	rules := FakeNetRules()
	main := MainNetRules()

	require.Equal(t, FakeNetName, rules.Name)
	require.Less(t, uint64(rules.WeekLength), uint64(main.WeekLength))
	require.Less(t, uint64(rules.Epochs.Length), uint64(main.Epochs.Length))
	require.NoError(t, rules.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rules)
	}{
		{"zero week", func(r *Rules) { r.WeekLength = 0 }},
		{"zero epoch", func(r *Rules) { r.Epochs.Length = 0 }},
		{"epoch shorter than week", func(r *Rules) { r.Epochs.Length = r.WeekLength - 1 }},
		{"decay factor of one", func(r *Rules) { r.Epochs.DecayFactor = fixed.Unit() }},
		{"missing decay factor", func(r *Rules) { r.Epochs.DecayFactor = nil }},
		{"missing rate", func(r *Rules) { r.InitialRate = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := MainNetRules()
			tt.mutate(&rules)
			err := rules.Validate()
			require.True(t, errors.Is(err, ErrInvalidRules), "err = %v", err)
		})
	}
}

// TestCopy verifies that Copy does not share big-number state with the original.
func TestCopy(t *testing.T) {
	original := MainNetRules()
	original.MaxEmissions = uint256.NewInt(200)

	cp := original.Copy()
	cp.InitialRate.SetUint64(1)
	cp.Epochs.DecayFactor.SetUint64(1)
	cp.MaxEmissions.SetUint64(1)

	require.Equal(t, DefaultInitialRate, original.InitialRate)
	require.Equal(t, DefaultDecayFactor, original.Epochs.DecayFactor)
	require.Equal(t, uint64(200), original.MaxEmissions.Uint64())
	require.True(t, original.Capped())
}

func TestString(t *testing.T) {
	s := MainNetRules().String()
	require.Contains(t, s, "name=main")
	require.Contains(t, s, "max=uncapped")
}
