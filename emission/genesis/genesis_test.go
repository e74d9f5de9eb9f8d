package genesis

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/inter"
)

func TestNew(t *testing.T) {
	g := New(emission.MainNetRules(), 1000)

	require.Equal(t, inter.Timestamp(1000), g.Time)
	require.Equal(t, 1000+inter.Year, g.FutureEpochTime)
	require.NoError(t, g.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(g *Genesis)
		wantErr error
	}{
		{"epoch at inception", func(g *Genesis) { g.FutureEpochTime = g.Time }, nil},
		{"epoch before inception", func(g *Genesis) { g.FutureEpochTime = g.Time - 1 }, ErrInvalidEpoch},
		{"bad rules", func(g *Genesis) { g.Rules.WeekLength = 0 }, ErrInvalidRules},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(emission.MainNetRules(), inter.Week)
			tt.mutate(&g)
			err := g.Validate()
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
		})
	}
}

func TestScheduleAndFirstEpoch(t *testing.T) {
	g := Genesis{Rules: emission.MainNetRules(), Time: 0, FutureEpochTime: inter.Year}

	s := g.Schedule()
	require.Equal(t, emission.DefaultInitialRate, s.Rate)
	require.Equal(t, emission.DefaultDecayFactor, s.DecayFactor)
	require.Equal(t, inter.Year, s.FutureEpochTime)
	require.Equal(t, inter.Year, s.EpochLength)

	// the initial state must not alias the rules
	s.Rate.SetUint64(1)
	require.Equal(t, emission.DefaultInitialRate, g.Rules.InitialRate)

	e := g.FirstEpoch()
	require.Equal(t, inter.Timestamp(0), e.Start)
	require.Equal(t, g.Schedule(), e.Schedule(s.DecayFactor, s.EpochLength))
}
