package istate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

func testSchedule() RateSchedule {
	return RateSchedule{
		Rate:            fixed.MustParse("8714335457889396245"),
		FutureEpochTime: inter.Year,
		DecayFactor:     fixed.MustParse("1189207115002721024"),
		EpochLength:     inter.Year,
	}
}

func TestRateScheduleDecay(t *testing.T) {
	s := testSchedule()
	before := fixed.Clone(s.Rate)

	require.NoError(t, s.Decay())

	want, err := fixed.Decay(before, s.DecayFactor)
	require.NoError(t, err)
	require.Equal(t, want, s.Rate)
	require.Equal(t, 2*inter.Year, s.FutureEpochTime)
	require.True(t, s.Rate.Lt(before))
}

// TestRateScheduleCopy ensures decaying a copy leaves the original untouched.
func TestRateScheduleCopy(t *testing.T) {
	s := testSchedule()
	cp := s.Copy()
	require.NoError(t, cp.Decay())
	cp.DecayFactor.SetUint64(2)

	require.Equal(t, testSchedule(), s)
	require.NotEqual(t, s.Hash(), cp.Hash())
}

func TestEpochSchedule(t *testing.T) {
	s := testSchedule()
	epoch := RateEpoch{Start: 0, Rate: s.Rate, FutureEpochTime: s.FutureEpochTime}

	rebuilt := epoch.Schedule(s.DecayFactor, s.EpochLength)
	require.Equal(t, s, rebuilt)

	rebuilt.Rate.SetUint64(1)
	require.Equal(t, testSchedule().Rate, epoch.Rate, "Schedule must not alias the epoch rate")
}

func TestAccountStateCopy(t *testing.T) {
	a := NewAccountState(inter.Week)
	require.Equal(t, inter.Week, a.LastCheckpoint)
	require.True(t, a.IntegratedEntitlement.IsZero())

	cp := a.Copy()
	cp.IntegratedEntitlement.SetUint64(5)
	require.True(t, a.IntegratedEntitlement.IsZero())
	require.NotEqual(t, a.Hash(), cp.Hash())
}

func TestGateEffectiveRate(t *testing.T) {
	rate := uint256.NewInt(10)

	live := Gate{}
	require.Equal(t, rate, live.EffectiveRate(rate, 1_000_000))

	killed := Gate{Killed: true, KilledAt: 500}
	require.Equal(t, rate, killed.EffectiveRate(rate, 499), "segments before the kill keep the rate")
	require.True(t, killed.EffectiveRate(rate, 500).IsZero())
	require.True(t, killed.EffectiveRate(rate, 501).IsZero())
}

// TestBinaryEncoding checks the persisted forms decode to identical state.
func TestBinaryEncoding(t *testing.T) {
	require := require.New(t)

	s := testSchedule()
	b, err := s.MarshalBinary()
	require.NoError(err)
	var s2 RateSchedule
	require.NoError(s2.UnmarshalBinary(b))
	require.Equal(s, s2)

	e := RateEpoch{Start: inter.Year, Rate: uint256.NewInt(7), FutureEpochTime: 2 * inter.Year}
	b, err = e.MarshalBinary()
	require.NoError(err)
	var e2 RateEpoch
	require.NoError(e2.UnmarshalBinary(b))
	require.Equal(e, e2)

	a := AccountState{LastCheckpoint: 42, IntegratedEntitlement: new(uint256.Int).SetAllOne()}
	b, err = a.MarshalBinary()
	require.NoError(err)
	var a2 AccountState
	require.NoError(a2.UnmarshalBinary(b))
	require.Equal(a, a2)

	g := Gate{Killed: true, KilledAt: 9, CachedReceiver: common.HexToAddress("0xb0b")}
	b, err = g.MarshalBinary()
	require.NoError(err)
	var g2 Gate
	require.NoError(g2.UnmarshalBinary(b))
	require.Equal(g, g2)

	require.Error(a2.UnmarshalBinary([]byte{0xff}))
}
