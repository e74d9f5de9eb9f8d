package oracle

import (
	"errors"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func fixedClock(t inter.Timestamp) gauge.Clock {
	return func() inter.Timestamp { return t }
}

var (
	_ gauge.WeightOracle = Constant{}
	_ gauge.WeightOracle = (*Table)(nil)
)

func TestConstant(t *testing.T) {
	w := fixed.MustParse("300000000000000000")
	c := NewConstant(w)

	got, err := c.RelativeWeight(alice, 12345)
	require.NoError(t, err)
	require.Equal(t, w, got)

	got.SetUint64(1)
	again, _ := c.RelativeWeight(bob, 0)
	require.Equal(t, w, again)
}

func TestTable(t *testing.T) {
	tbl := NewTable(memorydb.New(), inter.Week, fixedClock(0))
	half := fixed.MustParse("500000000000000000")

	require.NoError(t, tbl.Set(alice, 2*inter.Week+100, half))
	require.NoError(t, tbl.Set(alice, 3*inter.Week, fixed.Unit()))

	tests := []struct {
		name    string
		who     common.Address
		at      inter.Timestamp
		want    *uint256.Int
		wantErr error
	}{
		{"unregistered", bob, 2 * inter.Week, fixed.Zero(), nil},
		{"before registration", alice, inter.Week, fixed.Zero(), nil},
		{"week start", alice, 2 * inter.Week, half, nil},
		{"inside week", alice, 3*inter.Week - 1, half, nil},
		{"next week", alice, 3 * inter.Week, fixed.Unit(), nil},
		{"missing week", alice, 4 * inter.Week, nil, gauge.ErrStaleWeight},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.RelativeWeight(tt.who, tt.at)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestTableRegister(t *testing.T) {
	tbl := NewTable(memorydb.New(), inter.Week, fixedClock(0))

	require.NoError(t, tbl.Register(bob, inter.Week+5))
	_, err := tbl.RelativeWeight(bob, inter.Week)
	require.True(t, errors.Is(err, gauge.ErrStaleWeight))

	// a later sample does not move the registration forward
	require.NoError(t, tbl.Set(bob, 5*inter.Week, fixed.Unit()))
	_, err = tbl.RelativeWeight(bob, 2*inter.Week)
	require.True(t, errors.Is(err, gauge.ErrStaleWeight))

	// registering earlier does
	require.NoError(t, tbl.Register(bob, 0))
	_, err = tbl.RelativeWeight(bob, 0)
	require.True(t, errors.Is(err, gauge.ErrStaleWeight))
}

func TestTableRejectsOversizedWeight(t *testing.T) {
	tbl := NewTable(memorydb.New(), inter.Week, fixedClock(0))
	err := tbl.Set(alice, 0, new(uint256.Int).AddUint64(fixed.Unit(), 1))
	require.True(t, errors.Is(err, gauge.ErrWeightRange))

	got, err := tbl.RelativeWeight(alice, 0)
	require.NoError(t, err)
	require.True(t, got.IsZero())
}

func TestTableFreezesElapsedWeeks(t *testing.T) {
	now := 2*inter.Week + inter.Day
	tbl := NewTable(memorydb.New(), inter.Week, func() inter.Timestamp { return now })
	half := fixed.MustParse("500000000000000000")

	require.NoError(t, tbl.Set(alice, 2*inter.Week, half))
	require.NoError(t, tbl.Set(alice, 3*inter.Week, fixed.Unit()))

	tests := []struct {
		name    string
		write   func() error
		wantErr error
	}{
		{"back-fill elapsed week", func() error { return tbl.Set(alice, inter.Week, half) }, ErrPastWeek},
		{"register before current week", func() error { return tbl.Register(alice, 0) }, ErrPastWeek},
		{"register newcomer in the past", func() error { return tbl.Register(bob, inter.Week) }, ErrPastWeek},
		{"overwrite current week", func() error { return tbl.Set(alice, 2*inter.Week+5, fixed.Unit()) }, ErrSampleExists},
		{"overwrite future week", func() error { return tbl.Set(alice, 3*inter.Week, half) }, ErrSampleExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.write()
			require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
		})
	}

	// nothing above changed what was already readable
	got, err := tbl.RelativeWeight(alice, inter.Week)
	require.NoError(t, err)
	require.True(t, got.IsZero())
	got, err = tbl.RelativeWeight(alice, 2*inter.Week)
	require.NoError(t, err)
	require.Equal(t, half, got)
	got, err = tbl.RelativeWeight(alice, 3*inter.Week)
	require.NoError(t, err)
	require.Equal(t, fixed.Unit(), got)
	got, err = tbl.RelativeWeight(bob, inter.Week)
	require.NoError(t, err)
	require.True(t, got.IsZero())

	// the current week is still open for a newcomer
	require.NoError(t, tbl.Register(bob, now))
	require.NoError(t, tbl.Set(bob, now, half))
}
