package fixed

import (
	"errors"
	"math/big"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestAccrueTruncates(t *testing.T) {
	require := require.New(t)

	// 0.5 * 3 * 1 = 1.5 -> 1
	got, err := Accrue(MustParse("500000000000000000"), uint256.NewInt(3), 1)
	require.NoError(err)
	require.Equal(uint64(1), got.Uint64())

	// full weight passes the rate straight through
	got, err = Accrue(Unit(), uint256.NewInt(7), 10)
	require.NoError(err)
	require.Equal(uint64(70), got.Uint64())

	// zero duration accrues nothing
	got, err = Accrue(Unit(), uint256.NewInt(7), 0)
	require.NoError(err)
	require.True(got.IsZero())
}

func TestAccrueMatchesBigInt(t *testing.T) {
	weight := MustParse("333333333333333333")
	rate := MustParse("8714335457889396245")
	dt := uint64(604800)

	got, err := Accrue(weight, rate, dt)
	require.NoError(t, err)

	want := new(big.Int).Mul(weight.ToBig(), rate.ToBig())
	want.Mul(want, new(big.Int).SetUint64(dt))
	want.Quo(want, big.NewInt(1e18))
	require.Equal(t, want.String(), String(got))
}

func TestOverflowIsRejected(t *testing.T) {
	max := new(uint256.Int).SetAllOne()

	_, err := Add(max, uint256.NewInt(1))
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = Mul(max, uint256.NewInt(2))
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = Accrue(max, Unit(), 1)
	require.True(t, errors.Is(err, ErrOverflow))

	_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), Zero())
	require.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestDecay(t *testing.T) {
	rate := MustParse("8714335457889396245")
	factor := MustParse("1189207115002721024")

	got, err := Decay(rate, factor)
	require.NoError(t, err)

	want := new(big.Int).Mul(rate.ToBig(), big.NewInt(1e18))
	want.Quo(want, factor.ToBig())
	require.Equal(t, want.String(), String(got))
	require.True(t, got.Lt(rate))
}

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"0", "0", nil},
		{"1_000_000", "1000000", nil},
		{"0x10", "16", nil},
		{" 42 ", "42", nil},
		{"", "", ErrSyntax},
		{"-1", "", ErrSyntax},
		{"abc", "", ErrSyntax},
		{"0x1" + strings.Repeat("0", 64), "", ErrOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, String(got))
		})
	}
}

func TestFormat(t *testing.T) {
	require.Equal(t, "1", Format(Unit()))
	require.Equal(t, "1.5", Format(MustParse("1500000000000000000")))
	require.Equal(t, "0.000000000000000001", Format(uint256.NewInt(1)))
	require.Equal(t, "0", Format(nil))
}

func TestMinAndClone(t *testing.T) {
	a, b := uint256.NewInt(1), uint256.NewInt(2)
	require.Equal(t, a, Min(a, b))
	require.Equal(t, a, Min(b, a))

	c := Clone(a)
	c.AddUint64(c, 1)
	require.Equal(t, uint64(1), a.Uint64())
	require.True(t, Clone(nil).IsZero())
}
