package scheduler

import (
	"errors"
	"testing"

	"github.com/Fantom-foundation/lachesis-base/kvdb/memorydb"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/emission/genesis"
	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/ledger"
	"github.com/rony4d/go-gauge-funder/oracle"
	"github.com/rony4d/go-gauge-funder/registry"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
	carol = common.HexToAddress("0xca401")
)

func newFunder(t *testing.T, now *inter.Timestamp, w gauge.WeightOracle) *gauge.Funder {
	t.Helper()
	db := memorydb.New()
	factory, err := registry.Open(db, registry.Config{Owner: alice})
	require.NoError(t, err)

	addr := common.HexToAddress("0xf00d")
	f, err := gauge.New(gauge.Config{
		Address:   addr,
		Genesis:   genesis.New(emission.FakeNetRules(), 0),
		Store:     ledger.NewInstance(db, addr),
		Oracle:    w,
		Admin:     factory,
		Receivers: factory,
		Clock:     func() inter.Timestamp { return *now },
	})
	require.NoError(t, err)
	t.Cleanup(f.Close)
	return f
}

func TestRunNow(t *testing.T) {
	now := inter.Timestamp(0)
	f := newFunder(t, &now, oracle.NewConstant(fixed.Unit()))

	// carol is only known to the funder, not to the keeper config
	now = 10
	_, err := f.UserCheckpoint(carol)
	require.NoError(t, err)

	k := NewKeeper([]*gauge.Funder{f}, []common.Address{alice, bob, alice})
	now = inter.Day
	require.NoError(t, k.RunNow())

	for _, p := range []common.Address{alice, bob, carol} {
		last, err := f.LastCheckpoint(p)
		require.NoError(t, err)
		require.Equal(t, inter.Day, last, "participant %s", p.Hex())
	}
}

type failingOracle struct{ bad common.Address }

func (o failingOracle) RelativeWeight(p common.Address, _ inter.Timestamp) (*uint256.Int, error) {
	if p == o.bad {
		return nil, gauge.ErrStaleWeight
	}
	return fixed.Unit(), nil
}

// TestRunNowContinuesAfterFailure checks one stale participant does not
// block the others.
func TestRunNowContinuesAfterFailure(t *testing.T) {
	now := inter.Timestamp(0)
	f := newFunder(t, &now, failingOracle{bad: alice})

	k := NewKeeper([]*gauge.Funder{f}, []common.Address{alice, bob})
	now = inter.Day
	err := k.RunNow()
	require.True(t, errors.Is(err, gauge.ErrStaleWeight), "err = %v", err)

	last, err := f.LastCheckpoint(bob)
	require.NoError(t, err)
	require.Equal(t, inter.Day, last)

	last, err = f.LastCheckpoint(alice)
	require.NoError(t, err)
	require.Equal(t, inter.Timestamp(0), last)
}

func TestRegisterAll(t *testing.T) {
	now := inter.Timestamp(0)
	k := NewKeeper([]*gauge.Funder{newFunder(t, &now, oracle.NewConstant(fixed.Unit()))}, nil)

	require.Error(t, k.RegisterAll("not a cron spec"))
	require.NoError(t, k.RegisterAll("0 */5 * * * *"))
	require.Len(t, k.Cron.Entries(), 1)

	k.Start()
	k.Stop()
}
