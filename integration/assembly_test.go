package integration

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rony4d/go-gauge-funder/emission"
	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/oracle"
	"github.com/rony4d/go-gauge-funder/registry"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	owner    = common.HexToAddress("0x0a")
	fallback = common.HexToAddress("0xfa11")
	receiver = common.HexToAddress("0x7ec")
	alice    = common.HexToAddress("0xa11ce")
)

func testConfig(t *testing.T, now *inter.Timestamp) Config {
	return Config{
		DataDir:   t.TempDir(),
		DBBackend: "leveldb",
		CacheMB:   16,
		Handles:   16,
		Rules:     emission.MainNetRules(),
		Registry: registry.Config{
			Address:          common.HexToAddress("0xfac"),
			Owner:            owner,
			FallbackReceiver: fallback,
			Implementation:   common.HexToAddress("0x1"),
		},
		OracleKind: OracleTable,
		Clock:      func() inter.Timestamp { return *now },
	}
}

// TestNodeLifecycle deploys a funder, checkpoints it, restarts over the same
// data directory and checks everything is still there.
func TestNodeLifecycle(t *testing.T) {
	require := require.New(t)
	now := inter.Week
	cfg := testConfig(t, &now)
	cfg.JournalPath = filepath.Join(cfg.DataDir, "journal.db")

	n, err := Open(cfg)
	require.NoError(err)

	f, err := n.Deploy(receiver, uint256.NewInt(0))
	require.NoError(err)
	require.Equal(fallback, f.CachedReceiver())

	require.NoError(n.Weights.Set(alice, inter.Week, fixed.Unit()))
	require.NoError(n.Weights.Set(alice, 2*inter.Week, fixed.MustParse("500000000000000000")))

	now = 3 * inter.Week
	delta, err := f.UserCheckpoint(alice)
	require.NoError(err)
	rate := emission.DefaultInitialRate
	want := new(uint256.Int).Mul(rate, uint256.NewInt(uint64(inter.Week)))
	want.Add(want, new(uint256.Int).Div(want, uint256.NewInt(2)))
	require.Equal(want, delta)

	addr := f.Address()
	require.NoError(n.Close())

	now = 4 * inter.Week
	again, err := Open(cfg)
	require.NoError(err)
	defer again.Close()

	reopened, err := again.Funder(addr)
	require.NoError(err)
	total, err := reopened.IntegratedEntitlement(alice)
	require.NoError(err)
	require.Equal(want, total)

	all, err := again.Funders()
	require.NoError(err)
	require.Len(all, 1)

	rows, err := again.Recorder.Checkpoints(addr, alice)
	require.NoError(err)
	require.Len(rows, 1)
	require.Equal(fixed.String(want), rows[0].Total)

	// a missing week is fatal, not zero
	_, err = reopened.UserCheckpoint(alice)
	require.True(errors.Is(err, gauge.ErrStaleWeight), "err = %v", err)
}

func TestOpenConstantOracleInMemory(t *testing.T) {
	now := inter.Timestamp(0)
	cfg := testConfig(t, &now)
	cfg.DBBackend = "memory"
	cfg.OracleKind = OracleConstant
	cfg.ConstantWeight = fixed.Unit()

	n, err := Open(cfg)
	require.NoError(t, err)
	defer n.Close()
	require.Nil(t, n.Weights)

	f, err := n.Deploy(receiver, nil)
	require.NoError(t, err)
	now = inter.Day
	delta, err := f.UserCheckpoint(alice)
	require.NoError(t, err)
	require.Equal(t, new(uint256.Int).Mul(emission.DefaultInitialRate, uint256.NewInt(uint64(inter.Day))), delta)

	_, err = n.Funder(common.HexToAddress("0xdead"))
	require.True(t, errors.Is(err, registry.ErrUnknownFunder))
}

func TestOpenRejectsUnknownBackends(t *testing.T) {
	now := inter.Timestamp(0)

	cfg := testConfig(t, &now)
	cfg.DBBackend = "pebble"
	_, err := Open(cfg)
	require.Error(t, err)

	cfg = testConfig(t, &now)
	cfg.DBBackend = "memory"
	cfg.OracleKind = "vote"
	_, err = Open(cfg)
	require.Error(t, err)
}

// TestCheckpointCadenceDoesNotChangeTotals runs the same weight history on two
// nodes, one checkpointing midway, and tries to back-fill an elapsed week on
// both. The back-fill is refused and the totals agree.
func TestCheckpointCadenceDoesNotChangeTotals(t *testing.T) {
	half := fixed.MustParse("500000000000000000")

	run := func(t *testing.T, midway bool) *uint256.Int {
		now := inter.Timestamp(0)
		cfg := testConfig(t, &now)
		cfg.DBBackend = "memory"
		n, err := Open(cfg)
		require.NoError(t, err)
		defer n.Close()

		f, err := n.Deploy(receiver, nil)
		require.NoError(t, err)
		require.NoError(t, n.Weights.Set(alice, 2*inter.Week, half))
		require.NoError(t, n.Weights.Set(alice, 3*inter.Week, fixed.Unit()))

		if midway {
			now = 2 * inter.Week
			_, err = f.UserCheckpoint(alice)
			require.NoError(t, err)
		}

		now = 4 * inter.Week
		err = n.Weights.Set(alice, 0, fixed.Unit())
		require.True(t, errors.Is(err, oracle.ErrPastWeek), "err = %v", err)

		_, err = f.UserCheckpoint(alice)
		require.NoError(t, err)
		total, err := f.IntegratedEntitlement(alice)
		require.NoError(t, err)
		return total
	}

	direct := run(t, false)
	split := run(t, true)
	require.Equal(t, direct, split)

	want := new(uint256.Int).Mul(emission.DefaultInitialRate, uint256.NewInt(uint64(inter.Week)))
	want.Add(want, new(uint256.Int).Div(want, uint256.NewInt(2)))
	require.Equal(t, want, direct)
}
