package launcher

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/go-gauge-funder/flags"
	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/integration"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/scheduler"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	errMissingArg     = errors.New("missing argument")
	errNoFunder       = errors.New("no funder deployed")
	errAmbiguous      = errors.New("several funders deployed, select one with --funder")
	errNoWeightsTable = errors.New("weights can only be set with the table oracle")
)

// Placeholders for the throwaway registry of the simulate command.
var (
	simulationParticipant    = common.HexToAddress("0x01")
	simulationImplementation = common.HexToAddress("0x02")
)

// env is what every command action runs against.
type env struct {
	ctx  *cli.Context
	cfg  Config
	node *integration.Node // nil for commands that do not touch the datadir
	log  *logrus.Logger
}

func commandFlags(extra ...cli.Flag) []cli.Flag {
	return append(flags.AllFlags(), extra...)
}

// withConfig resolves the config and logging, then runs fn.
func withConfig(fn func(e *env) error) func(*cli.Context) error {
	return func(ctx *cli.Context) error {
		cfg, err := MakeAllConfigs(ctx)
		if err != nil {
			return err
		}
		logger, err := setupLogging(cfg.Node.Logging, ctx.App.Writer)
		if err != nil {
			return err
		}
		e := &env{ctx: ctx, cfg: cfg, log: logger}
		if err := fn(e); err != nil {
			logger.WithError(err).Error("Command failed")
			return err
		}
		return nil
	}
}

// withNode is withConfig plus an opened node that is closed afterwards.
func withNode(fn func(e *env) error) func(*cli.Context) error {
	return withConfig(func(e *env) error {
		icfg, err := e.cfg.Integration()
		if err != nil {
			return err
		}
		node, err := integration.Open(icfg)
		if err != nil {
			return err
		}
		e.node = node
		err = fn(e)
		if cerr := node.Close(); err == nil {
			err = cerr
		}
		return err
	})
}

func commands() []cli.Command {
	return []cli.Command{
		{
			Name:      "checkpoint",
			Usage:     "Account a participant up to now",
			ArgsUsage: "<participant>",
			Flags:     commandFlags(),
			Action:    withNode(checkpoint),
		},
		{
			Name:      "status",
			Usage:     "Show a participant's account and the funder state",
			ArgsUsage: "<participant>",
			Flags:     commandFlags(),
			Action:    withNode(status),
		},
		{
			Name:   "kill",
			Usage:  "Stop all future accrual (owner only, irreversible)",
			Flags:  commandFlags(),
			Action: withNode(kill),
		},
		{
			Name:  "receiver",
			Usage: "Inspect or refresh the cached receiver",
			Subcommands: []cli.Command{
				{Name: "show", Flags: commandFlags(), Action: withNode(receiverShow)},
				{Name: "update", Flags: commandFlags(), Action: withNode(receiverUpdate)},
			},
		},
		{
			Name:  "weight",
			Usage: "Manage relative weight samples of the table oracle",
			Subcommands: []cli.Command{
				{Name: "set", ArgsUsage: "<participant> <time> <weight>", Flags: commandFlags(), Action: withNode(weightSet)},
				{Name: "get", ArgsUsage: "<participant> <time>", Flags: commandFlags(), Action: withNode(weightGet)},
			},
		},
		{
			Name:  "registry",
			Usage: "Factory administration",
			Subcommands: []cli.Command{
				{Name: "show", Flags: commandFlags(), Action: withNode(registryShow)},
				{Name: "transfer", ArgsUsage: "<future owner>", Flags: commandFlags(), Action: withNode(registryTransfer)},
				{Name: "accept", Flags: commandFlags(), Action: withNode(registryAccept)},
				{Name: "fallback", ArgsUsage: "<receiver>", Flags: commandFlags(), Action: withNode(registryFallback)},
				{Name: "implementation", ArgsUsage: "<address>", Flags: commandFlags(), Action: withNode(registryImplementation)},
				{Name: "deploy", ArgsUsage: "<receiver> [max emissions]", Flags: commandFlags(), Action: withNode(registryDeploy)},
			},
		},
		{
			Name:      "history",
			Usage:     "Print a participant's journaled checkpoints",
			ArgsUsage: "<participant>",
			Flags:     commandFlags(),
			Action:    withNode(history),
		},
		{
			Name:  "simulate",
			Usage: "Accrue a constant weight from genesis in memory and print the total",
			Flags: commandFlags(
				cli.Int64Flag{
					Name:  "duration",
					Usage: "Seconds to accrue",
					Value: int64(2 * inter.Year),
				},
			),
			Action: withConfig(simulate),
		},
		{
			Name:  "run",
			Usage: "Checkpoint every funder on the keeper schedule until interrupted",
			Flags: commandFlags(
				cli.BoolFlag{
					Name:  "once",
					Usage: "Run a single round and exit",
				},
			),
			Action: withNode(run),
		},
	}
}

func (e *env) arg(i int, name string) (string, error) {
	if e.ctx.NArg() <= i {
		return "", fmt.Errorf("%w: %s", errMissingArg, name)
	}
	return e.ctx.Args().Get(i), nil
}

func (e *env) addressArg(i int, name string) (common.Address, error) {
	raw, err := e.arg(i, name)
	if err != nil {
		return common.Address{}, err
	}
	return parseAddress(raw)
}

// funder opens the instance selected by --funder, or the only deployed one.
func (e *env) funder() (*gauge.Funder, error) {
	if e.cfg.Registry.Funder != "" {
		addr, err := parseAddress(e.cfg.Registry.Funder)
		if err != nil {
			return nil, err
		}
		return e.node.Funder(addr)
	}
	recs, err := e.node.Factory.Funders()
	if err != nil {
		return nil, err
	}
	switch len(recs) {
	case 0:
		return nil, errNoFunder
	case 1:
		return e.node.Funder(recs[0].Address)
	default:
		return nil, errAmbiguous
	}
}

func checkpoint(e *env) error {
	p, err := e.addressArg(0, "participant")
	if err != nil {
		return err
	}
	f, err := e.funder()
	if err != nil {
		return err
	}
	delta, err := f.UserCheckpoint(p)
	if err != nil {
		return err
	}
	total, err := f.IntegratedEntitlement(p)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"funder":      f.Address().Hex(),
		"participant": p.Hex(),
		"delta":       fixed.String(delta),
		"total":       fixed.String(total),
	}).Info("Checkpoint")
	return nil
}

func status(e *env) error {
	p, err := e.addressArg(0, "participant")
	if err != nil {
		return err
	}
	f, err := e.funder()
	if err != nil {
		return err
	}
	acc, err := f.Account(p)
	if err != nil {
		return err
	}
	gate := f.Gate()
	e.log.WithFields(logrus.Fields{
		"funder":      f.Address().Hex(),
		"participant": p.Hex(),
		"last":        acc.LastCheckpoint.String(),
		"entitlement": fixed.String(acc.IntegratedEntitlement),
		"rate":        fixed.String(f.EffectiveRate()),
		"epoch":       f.FutureEpochTime().String(),
		"killed":      gate.Killed,
		"receiver":    gate.CachedReceiver.Hex(),
	}).Info("Status")
	return nil
}

func kill(e *env) error {
	caller, err := e.cfg.Caller()
	if err != nil {
		return err
	}
	f, err := e.funder()
	if err != nil {
		return err
	}
	if err := f.SetKilled(caller, true); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"funder": f.Address().Hex(),
		"at":     f.Gate().KilledAt.String(),
	}).Warn("Funder killed")
	return nil
}

func receiverShow(e *env) error {
	f, err := e.funder()
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"cached":   f.CachedReceiver().Hex(),
		"fallback": e.node.Factory.FallbackReceiver().Hex(),
	}).Info("Receiver")
	return nil
}

func receiverUpdate(e *env) error {
	f, err := e.funder()
	if err != nil {
		return err
	}
	receiver, err := f.UpdateCachedReceiver()
	if err != nil {
		return err
	}
	e.log.WithField("cached", receiver.Hex()).Info("Receiver updated")
	return nil
}

func (e *env) timeArg(i int) (inter.Timestamp, error) {
	raw, err := e.arg(i, "time")
	if err != nil {
		return 0, err
	}
	t, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("time: %w", err)
	}
	return inter.Timestamp(t), nil
}

func weightSet(e *env) error {
	if e.node.Weights == nil {
		return errNoWeightsTable
	}
	p, err := e.addressArg(0, "participant")
	if err != nil {
		return err
	}
	at, err := e.timeArg(1)
	if err != nil {
		return err
	}
	raw, err := e.arg(2, "weight")
	if err != nil {
		return err
	}
	w, err := fixed.Parse(raw)
	if err != nil {
		return err
	}
	if err := e.node.Weights.Set(p, at, w); err != nil {
		return err
	}
	rules, err := integration.RulesByName(e.cfg.Emission.Network)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"participant": p.Hex(),
		"week":        inter.WeekStart(at, rules.WeekLength).String(),
		"weight":      fixed.Format(w),
	}).Info("Weight set")
	return nil
}

func weightGet(e *env) error {
	p, err := e.addressArg(0, "participant")
	if err != nil {
		return err
	}
	at, err := e.timeArg(1)
	if err != nil {
		return err
	}
	w, err := e.node.Oracle.RelativeWeight(p, at)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"participant": p.Hex(),
		"weight":      fixed.Format(w),
	}).Info("Weight")
	return nil
}

func registryShow(e *env) error {
	fac := e.node.Factory
	recs, err := fac.Funders()
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"address":        fac.Address().Hex(),
		"owner":          fac.Owner().Hex(),
		"future":         fac.FutureOwner().Hex(),
		"fallback":       fac.FallbackReceiver().Hex(),
		"implementation": fac.Implementation().Hex(),
		"funders":        len(recs),
	}).Info("Registry")
	for _, rec := range recs {
		e.log.WithFields(logrus.Fields{
			"funder":   rec.Address.Hex(),
			"receiver": rec.Receiver.Hex(),
			"max":      fixed.String(rec.MaxEmissions),
			"created":  rec.CreatedAt.String(),
		}).Info("Deployed")
	}
	return nil
}

func registryTransfer(e *env) error {
	caller, err := e.cfg.Caller()
	if err != nil {
		return err
	}
	future, err := e.addressArg(0, "future owner")
	if err != nil {
		return err
	}
	if err := e.node.Factory.CommitTransferOwnership(caller, future); err != nil {
		return err
	}
	e.log.WithField("future", future.Hex()).Info("Ownership transfer committed")
	return nil
}

func registryAccept(e *env) error {
	caller, err := e.cfg.Caller()
	if err != nil {
		return err
	}
	if err := e.node.Factory.AcceptTransferOwnership(caller); err != nil {
		return err
	}
	e.log.WithField("owner", caller.Hex()).Info("Ownership accepted")
	return nil
}

func registryFallback(e *env) error {
	caller, err := e.cfg.Caller()
	if err != nil {
		return err
	}
	receiver, err := e.addressArg(0, "receiver")
	if err != nil {
		return err
	}
	if err := e.node.Factory.SetFallbackReceiver(caller, receiver); err != nil {
		return err
	}
	e.log.WithField("fallback", receiver.Hex()).Info("Fallback receiver updated")
	return nil
}

func registryImplementation(e *env) error {
	caller, err := e.cfg.Caller()
	if err != nil {
		return err
	}
	impl, err := e.addressArg(0, "address")
	if err != nil {
		return err
	}
	if err := e.node.Factory.SetImplementation(caller, impl); err != nil {
		return err
	}
	e.log.WithField("implementation", impl.Hex()).Info("Implementation updated")
	return nil
}

func registryDeploy(e *env) error {
	receiver, err := e.addressArg(0, "receiver")
	if err != nil {
		return err
	}
	var maxEmissions *uint256.Int
	if e.ctx.NArg() > 1 {
		if maxEmissions, err = fixed.Parse(e.ctx.Args().Get(1)); err != nil {
			return err
		}
	}
	f, err := e.node.Deploy(receiver, maxEmissions)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"funder":   f.Address().Hex(),
		"receiver": receiver.Hex(),
		"epoch":    f.FutureEpochTime().String(),
	}).Info("Funder deployed")
	return nil
}

func history(e *env) error {
	p, err := e.addressArg(0, "participant")
	if err != nil {
		return err
	}
	f, err := e.funder()
	if err != nil {
		return err
	}
	rows, err := e.node.Recorder.Checkpoints(f.Address(), p)
	if err != nil {
		return err
	}
	for _, row := range rows {
		e.log.WithFields(logrus.Fields{
			"time":  row.Time.String(),
			"delta": row.Delta,
			"total": row.Total,
			"rate":  row.Rate,
		}).Info("Checkpoint")
	}
	return nil
}

func simulate(e *env) error {
	sim := e.cfg
	sim.Store.Backend = "memory"
	sim.Store.Journal = ""
	sim.Emission.Oracle = integration.OracleConstant
	sim.Node.Now = 0

	icfg, err := sim.Integration()
	if err != nil {
		return err
	}
	now := inter.Timestamp(0)
	icfg.Clock = func() inter.Timestamp { return now }
	icfg.Registry.Clock = icfg.Clock
	if icfg.Registry.Implementation == (common.Address{}) {
		icfg.Registry.Implementation = simulationImplementation
	}

	node, err := integration.Open(icfg)
	if err != nil {
		return err
	}
	defer node.Close()

	f, err := node.Deploy(common.Address{}, nil)
	if err != nil {
		return err
	}
	now = inter.Timestamp(int64Of(e.ctx, "duration"))
	total, err := f.UserCheckpoint(simulationParticipant)
	if err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{
		"network":  sim.Emission.Network,
		"weight":   sim.Emission.Weight,
		"duration": now.String(),
		"total":    fixed.String(total),
		"rate":     fixed.String(f.EffectiveRate()),
	}).Info("Simulation finished")
	return nil
}

func run(e *env) error {
	funders, err := e.node.Funders()
	if err != nil {
		return err
	}
	participants, err := e.cfg.KeeperParticipants()
	if err != nil {
		return err
	}
	k := scheduler.NewKeeper(funders, participants)
	if boolOf(e.ctx, "once") {
		return k.RunNow()
	}
	if err := k.RegisterAll(e.cfg.Keeper.Cron); err != nil {
		return err
	}
	if err := k.RunNow(); err != nil {
		e.log.WithError(err).Warn("Initial round incomplete")
	}
	k.Start()
	defer k.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)
	e.log.WithField("cron", e.cfg.Keeper.Cron).Info("Keeper running, press Ctrl-C to stop")
	<-sig
	return nil
}
