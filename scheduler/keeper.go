// Package scheduler runs periodic checkpoints so that funders keep their
// accounts and the shared rate schedule current without user traffic.
package scheduler

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/robfig/cron/v3"

	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// Keeper checkpoints a fixed set of participants plus everyone a funder has
// already seen, on a cron schedule.
type Keeper struct {
	Cron         *cron.Cron
	Funders      []*gauge.Funder
	Participants []common.Address

	log log.Logger
}

// NewKeeper creates a keeper. Cron specs carry a seconds field.
func NewKeeper(funders []*gauge.Funder, participants []common.Address) *Keeper {
	return &Keeper{
		Cron:         cron.New(cron.WithSeconds()),
		Funders:      funders,
		Participants: participants,
		log:          log.New("module", "keeper"),
	}
}

// RegisterAll registers the checkpoint task under spec.
func (k *Keeper) RegisterAll(spec string) error {
	if _, err := k.Cron.AddFunc(spec, func() {
		if err := k.RunNow(); err != nil {
			k.log.Warn("Keeper round incomplete", "err", err)
		}
	}); err != nil {
		return fmt.Errorf("register checkpoint task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.Cron.Start()
	k.log.Info("Keeper started", "funders", len(k.Funders), "participants", len(k.Participants))
}

// Stop stops the scheduler and waits for a running round to finish.
func (k *Keeper) Stop() {
	<-k.Cron.Stop().Done()
	k.log.Info("Keeper stopped")
}

// RunNow checkpoints every participant of every funder once. A failing
// participant does not stop the round; the first error is returned.
func (k *Keeper) RunNow() error {
	var first error
	for _, f := range k.Funders {
		for _, p := range k.targets(f) {
			delta, err := f.UserCheckpoint(p)
			if err != nil {
				k.log.Error("Checkpoint failed", "funder", f.Address(), "participant", p, "err", err)
				if first == nil {
					first = err
				}
				continue
			}
			k.log.Debug("Checkpointed", "funder", f.Address(), "participant", p, "delta", fixed.String(delta))
		}
	}
	return first
}

func (k *Keeper) targets(f *gauge.Funder) []common.Address {
	seen := make(map[common.Address]bool, len(k.Participants))
	out := make([]common.Address, 0, len(k.Participants))
	for _, p := range k.Participants {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	known, err := f.Participants()
	if err != nil {
		k.log.Error("Failed to list participants", "funder", f.Address(), "err", err)
	}
	for _, p := range known {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
