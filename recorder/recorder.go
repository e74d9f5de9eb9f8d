// Package recorder journals committed checkpoints so that entitlement history
// can be inspected and replayed outside the ledger.
package recorder

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-gauge-funder/gauge"
	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// CheckpointRecord is one journal row. Amounts are decimal strings at 1e18 scale.
type CheckpointRecord struct {
	Funder      common.Address
	Participant common.Address
	Time        inter.Timestamp
	Delta       string
	Total       string
	Rate        string
}

// Recorder persists checkpoint history.
type Recorder interface {
	RecordCheckpoint(rec *CheckpointRecord) error
	Checkpoints(funder, participant common.Address) ([]CheckpointRecord, error)
	Close() error
}

// FromEvent converts a feed event into a journal row.
func FromEvent(ev gauge.CheckpointEvent) *CheckpointRecord {
	return &CheckpointRecord{
		Funder:      ev.Funder,
		Participant: ev.Participant,
		Time:        ev.Time,
		Delta:       fixed.String(ev.Delta),
		Total:       fixed.String(ev.Total),
		Rate:        fixed.String(ev.Rate),
	}
}

// Journal copies every checkpoint posted by a funder into a Recorder.
type Journal struct {
	rec  Recorder
	ch   chan gauge.CheckpointEvent
	sub  event.Subscription
	done chan struct{}
}

// Follow starts journaling f's checkpoints into rec until Stop.
func Follow(f *gauge.Funder, rec Recorder) *Journal {
	j := &Journal{
		rec:  rec,
		ch:   make(chan gauge.CheckpointEvent, 64),
		done: make(chan struct{}),
	}
	j.sub = f.SubscribeCheckpoints(j.ch)
	go j.loop()
	return j
}

func (j *Journal) loop() {
	defer close(j.done)
	for {
		select {
		case ev := <-j.ch:
			if err := j.rec.RecordCheckpoint(FromEvent(ev)); err != nil {
				log.Error("Failed to journal checkpoint", "participant", ev.Participant, "err", err)
			}
		case <-j.sub.Err():
			// drain what was delivered before the unsubscribe
			for {
				select {
				case ev := <-j.ch:
					if err := j.rec.RecordCheckpoint(FromEvent(ev)); err != nil {
						log.Error("Failed to journal checkpoint", "participant", ev.Participant, "err", err)
					}
				default:
					return
				}
			}
		}
	}
}

// Stop unsubscribes and waits for pending rows to be written.
func (j *Journal) Stop() {
	j.sub.Unsubscribe()
	<-j.done
}
