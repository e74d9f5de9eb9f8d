package recorder

import "github.com/ethereum/go-ethereum/common"

// NoopRecorder is used when no journal database is configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordCheckpoint(_ *CheckpointRecord) error { return nil }
func (n *NoopRecorder) Checkpoints(_, _ common.Address) ([]CheckpointRecord, error) {
	return nil, nil
}
func (n *NoopRecorder) Close() error { return nil }
