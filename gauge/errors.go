package gauge

import (
	"errors"

	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

var (
	// ErrUnauthorized is returned when the caller lacks the owner role.
	ErrUnauthorized = errors.New("caller is not the owner")

	// ErrOverflow is returned when fixed-point accrual exceeds 256 bits.
	// Nothing is persisted when it occurs.
	ErrOverflow = fixed.ErrOverflow

	// ErrStaleWeight is returned by an oracle that has no sample for a past
	// week of a registered participant.
	ErrStaleWeight = errors.New("relative weight not available")

	// ErrWeightRange is returned when an oracle reports a share above 1e18.
	ErrWeightRange = errors.New("relative weight above 1e18")

	// ErrOutOfOrder is returned when a checkpoint time precedes the
	// participant's last checkpoint.
	ErrOutOfOrder = errors.New("checkpoint before last checkpoint")

	// ErrFutureCheckpoint is returned when a checkpoint time is ahead of the clock.
	ErrFutureCheckpoint = errors.New("checkpoint in the future")

	// ErrUnkillUnsupported is returned when reviving a killed funder.
	ErrUnkillUnsupported = errors.New("killed funder cannot be revived")
)
