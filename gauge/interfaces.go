package gauge

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/inter"
)

// WeightOracle supplies a participant's relative share of emissions
// (0..1e18) for the week containing t. Results for t <= now must be stable.
type WeightOracle interface {
	RelativeWeight(participant common.Address, t inter.Timestamp) (*uint256.Int, error)
}

// Admin decides who may run administrative operations.
type Admin interface {
	IsOwner(caller common.Address) bool
}

// ReceiverSource is the authoritative holder of the fallback receiver.
type ReceiverSource interface {
	FallbackReceiver() common.Address
}

// Clock returns the current time.
type Clock func() inter.Timestamp
