// Package istate defines the ledger state a funder maintains between checkpoints.
// It contains two levels of state:
//  1. RateSchedule: the global emission rate and its decay schedule, shared by all participants.
//  2. AccountState: the per-participant running total and the time through which it is accounted.
//
// It also includes the kill gate, the decay history, and methods for copying,
// hashing and RLP-encoding these states.
package istate

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"github.com/rony4d/go-gauge-funder/inter"
	"github.com/rony4d/go-gauge-funder/utils/fixed"
)

// RateSchedule holds the current global emission rate and the instant at which
// it will next step down.
type RateSchedule struct {
	// Rate is the emission per second (1e18 scale).
	Rate *uint256.Int
	// FutureEpochTime is the next instant at which Rate is divided by DecayFactor.
	FutureEpochTime inter.Timestamp
	// DecayFactor is the reduction coefficient applied at each epoch (1e18 scale, > 1e18).
	DecayFactor *uint256.Int
	// EpochLength is the time between two reductions.
	EpochLength inter.Timestamp
}

// Decay applies one reduction step in place: the rate is divided by the decay
// factor and the next epoch moves one epoch length forward.
func (s *RateSchedule) Decay() error {
	rate, err := fixed.Decay(s.Rate, s.DecayFactor)
	if err != nil {
		return err
	}
	s.Rate = rate
	s.FutureEpochTime += s.EpochLength
	return nil
}

// Copy creates a deep copy of the schedule.
func (s RateSchedule) Copy() RateSchedule {
	cp := s
	cp.Rate = fixed.Clone(s.Rate)
	cp.DecayFactor = fixed.Clone(s.DecayFactor)
	return cp
}

// Hash fingerprints the schedule (SHA256 of its RLP encoding).
func (s RateSchedule) Hash() hash.Hash {
	return rlpHash(s.record())
}

func (s RateSchedule) String() string {
	return fmt.Sprintf("{rate=%s epoch=%d}", fixed.String(s.Rate), uint64(s.FutureEpochTime))
}

// RateEpoch is one entry of the decay history: the schedule in force from
// Start until the next entry's Start.
type RateEpoch struct {
	Start           inter.Timestamp
	Rate            *uint256.Int
	FutureEpochTime inter.Timestamp
}

// Copy creates a deep copy of the epoch.
func (e RateEpoch) Copy() RateEpoch {
	cp := e
	cp.Rate = fixed.Clone(e.Rate)
	return cp
}

// Schedule rebuilds the full schedule in force during this epoch.
func (e RateEpoch) Schedule(decayFactor *uint256.Int, epochLength inter.Timestamp) RateSchedule {
	return RateSchedule{
		Rate:            fixed.Clone(e.Rate),
		FutureEpochTime: e.FutureEpochTime,
		DecayFactor:     fixed.Clone(decayFactor),
		EpochLength:     epochLength,
	}
}

// AccountState is the per-participant accounting record.
type AccountState struct {
	// LastCheckpoint is the instant through which entitlement has been accounted.
	LastCheckpoint inter.Timestamp
	// IntegratedEntitlement is the cumulative amount owed (1e18 scale).
	IntegratedEntitlement *uint256.Int
}

// NewAccountState returns the state of a participant that has never checkpointed.
func NewAccountState(genesis inter.Timestamp) AccountState {
	return AccountState{LastCheckpoint: genesis, IntegratedEntitlement: fixed.Zero()}
}

// Copy creates a deep copy of the account.
func (a AccountState) Copy() AccountState {
	cp := a
	cp.IntegratedEntitlement = fixed.Clone(a.IntegratedEntitlement)
	return cp
}

// Hash fingerprints the account state.
func (a AccountState) Hash() hash.Hash {
	return rlpHash(a.record())
}

// Gate carries the administrative switches of a funder instance.
type Gate struct {
	// Killed forces the effective rate to zero from KilledAt onwards.
	Killed   bool
	KilledAt inter.Timestamp
	// CachedReceiver is a deliberately stale snapshot of the registry's fallback receiver.
	CachedReceiver common.Address
}

// EffectiveRate returns zero for segments starting at or after the kill, and
// the stored rate otherwise.
func (g Gate) EffectiveRate(rate *uint256.Int, segmentStart inter.Timestamp) *uint256.Int {
	if g.Killed && segmentStart >= g.KilledAt {
		return fixed.Zero()
	}
	return rate
}

func rlpHash(v interface{}) hash.Hash {
	hasher := sha256.New()
	if err := rlp.Encode(hasher, v); err != nil {
		panic("can't hash: " + err.Error())
	}
	return hash.BytesToHash(hasher.Sum(nil))
}

// Records below are the RLP wire forms. The go-ethereum rlp package encodes
// *big.Int natively, so 256-bit values travel through big.Int.

type scheduleRLP struct {
	Rate            *big.Int
	FutureEpochTime uint64
	DecayFactor     *big.Int
	EpochLength     uint64
}

type epochRLP struct {
	Start           uint64
	Rate            *big.Int
	FutureEpochTime uint64
}

type accountRLP struct {
	LastCheckpoint        uint64
	IntegratedEntitlement *big.Int
}

type gateRLP struct {
	Killed         bool
	KilledAt       uint64
	CachedReceiver common.Address
}

func (s RateSchedule) record() scheduleRLP {
	return scheduleRLP{
		Rate:            fixed.Clone(s.Rate).ToBig(),
		FutureEpochTime: uint64(s.FutureEpochTime),
		DecayFactor:     fixed.Clone(s.DecayFactor).ToBig(),
		EpochLength:     uint64(s.EpochLength),
	}
}

func (a AccountState) record() accountRLP {
	return accountRLP{
		LastCheckpoint:        uint64(a.LastCheckpoint),
		IntegratedEntitlement: fixed.Clone(a.IntegratedEntitlement).ToBig(),
	}
}

// MarshalBinary encodes the schedule.
func (s RateSchedule) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(s.record())
}

// UnmarshalBinary decodes a schedule produced by MarshalBinary.
func (s *RateSchedule) UnmarshalBinary(b []byte) error {
	var r scheduleRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return err
	}
	rate, err := fromBig(r.Rate)
	if err != nil {
		return err
	}
	decay, err := fromBig(r.DecayFactor)
	if err != nil {
		return err
	}
	*s = RateSchedule{
		Rate:            rate,
		FutureEpochTime: inter.Timestamp(r.FutureEpochTime),
		DecayFactor:     decay,
		EpochLength:     inter.Timestamp(r.EpochLength),
	}
	return nil
}

// MarshalBinary encodes the epoch.
func (e RateEpoch) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(epochRLP{
		Start:           uint64(e.Start),
		Rate:            fixed.Clone(e.Rate).ToBig(),
		FutureEpochTime: uint64(e.FutureEpochTime),
	})
}

// UnmarshalBinary decodes an epoch produced by MarshalBinary.
func (e *RateEpoch) UnmarshalBinary(b []byte) error {
	var r epochRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return err
	}
	rate, err := fromBig(r.Rate)
	if err != nil {
		return err
	}
	*e = RateEpoch{
		Start:           inter.Timestamp(r.Start),
		Rate:            rate,
		FutureEpochTime: inter.Timestamp(r.FutureEpochTime),
	}
	return nil
}

// MarshalBinary encodes the account.
func (a AccountState) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(a.record())
}

// UnmarshalBinary decodes an account produced by MarshalBinary.
func (a *AccountState) UnmarshalBinary(b []byte) error {
	var r accountRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return err
	}
	total, err := fromBig(r.IntegratedEntitlement)
	if err != nil {
		return err
	}
	*a = AccountState{
		LastCheckpoint:        inter.Timestamp(r.LastCheckpoint),
		IntegratedEntitlement: total,
	}
	return nil
}

// MarshalBinary encodes the gate.
func (g Gate) MarshalBinary() ([]byte, error) {
	return rlp.EncodeToBytes(gateRLP{
		Killed:         g.Killed,
		KilledAt:       uint64(g.KilledAt),
		CachedReceiver: g.CachedReceiver,
	})
}

// UnmarshalBinary decodes a gate produced by MarshalBinary.
func (g *Gate) UnmarshalBinary(b []byte) error {
	var r gateRLP
	if err := rlp.DecodeBytes(b, &r); err != nil {
		return err
	}
	*g = Gate{Killed: r.Killed, KilledAt: inter.Timestamp(r.KilledAt), CachedReceiver: r.CachedReceiver}
	return nil
}

func fromBig(b *big.Int) (*uint256.Int, error) {
	if b == nil {
		return fixed.Zero(), nil
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fixed.ErrOverflow
	}
	return z, nil
}
