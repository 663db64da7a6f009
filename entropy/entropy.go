// Package entropy supplies the per-epoch selection seed. The source is
// an external oracle: the core only requires the seed to be publicly
// verifiable and unknowable before the epoch closes.
package entropy

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SeedSize is the minimum seed length the selection service accepts.
const SeedSize = 32

// EpochLength is the adjudication epoch cadence: wall time is cut into
// hour slots, and a slot's seed cannot exist before the slot opens.
const EpochLength = time.Hour

// EpochAt maps a wall-clock unix time to its adjudication epoch.
func EpochAt(unix int64) uint64 {
	return uint64(unix) / uint64(EpochLength/time.Second)
}

// EpochStart is the unix time at which an epoch opens.
func EpochStart(epoch uint64) int64 {
	return int64(epoch) * int64(EpochLength/time.Second)
}

var ErrSeedUnavailable = errors.New("entropy: seed not yet available for epoch")

type Source interface {
	// Seed returns at least SeedSize bytes of public entropy for the
	// given adjudication epoch.
	Seed(ctx context.Context, epoch uint64) ([]byte, error)
}

// FixedSource replays a constant seed. Testing and replay auditing only.
type FixedSource struct {
	seed []byte
}

func NewFixedSource(seed []byte) (*FixedSource, error) {
	if len(seed) < SeedSize {
		return nil, fmt.Errorf("entropy: fixed seed is %d bytes, need %d", len(seed), SeedSize)
	}
	return &FixedSource{seed: seed}, nil
}

func (f *FixedSource) Seed(_ context.Context, _ uint64) ([]byte, error) {
	out := make([]byte, len(f.seed))
	copy(out, f.seed)
	return out, nil
}
