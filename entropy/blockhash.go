package entropy

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// headerSource is the slice of the RPC client the seed lookup needs.
type headerSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
}

// BlockHashSource seeds an epoch with the hash of the first block mined
// at or after the epoch's opening instant. That block does not exist
// until the epoch opens, so the seed is unknowable in advance; once
// mined, anyone can re-fetch the hash and verify a draw.
type BlockHashSource struct {
	client headerSource

	mu    sync.Mutex
	cache map[uint64][]byte
}

func NewBlockHashSource(ctx context.Context, rpcAddress string) (*BlockHashSource, error) {
	client, err := ethclient.DialContext(ctx, rpcAddress)
	if err != nil {
		return nil, err
	}
	return newBlockHashSource(client), nil
}

func newBlockHashSource(client headerSource) *BlockHashSource {
	return &BlockHashSource{client: client, cache: make(map[uint64][]byte)}
}

func (b *BlockHashSource) Seed(ctx context.Context, epoch uint64) ([]byte, error) {
	b.mu.Lock()
	if seed, ok := b.cache[epoch]; ok {
		b.mu.Unlock()
		return append([]byte(nil), seed...), nil
	}
	b.mu.Unlock()

	start := uint64(EpochStart(epoch))
	latest, err := b.client.HeaderByNumber(ctx, nil)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, ErrSeedUnavailable
		}
		return nil, err
	}
	if latest.Time < start {
		// the epoch's first block has not been mined yet
		return nil, ErrSeedUnavailable
	}
	header, err := b.firstAtOrAfter(ctx, start, latest)
	if err != nil {
		return nil, err
	}
	seed := header.Hash().Bytes()
	b.mu.Lock()
	b.cache[epoch] = seed
	b.mu.Unlock()
	return append([]byte(nil), seed...), nil
}

// firstAtOrAfter binary-searches block numbers for the earliest header
// whose timestamp reaches start. Block timestamps are monotonic, so the
// predicate is monotone over block numbers.
func (b *BlockHashSource) firstAtOrAfter(ctx context.Context, start uint64, latest *ethtypes.Header) (*ethtypes.Header, error) {
	lo, hi := uint64(0), latest.Number.Uint64()
	best := latest
	for lo < hi {
		mid := lo + (hi-lo)/2
		h, err := b.client.HeaderByNumber(ctx, new(big.Int).SetUint64(mid))
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return nil, ErrSeedUnavailable
			}
			return nil, err
		}
		if h.Time >= start {
			best = h
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return best, nil
}

func (b *BlockHashSource) Close() {
	if c, ok := b.client.(interface{ Close() }); ok {
		c.Close()
	}
}
