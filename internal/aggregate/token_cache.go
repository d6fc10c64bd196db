package aggregate

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// DecimalsSource resolves ERC20 decimals. *chain.Client satisfies it.
type DecimalsSource interface {
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
}

type decimalsEntry struct {
	decimals uint8
	err      error
}

// cachedDecimals remembers every lookup, failures included, so one run asks
// the node about each token at most once.
type cachedDecimals struct {
	src DecimalsSource

	mu      sync.Mutex
	entries map[common.Address]decimalsEntry
}

func newCachedDecimals(src DecimalsSource) *cachedDecimals {
	return &cachedDecimals{src: src, entries: make(map[common.Address]decimalsEntry)}
}

func (c *cachedDecimals) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[token]; ok {
		return e.decimals, e.err
	}
	decimals, err := c.src.TokenDecimals(ctx, token)
	c.entries[token] = decimalsEntry{decimals: decimals, err: err}
	return decimals, err
}
