package xrouter

import (
	"context"
	"sync"
)

// Connector abstracts a specific blockchain's RPC surface for the
// dispatcher. Implementations may return an error; the dispatcher wraps
// it into a reply JSON object rather than dropping the packet, so the
// client-side quorum engine can still compare error replies across peers.
type Connector interface {
	GetBlockCount(ctx context.Context) (interface{}, error)
	GetBlockHash(ctx context.Context, blockID string) (interface{}, error)
	GetBlock(ctx context.Context, blockHash string) (interface{}, error)
	GetTransaction(ctx context.Context, hash string) (interface{}, error)
	GetAllBlocks(ctx context.Context, number int) (interface{}, error)
	GetAllTransactions(ctx context.Context, account string, number int) (interface{}, error)
	GetBalance(ctx context.Context, account string) (interface{}, error)
	GetBalanceUpdate(ctx context.Context, account string, number int) (interface{}, error)
	GetTransactionsBloomFilter(ctx context.Context, number int, serializedFilter []byte) (interface{}, error)
	SendTransaction(ctx context.Context, hex string) (interface{}, error)
}

// ConnectorRegistry is the thread-safe currency -> Connector map.
type ConnectorRegistry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

// NewConnectorRegistry returns an empty registry.
func NewConnectorRegistry() *ConnectorRegistry {
	return &ConnectorRegistry{connectors: make(map[string]Connector)}
}

// Register inserts or replaces the connector for currency.
func (r *ConnectorRegistry) Register(currency string, c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[currency] = c
}

// Lookup returns the connector registered for currency, if any.
func (r *ConnectorRegistry) Lookup(currency string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[currency]
	return c, ok
}

// List returns the currencies with a registered connector.
func (r *ConnectorRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.connectors))
	for currency := range r.connectors {
		out = append(out, currency)
	}
	return out
}
