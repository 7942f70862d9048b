package health

import (
	"context"
	"fmt"

	"github.com/devblac/deposit-listener/internal/source/evm"
)

// RPCChecker pings every connected chain client.
type RPCChecker struct {
	clients map[string]evm.HeadReader
}

// NewRPCChecker creates a checker for multiple chains.
func NewRPCChecker(clients map[string]evm.HeadReader) *RPCChecker {
	return &RPCChecker{clients: clients}
}

// Ping checks all configured RPC endpoints.
func (c *RPCChecker) Ping(ctx context.Context) error {
	var lastErr error
	for id, cli := range c.clients {
		if _, err := cli.HeadBlock(ctx); err != nil {
			lastErr = fmt.Errorf("chain %s: %w", id, err)
			continue
		}
	}
	return lastErr
}
