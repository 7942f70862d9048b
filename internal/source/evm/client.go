package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/devblac/deposit-listener/internal/config"
	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is the connected capability the scanner depends on.
type Client interface {
	HeadReader
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	Header(ctx context.Context, number *big.Int) (*Header, error)
	Close()
}

// Header is the subset of a block header used for health checks and logging.
type Header struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
	Time       uint64
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies Client.
type RPCClient struct {
	eth   *ethclient.Client
	raw   *rpc.Client
	chain string
	poa   bool
}

// HeadBlock returns the current block number via eth_blockNumber.
func (c *RPCClient) HeadBlock(ctx context.Context) (uint64, error) {
	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s block number: %w", c.chain, err)
	}
	return n, nil
}

// FilterLogs runs eth_getLogs.
func (c *RPCClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.eth.FilterLogs(ctx, q)
}

// Header fetches a header; nil number means latest.
// Proof-of-authority chains carry signer seals in extraData, so their header is
// decoded leniently and the node-reported hash is used instead of recomputing it.
func (c *RPCClient) Header(ctx context.Context, number *big.Int) (*Header, error) {
	if !c.poa {
		h, err := c.eth.HeaderByNumber(ctx, number)
		if err != nil {
			return nil, fmt.Errorf("%s header: %w", c.chain, err)
		}
		return &Header{Number: h.Number.Uint64(), Hash: h.Hash(), ParentHash: h.ParentHash, Time: h.Time}, nil
	}

	var head *poaHeader
	if err := c.raw.CallContext(ctx, &head, "eth_getBlockByNumber", blockNumArg(number), false); err != nil {
		return nil, fmt.Errorf("%s header: %w", c.chain, err)
	}
	if head == nil {
		return nil, fmt.Errorf("%s header: %w", c.chain, ethereum.NotFound)
	}
	return &Header{
		Number:     uint64(head.Number),
		Hash:       head.Hash,
		ParentHash: head.ParentHash,
		Time:       uint64(head.Time),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *RPCClient) Close() { c.raw.Close() }

type poaHeader struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
	Time       hexutil.Uint64 `json:"timestamp"`
	Extra      hexutil.Bytes  `json:"extraData"`
}

func blockNumArg(number *big.Int) string {
	if number == nil {
		return Latest
	}
	return hexutil.EncodeBig(number)
}

// Dialer resolves configured chain ids to connected clients.
type Dialer struct {
	chains  map[string]config.Chain
	timeout time.Duration
	log     *slog.Logger
}

// NewDialer builds a connector for the configured chains. A zero timeout disables handshake retries.
func NewDialer(chains []config.Chain, connectTimeout time.Duration, log *slog.Logger) *Dialer {
	if log == nil {
		log = slog.Default()
	}
	m := make(map[string]config.Chain, len(chains))
	for _, c := range chains {
		m[c.ID] = c
	}
	return &Dialer{chains: m, timeout: connectTimeout, log: log}
}

// Chains lists the configured chain ids in sorted order.
func (d *Dialer) Chains() []string {
	ids := make([]string, 0, len(d.chains))
	for id := range d.chains {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Connect dials the chain endpoint and validates it with eth_chainId.
func (d *Dialer) Connect(ctx context.Context, chainID string) (Client, error) {
	cfg, ok := d.chains[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %q (configured: %v)", ErrUnsupportedChain, chainID, d.Chains())
	}

	var client *RPCClient
	op := func() error {
		raw, err := rpc.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		eth := ethclient.NewClient(raw)
		id, err := eth.ChainID(ctx)
		if err != nil {
			raw.Close()
			return fmt.Errorf("eth_chainId: %w", err)
		}
		if cfg.ChainID != 0 && id.Uint64() != cfg.ChainID {
			raw.Close()
			return backoff.Permanent(fmt.Errorf("chain id mismatch: node reports %s, configured %d", id, cfg.ChainID))
		}
		client = &RPCClient{eth: eth, raw: raw, chain: cfg.ID, poa: cfg.POA}
		return nil
	}

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if d.timeout > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = 500 * time.Millisecond
		exp.MaxElapsedTime = d.timeout
		bo = exp
	}
	err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		d.log.Warn("connect retry", "chain", cfg.ID, "rpc_url", cfg.RPCURL, "error", err, "next", next)
	})
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		return nil, fmt.Errorf("%w: failed to connect to %s: %w", ErrConnection, cfg.ID, err)
	}
	return client, nil
}
