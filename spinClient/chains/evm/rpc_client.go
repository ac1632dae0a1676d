package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
)

// chainClient is the subset of *ethclient.Client the relay depends on.
type chainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	Close()
}

var _ chainClient = (*ethclient.Client)(nil)

// RPCClient provides the read and subscription side of one network.
// Reads fail over round-robin across the HTTP endpoints; subscriptions use the
// websocket endpoint when one is configured.
type RPCClient struct {
	clients []chainClient
	ws      chainClient
	index   uint64
	timeout time.Duration
	network string
	mu      sync.RWMutex
	logger  zerolog.Logger
}

// NewRPCClient dials every URL, verifies the chain id and keeps the endpoints that match.
// wsURL may be empty, in which case SubscribeLogs always fails.
func NewRPCClient(
	ctx context.Context,
	network string,
	rpcURLs []string,
	wsURL string,
	expectedChainID uint64,
	timeout time.Duration,
	logger zerolog.Logger,
) (*RPCClient, error) {
	if len(rpcURLs) == 0 {
		return nil, fmt.Errorf("no RPC URLs provided")
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	log := logger.With().Str("component", "evm_rpc_client").Str("network", network).Logger()
	probe := NewChainProbe(expectedChainID)

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clients := make([]chainClient, 0, len(rpcURLs))
	for _, url := range rpcURLs {
		client, err := dial(dialCtx, url, log)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("failed to connect to RPC endpoint, skipping")
			continue
		}

		if err := probe.checkChainID(dialCtx, client); err != nil {
			client.Close()
			log.Warn().Err(err).Str("url", url).Msg("chain ID verification failed, closing client")
			continue
		}

		clients = append(clients, client)
		log.Info().Str("url", url).Msg("connected to RPC endpoint")
	}

	if len(clients) == 0 {
		return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, network,
			"failed to connect to any valid RPC endpoints", nil)
	}

	rc := &RPCClient{
		clients: clients,
		timeout: timeout,
		network: network,
		logger:  log,
	}

	if wsURL != "" {
		ws, err := dial(dialCtx, wsURL, log)
		if err != nil {
			// The confirmation watcher falls back to polling without a live feed.
			log.Warn().Err(err).Str("url", wsURL).Msg("failed to connect to websocket endpoint")
		} else {
			rc.ws = ws
		}
	}

	return rc, nil
}

func dial(ctx context.Context, url string, log zerolog.Logger) (*ethclient.Client, error) {
	var client *ethclient.Client
	err := spinerrors.RetryWithConfig(ctx, func() error {
		var innerErr error
		client, innerErr = ethclient.DialContext(ctx, url)
		if innerErr != nil {
			return spinerrors.NewNetworkError("", "dial failed", innerErr)
		}
		return nil
	}, &spinerrors.RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    500 * time.Millisecond,
		MaxDelay:        2 * time.Second,
		Multiplier:      2,
		RetryableErrors: []spinerrors.ErrorCode{spinerrors.ErrCodeNetwork},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Debug().Err(err).Str("url", url).Int("attempt", attempt).Dur("wait", wait).Msg("retrying dial")
		},
	})
	return client, err
}

// newRPCClientWithClients builds a client over pre-constructed backends.
func newRPCClientWithClients(clients []chainClient, ws chainClient, logger zerolog.Logger) *RPCClient {
	return &RPCClient{
		clients: clients,
		ws:      ws,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// executeWithFailover executes a function with round-robin failover
func (rc *RPCClient) executeWithFailover(ctx context.Context, operation string, fn func(context.Context, chainClient) error) error {
	rc.mu.RLock()
	clients := rc.clients
	rc.mu.RUnlock()

	if len(clients) == 0 {
		return fmt.Errorf("no RPC clients available for %s", operation)
	}

	var lastErr error
	maxAttempts := len(clients)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		index := atomic.AddUint64(&rc.index, 1) - 1
		client := clients[index%uint64(len(clients))]

		callCtx, cancel := context.WithTimeout(ctx, rc.timeout)
		err := fn(callCtx, client)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		rc.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Err(err).
			Msg("operation failed, trying next endpoint")
	}

	return spinerrors.NewNetworkError(rc.network,
		fmt.Sprintf("operation %s failed after trying %d endpoints", operation, maxAttempts), lastErr)
}

// Probe runs probe against endpoints until one passes.
func (rc *RPCClient) Probe(ctx context.Context, probe *ChainProbe) error {
	return rc.executeWithFailover(ctx, "probe", func(ctx context.Context, client chainClient) error {
		return probe.Check(ctx, client)
	})
}

// CurrentBlock returns the latest block number.
func (rc *RPCClient) CurrentBlock(ctx context.Context) (uint64, error) {
	var blockNum uint64
	err := rc.executeWithFailover(ctx, "get_block_number", func(ctx context.Context, client chainClient) error {
		var innerErr error
		blockNum, innerErr = client.BlockNumber(ctx)
		return innerErr
	})
	return blockNum, err
}

// ReadCode returns the bytecode at addr; empty means no contract is deployed there.
func (rc *RPCClient) ReadCode(ctx context.Context, addr ethcommon.Address) ([]byte, error) {
	var code []byte
	err := rc.executeWithFailover(ctx, "get_code", func(ctx context.Context, client chainClient) error {
		var innerErr error
		code, innerErr = client.CodeAt(ctx, addr, nil)
		return innerErr
	})
	return code, err
}

// ReadBalance returns token.balanceOf(owner).
func (rc *RPCClient) ReadBalance(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error) {
	var balance *big.Int
	err := rc.call(ctx, "balance_of", token, ERC20ABI, "balanceOf", func(out []interface{}) {
		balance = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	}, owner)
	return balance, err
}

// ReadAllowance returns token.allowance(owner, spender).
func (rc *RPCClient) ReadAllowance(ctx context.Context, token, owner, spender ethcommon.Address) (*big.Int, error) {
	var allowance *big.Int
	err := rc.call(ctx, "allowance", token, ERC20ABI, "allowance", func(out []interface{}) {
		allowance = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	}, owner, spender)
	return allowance, err
}

// PermitNonce returns token.nonces(owner) for EIP-2612 permits.
func (rc *RPCClient) PermitNonce(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error) {
	var nonce *big.Int
	err := rc.call(ctx, "nonces", token, ERC20ABI, "nonces", func(out []interface{}) {
		nonce = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	}, owner)
	return nonce, err
}

// TokenDomain returns the token's EIP-712 domain name and version.
func (rc *RPCClient) TokenDomain(ctx context.Context, token ethcommon.Address) (string, string, error) {
	var name, version string
	if err := rc.call(ctx, "name", token, ERC20ABI, "name", func(out []interface{}) {
		name = *abi.ConvertType(out[0], new(string)).(*string)
	}); err != nil {
		return "", "", err
	}
	if err := rc.call(ctx, "version", token, ERC20ABI, "version", func(out []interface{}) {
		version = *abi.ConvertType(out[0], new(string)).(*string)
	}); err != nil {
		return "", "", err
	}
	return name, version, nil
}

// CallContract executes a raw eth_call against the latest block.
func (rc *RPCClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	var out []byte
	err := rc.executeWithFailover(ctx, "call_contract", func(ctx context.Context, client chainClient) error {
		var innerErr error
		out, innerErr = client.CallContract(ctx, msg, nil)
		return innerErr
	})
	return out, err
}

func (rc *RPCClient) call(
	ctx context.Context,
	operation string,
	to ethcommon.Address,
	contractABI abi.ABI,
	method string,
	assign func([]interface{}),
	args ...interface{},
) error {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s: %w", method, err)
	}

	raw, err := rc.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data})
	if err != nil {
		return err
	}

	out, err := contractABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("failed to unpack %s (%s): %w", method, operation, err)
	}
	if len(out) == 0 {
		return fmt.Errorf("empty result for %s", method)
	}
	assign(out)
	return nil
}

// GetLogs fetches historical logs matching the query.
func (rc *RPCClient) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	err := rc.executeWithFailover(ctx, "filter_logs", func(ctx context.Context, client chainClient) error {
		var innerErr error
		logs, innerErr = client.FilterLogs(ctx, query)
		return innerErr
	})
	return logs, err
}

// SubscribeLogs opens a live log subscription over the websocket endpoint.
func (rc *RPCClient) SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	rc.mu.RLock()
	ws := rc.ws
	rc.mu.RUnlock()

	if ws == nil {
		return nil, fmt.Errorf("no websocket endpoint configured for %s", rc.network)
	}
	return ws.SubscribeFilterLogs(ctx, query, ch)
}

// Close closes all RPC connections
func (rc *RPCClient) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	for _, client := range rc.clients {
		if client != nil {
			client.Close()
		}
	}
	rc.clients = nil
	if rc.ws != nil {
		rc.ws.Close()
		rc.ws = nil
	}
}
