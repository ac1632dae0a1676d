// Package bundler talks to the operation relay: an ERC-4337 bundler that also
// exposes the sponsoring paymaster and gas price RPC methods.
package bundler

import (
	"context"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"

	"github.com/pushchain/spin-relay/spinClient/userop"
)

const (
	methodSend        = "eth_sendUserOperation"
	methodEstimate    = "eth_estimateUserOperationGas"
	methodSponsor     = "zd_sponsorUserOperation"
	methodGasPrice    = "pimlico_getUserOperationGasPrice"
	methodSupportedEP = "eth_supportedEntryPoints"
)

// rpcCaller is satisfied by *rpc.Client.
type rpcCaller interface {
	CallContext(ctx context.Context, result interface{}, method string, args ...interface{}) error
	Close()
}

// Client is the operation relay client for one network.
type Client struct {
	relay      rpcCaller
	gasPrice   rpcCaller
	chainID    *big.Int
	entryPoint ethcommon.Address
	logger     zerolog.Logger
}

// Dial connects to the relay and gas price endpoints. gasPriceURL may equal relayURL.
func Dial(
	ctx context.Context,
	relayURL, gasPriceURL string,
	chainID *big.Int,
	entryPoint ethcommon.Address,
	logger zerolog.Logger,
) (*Client, error) {
	relay, err := rpc.DialContext(ctx, relayURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial operation relay: %w", err)
	}

	gas := relay
	if gasPriceURL != "" && gasPriceURL != relayURL {
		gas, err = rpc.DialContext(ctx, gasPriceURL)
		if err != nil {
			relay.Close()
			return nil, fmt.Errorf("failed to dial gas price endpoint: %w", err)
		}
	}

	return newClient(relay, gas, chainID, entryPoint, logger), nil
}

func newClient(relay, gas rpcCaller, chainID *big.Int, entryPoint ethcommon.Address, logger zerolog.Logger) *Client {
	return &Client{
		relay:      relay,
		gasPrice:   gas,
		chainID:    new(big.Int).Set(chainID),
		entryPoint: entryPoint,
		logger:     logger.With().Str("component", "bundler").Logger(),
	}
}

// EntryPoint returns the EntryPoint operations are submitted to.
func (c *Client) EntryPoint() ethcommon.Address {
	return c.entryPoint
}

// SendUserOperation submits a signed operation and returns its hash.
func (c *Client) SendUserOperation(ctx context.Context, op *userop.UserOperation) (ethcommon.Hash, error) {
	var hash ethcommon.Hash
	if err := c.relay.CallContext(ctx, &hash, methodSend, op, c.entryPoint); err != nil {
		return ethcommon.Hash{}, fmt.Errorf("%s: %w", methodSend, err)
	}
	c.logger.Debug().Str("user_op_hash", hash.Hex()).Str("sender", op.Sender.Hex()).Msg("operation submitted")
	return hash, nil
}

// EstimateUserOperationGas asks the bundler for gas limits.
func (c *Client) EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*userop.GasEstimate, error) {
	var est userop.GasEstimate
	if err := c.relay.CallContext(ctx, &est, methodEstimate, op, c.entryPoint); err != nil {
		return nil, fmt.Errorf("%s: %w", methodEstimate, err)
	}
	if est.CallGasLimit == nil || est.VerificationGasLimit == nil || est.PreVerificationGas == nil {
		return nil, fmt.Errorf("%s: incomplete gas estimate", methodEstimate)
	}
	return &est, nil
}

type sponsorRequest struct {
	ChainID           uint64                `json:"chainId"`
	UserOp            *userop.UserOperation `json:"userOp"`
	EntryPointAddress ethcommon.Address     `json:"entryPointAddress"`
	ShouldOverrideFee bool                  `json:"shouldOverrideFee"`
	ShouldConsume     bool                  `json:"shouldConsume"`
}

// SponsorUserOperation asks the sponsoring paymaster to cover op.
func (c *Client) SponsorUserOperation(ctx context.Context, op *userop.UserOperation) (*userop.Sponsorship, error) {
	req := sponsorRequest{
		ChainID:           c.chainID.Uint64(),
		UserOp:            op,
		EntryPointAddress: c.entryPoint,
		ShouldConsume:     true,
	}

	var s userop.Sponsorship
	if err := c.relay.CallContext(ctx, &s, methodSponsor, req); err != nil {
		return nil, fmt.Errorf("%s: %w", methodSponsor, err)
	}
	if s.Paymaster == (ethcommon.Address{}) {
		return nil, fmt.Errorf("%s: response carries no paymaster", methodSponsor)
	}
	return &s, nil
}

// GasPrice returns the bundler's fee recommendation.
func (c *Client) GasPrice(ctx context.Context) (*userop.GasPriceTiers, error) {
	var tiers userop.GasPriceTiers
	if err := c.gasPrice.CallContext(ctx, &tiers, methodGasPrice); err != nil {
		return nil, fmt.Errorf("%s: %w", methodGasPrice, err)
	}
	return &tiers, nil
}

// SupportsEntryPoint reports whether the bundler accepts the configured EntryPoint.
func (c *Client) SupportsEntryPoint(ctx context.Context) (bool, error) {
	var eps []ethcommon.Address
	if err := c.relay.CallContext(ctx, &eps, methodSupportedEP); err != nil {
		return false, fmt.Errorf("%s: %w", methodSupportedEP, err)
	}
	for _, ep := range eps {
		if ep == c.entryPoint {
			return true, nil
		}
	}
	return false, nil
}

// Close releases both connections.
func (c *Client) Close() {
	c.relay.Close()
	if c.gasPrice != c.relay {
		c.gasPrice.Close()
	}
}
