package core

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/pushchain/spin-relay/spinClient/bundler"
	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/networks"
	"github.com/pushchain/spin-relay/spinClient/paymaster"
	"github.com/pushchain/spin-relay/spinClient/spin"
	"github.com/pushchain/spin-relay/spinClient/userop"
	"github.com/pushchain/spin-relay/spinClient/watcher"
)

// Backend is the set of clients bound to one network.
type Backend struct {
	Profile   networks.Profile
	Network   spin.Network
	Selector  *paymaster.Selector
	Confirmer spin.Confirmer

	closeFn func()
}

// NewBackend assembles a backend from already constructed parts. closeFn may be nil.
func NewBackend(profile networks.Profile, network spin.Network, selector *paymaster.Selector, confirmer spin.Confirmer, closeFn func()) *Backend {
	return &Backend{
		Profile:   profile,
		Network:   network,
		Selector:  selector,
		Confirmer: confirmer,
		closeFn:   closeFn,
	}
}

// Spin returns the orchestrator's view of the backend.
func (b *Backend) Spin() *spin.Backend {
	return &spin.Backend{
		Profile:   b.Profile,
		Network:   b.Network,
		Payments:  b.Selector,
		Confirmer: b.Confirmer,
	}
}

// Close cancels sponsored recovery and releases connections.
func (b *Backend) Close() {
	if b.Selector != nil {
		b.Selector.Stop()
	}
	if b.closeFn != nil {
		b.closeFn()
	}
}

// Dialer builds the backend for a network.
type Dialer func(ctx context.Context, profile networks.Profile) (*Backend, error)

// NewDialer returns the production dialer: chain RPC, operation relay, draft builder,
// both gas payment strategies and the confirmation watcher.
func NewDialer(cfg *config.Config, logger zerolog.Logger) Dialer {
	return func(ctx context.Context, profile networks.Profile) (*Backend, error) {
		rpcClient, err := evm.NewRPCClient(
			ctx,
			profile.Key,
			[]string{profile.PublicRPC},
			profile.SubscriptionEndpoint(),
			profile.ChainID,
			cfg.RPCRequestTimeout(),
			logger,
		)
		if err != nil {
			return nil, err
		}
		probe := evm.NewChainProbe(profile.ChainID, profile.EntryPointAddress(), profile.FactoryAddress())
		if err := rpcClient.Probe(ctx, probe); err != nil {
			logger.Warn().Err(err).Str("network", profile.Key).Msg("account contracts not verified on chain")
		}

		relay, err := bundler.Dial(ctx, profile.RelayURL, profile.GasPriceEndpoint(), profile.ChainIDBig(), profile.EntryPointAddress(), logger)
		if err != nil {
			rpcClient.Close()
			return nil, fmt.Errorf("failed to connect operation relay for %s: %w", profile.Key, err)
		}

		builder := userop.NewBuilder(profile.EntryPointAddress(), rpcClient, relay)
		reserve := big.NewInt(cfg.Spin.FeeReserveUnits)

		var feeToken paymaster.Strategy
		if profile.SupportsFeeTokenPayment {
			feeToken = paymaster.NewFeeTokenStrategy(
				relay,
				builder,
				rpcClient,
				profile.FeeTokenAddress(),
				profile.PaymasterAddress(),
				profile.ChainIDBig(),
				reserve,
			)
		}
		selector := paymaster.NewSelector(
			profile.Key,
			paymaster.NewSponsoredStrategy(relay, builder),
			feeToken,
			reserve,
			cfg.Paymaster.SponsorRecovery(),
			nil,
			logger,
		)

		confirmer := watcher.New(profile.Key, rpcClient, watcher.Config{
			FallbackDelay: cfg.Confirmation.FallbackDelay(),
			PollRetries:   cfg.Confirmation.PollRetries,
			PollInterval:  cfg.Confirmation.PollInterval(),
		}, nil, logger)

		return NewBackend(profile, rpcClient, selector, confirmer, func() {
			relay.Close()
			rpcClient.Close()
		}), nil
	}
}
