package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/pushchain/spin-relay/spinClient/api"
	"github.com/pushchain/spin-relay/spinClient/bridge"
	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/constant"
	"github.com/pushchain/spin-relay/spinClient/db"
	"github.com/pushchain/spin-relay/spinClient/delegation"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/health"
	"github.com/pushchain/spin-relay/spinClient/metrics"
	"github.com/pushchain/spin-relay/spinClient/networks"
	"github.com/pushchain/spin-relay/spinClient/spin"
	"github.com/pushchain/spin-relay/spinClient/store"
)

const deploymentCacheSize = 256

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the production backend dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithWallets replaces the wallets loaded from config.
func WithWallets(wallets []delegation.Wallet) Option {
	return func(c *Client) { c.wallets = wallets }
}

// WithClock replaces the wall clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// Client is the relay session: it owns the delegation, the per-network backend,
// the spin orchestrator, the game bridge and the HTTP API.
type Client struct {
	ctx      context.Context
	cfg      *config.Config
	db       *db.DB
	log      zerolog.Logger
	clock    clock.Clock
	dial     Dialer
	wallets  []delegation.Wallet
	registry *networks.Registry

	delegations *delegation.Manager
	health      *health.Tracker
	hub         *bridge.Hub
	orch        *spin.Orchestrator
	server      *api.Server

	mu       sync.RWMutex
	backend  *Backend
	pending  string
	setupErr error
}

var _ api.RelayClient = (*Client)(nil)

// NewClient wires every component and dials the startup network: the stored
// preference if it still names a configured network, otherwise the default.
func NewClient(ctx context.Context, cfg *config.Config, database *db.DB, log zerolog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	registry, err := networks.NewRegistry(cfg.Networks, cfg.DefaultNetwork)
	if err != nil {
		return nil, err
	}

	c := &Client{
		ctx:      ctx,
		cfg:      cfg,
		db:       database,
		log:      log.With().Str("component", "core").Logger(),
		registry: registry,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = clock.New()
	}
	if c.dial == nil {
		c.dial = NewDialer(cfg, log)
	}
	if c.wallets == nil {
		wallets, errs := delegation.LoadWallets(ctx, cfg.Wallets)
		for _, werr := range errs {
			c.log.Warn().Err(werr).Msg("skipping wallet")
		}
		c.wallets = wallets
	}

	profile := c.startupProfile()
	backend, err := c.dial(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", profile.Key, err)
	}
	c.backend = backend

	cache, err := delegation.NewDeploymentCache(deploymentCacheSize, log)
	if err != nil {
		backend.Close()
		return nil, err
	}
	c.delegations = delegation.NewManager(c.wallets, profile, backend.Network, cache, log)
	c.health = health.NewTracker()
	c.hub = bridge.NewHub(c.onIntent, cfg.BridgeAllowedOrigins, log)

	var recorder spin.Recorder
	if database != nil {
		recorder = database
	}
	c.orch = spin.NewOrchestrator(spinConfig(cfg), c.delegations, c.health, c.hub, recorder, c.clock, log)
	c.orch.SetBackend(backend.Spin())
	c.server = api.NewServer(log, cfg.QueryServerPort, c, c.hub)

	c.log.Info().
		Str("network", profile.Key).
		Int("wallets", len(c.wallets)).
		Msg("relay client initialized")
	return c, nil
}

func spinConfig(cfg *config.Config) spin.Config {
	sc := spin.DefaultConfig()
	if cfg.Spin.MinBet > 0 {
		sc.MinBet = decimal.NewFromFloat(cfg.Spin.MinBet)
	}
	if cfg.Spin.MaxBet > 0 {
		sc.MaxBet = decimal.NewFromFloat(cfg.Spin.MaxBet)
	}
	if cfg.Spin.DefaultPaylines > 0 && cfg.Spin.DefaultPaylines <= 255 {
		sc.DefaultLines = uint8(cfg.Spin.DefaultPaylines)
	}
	if d := cfg.Spin.RevalidateDelay(); d > 0 {
		sc.RevalidateDelay = d
	}
	return sc
}

func (c *Client) startupProfile() networks.Profile {
	if c.db == nil {
		return c.registry.Default()
	}
	key, ok, err := c.db.GetPreference(constant.PreferenceSelectedNetwork)
	if err != nil {
		c.log.Warn().Err(err).Msg("failed to read network preference")
		return c.registry.Default()
	}
	if !ok {
		return c.registry.Default()
	}
	profile, found := c.registry.Resolve(key)
	if !found {
		c.log.Warn().Str("network", key).Msg("stored network is no longer configured, using default")
		return c.registry.Default()
	}
	return profile
}

func (c *Client) onIntent(in spin.Intent) {
	go c.SubmitSpin(c.ctx, in)
}

// Start serves the API and bridge, runs the initial setup and blocks until ctx is done.
func (c *Client) Start(ctx context.Context) error {
	c.log.Info().Msg("🚀 Starting spin relay...")
	if err := c.server.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	c.log.Info().Int("port", c.cfg.QueryServerPort).Msg("✅ API server started")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Setup(gctx); err != nil {
			// Not fatal: the game surface can retry through POST /api/v1/setup.
			c.log.Warn().Err(err).Msg("initial setup failed")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		c.log.Info().Msg("🛑 Shutting down spin relay...")
		return c.Stop()
	})
	return g.Wait()
}

// Stop releases every resource the client owns.
func (c *Client) Stop() error {
	c.delegations.Teardown()
	c.hub.Close()

	c.mu.Lock()
	backend := c.backend
	c.backend = nil
	c.mu.Unlock()
	c.orch.SetBackend(nil)
	if backend != nil {
		backend.Close()
	}

	var firstErr error
	if err := c.server.Stop(); err != nil {
		firstErr = err
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handler exposes the routed HTTP handler.
func (c *Client) Handler() http.Handler {
	return c.server.Handler()
}

// Setup waits out the setup delay, then selects a wallet and mints a session delegation
// for the current network. On success the game surface receives the wallet message.
func (c *Client) Setup(ctx context.Context) error {
	if d := c.cfg.Setup.SetupDelay(); d > 0 {
		timer := c.clock.Timer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	c.mu.RLock()
	backend := c.backend
	c.mu.RUnlock()
	if backend == nil {
		return spinerrors.NewSetupError(spinerrors.SetupNotReady, "", "no network selected", nil)
	}
	network := backend.Profile.Key

	d, err := c.delegations.Setup(ctx)
	metrics.SetupsTotal.WithLabelValues(network, metrics.ResultLabel(err)).Inc()
	if err != nil {
		var spinErr *spinerrors.SpinError
		c.mu.Lock()
		c.setupErr = err
		if spinerrors.As(err, &spinErr) && spinErr.Reason == spinerrors.SetupWrongChain {
			c.pending = network
		}
		c.mu.Unlock()
		c.hub.SetWallet(nil)
		c.log.Warn().Err(err).Str("network", network).Msg("setup failed")
		return err
	}

	c.mu.Lock()
	c.setupErr = nil
	if c.pending == network {
		c.pending = ""
	}
	c.mu.Unlock()

	backend.Selector.Start()
	info := bridge.NewWalletInfo(d.Account.Hex(), d.NetworkKey, string(d.WalletClass))
	c.hub.SetWallet(&info)
	return nil
}

// SubmitSpin runs one intent through the orchestrator and returns its request id.
func (c *Client) SubmitSpin(ctx context.Context, in spin.Intent) uint64 {
	return c.orch.Handle(ctx, in)
}

// SwitchNetwork persists the selection and moves the session to key. With an extension
// wallet the wallet must follow first, so the change is held until ConfirmNetworkSwitch.
func (c *Client) SwitchNetwork(ctx context.Context, key string) (api.SwitchResult, error) {
	profile, err := c.registry.Get(key)
	if err != nil {
		return api.SwitchResult{}, spinerrors.NewConfigError(err.Error())
	}

	if c.db != nil {
		if err := c.db.SetPreference(constant.PreferenceSelectedNetwork, key); err != nil {
			c.log.Warn().Err(err).Str("network", key).Msg("failed to persist network preference")
		}
	}

	if w, ok := c.delegations.SelectedWallet(); ok && w.Class() == delegation.ClassExtension {
		c.mu.Lock()
		c.pending = key
		c.mu.Unlock()
		c.log.Info().Str("network", key).Str("provider", w.Provider()).Msg("network switch awaiting wallet confirmation")
		return api.SwitchResult{Network: key, ConfirmationRequired: true}, nil
	}

	if err := c.apply(ctx, profile); err != nil {
		return api.SwitchResult{}, err
	}
	return api.SwitchResult{Network: key}, c.Setup(ctx)
}

// ConfirmNetworkSwitch asks the wallet to move to the pending network, waits for it to
// settle and then applies the switch.
func (c *Client) ConfirmNetworkSwitch(ctx context.Context) error {
	c.mu.RLock()
	key := c.pending
	c.mu.RUnlock()
	if key == "" {
		return spinerrors.NewValidationError("no network switch pending")
	}
	profile, err := c.registry.Get(key)
	if err != nil {
		return spinerrors.NewConfigError(err.Error())
	}

	w, ok := c.delegations.SelectedWallet()
	if !ok {
		return spinerrors.NewSetupError(spinerrors.SetupNoWallet, key, "no wallet available", nil)
	}
	if err := w.SwitchChain(ctx, profile); err != nil {
		return spinerrors.NewSetupError(spinerrors.SetupProvider, key, "wallet rejected the network switch", err)
	}

	if d := c.cfg.Setup.NetworkSwitchSettle(); d > 0 {
		timer := c.clock.Timer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	if c.currentKey() != key {
		if err := c.apply(ctx, profile); err != nil {
			return err
		}
	}
	c.mu.Lock()
	c.pending = ""
	c.mu.Unlock()
	return c.Setup(ctx)
}

// apply dials profile and swaps it in. The old backend keeps serving if dialing fails.
func (c *Client) apply(ctx context.Context, profile networks.Profile) error {
	backend, err := c.dial(ctx, profile)
	if err != nil {
		return spinerrors.NewNetworkError(profile.Key, "failed to connect to network", err)
	}

	c.delegations.SetProfile(profile, backend.Network)
	c.hub.SetWallet(nil)

	c.mu.Lock()
	old := c.backend
	c.backend = backend
	c.setupErr = nil
	c.mu.Unlock()
	c.orch.SetBackend(backend.Spin())
	if old != nil {
		old.Close()
	}

	c.log.Info().Str("network", profile.Key).Uint64("chain_id", profile.ChainID).Msg("switched network")
	return nil
}

// Disconnect drops the delegation and cancels sponsored recovery. The backend stays dialed.
func (c *Client) Disconnect() {
	c.delegations.Teardown()
	c.mu.Lock()
	backend := c.backend
	c.pending = ""
	c.setupErr = nil
	c.mu.Unlock()
	if backend != nil {
		backend.Selector.Stop()
	}
	c.hub.SetWallet(nil)
	c.log.Info().Msg("disconnected")
}

func (c *Client) currentKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.backend == nil {
		return ""
	}
	return c.backend.Profile.Key
}

// Status reports the session state.
func (c *Client) Status() api.Status {
	c.mu.RLock()
	backend := c.backend
	pending := c.pending
	setupErr := c.setupErr
	c.mu.RUnlock()

	s := api.Status{
		PendingNetwork:  pending,
		Health:          c.health.Snapshot(),
		LatestRequestID: c.orch.LatestID(),
		BridgeClients:   c.hub.Clients(),
	}
	if backend != nil {
		s.Network = backend.Profile.Key
		s.ChainID = backend.Profile.ChainID
		state := backend.Selector.State()
		s.Payments = &state
	}
	if setupErr != nil {
		s.SetupError = setupMessage(setupErr)
	}
	if d, err := c.delegations.Active(); err == nil {
		s.Ready = true
		s.Account = d.Account.Hex()
		s.Owner = d.Owner.Hex()
		s.Deployed = d.Deployed
		s.WalletType = string(d.WalletClass)
	}
	return s
}

// Networks lists the configured networks.
func (c *Client) Networks() []api.NetworkInfo {
	active := c.currentKey()
	profiles := c.registry.All()
	out := make([]api.NetworkInfo, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, api.NetworkInfo{
			Key:                     p.Key,
			Name:                    p.Name,
			ChainID:                 p.ChainID,
			SupportsFeeTokenPayment: p.SupportsFeeTokenPayment,
			Active:                  p.Key == active,
		})
	}
	return out
}

// RecentSpins returns persisted spin history, newest first.
func (c *Client) RecentSpins(network string, limit int) ([]store.SpinRecord, error) {
	if c.db == nil {
		return []store.SpinRecord{}, nil
	}
	return c.db.RecentSpins(network, limit)
}

func setupMessage(err error) string {
	var spinErr *spinerrors.SpinError
	if spinerrors.As(err, &spinErr) {
		return spinErr.Message
	}
	return spinerrors.ShortMessage(err)
}
