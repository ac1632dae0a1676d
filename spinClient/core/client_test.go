package core

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/constant"
	"github.com/pushchain/spin-relay/spinClient/db"
	"github.com/pushchain/spin-relay/spinClient/delegation"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/health"
	"github.com/pushchain/spin-relay/spinClient/networks"
	"github.com/pushchain/spin-relay/spinClient/paymaster"
	"github.com/pushchain/spin-relay/spinClient/spin"
	"github.com/pushchain/spin-relay/spinClient/store"
	"github.com/pushchain/spin-relay/spinClient/watcher"
)

type fakeNetwork struct {
	balance *big.Int
}

func (n *fakeNetwork) ReadBalance(context.Context, ethcommon.Address, ethcommon.Address) (*big.Int, error) {
	return new(big.Int).Set(n.balance), nil
}

func (n *fakeNetwork) ReadAllowance(context.Context, ethcommon.Address, ethcommon.Address, ethcommon.Address) (*big.Int, error) {
	return new(big.Int).Set(evm.MaxApproval), nil
}

func (n *fakeNetwork) ReadCode(context.Context, ethcommon.Address) ([]byte, error) {
	return nil, nil
}

func (n *fakeNetwork) CurrentBlock(context.Context) (uint64, error) {
	return 100, nil
}

func (n *fakeNetwork) GetLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

func (n *fakeNetwork) SubscribeLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errors.New("no websocket endpoint")
}

type fakeStrategy struct{}

func (fakeStrategy) Kind() paymaster.Kind { return paymaster.KindSponsored }

func (fakeStrategy) Submit(context.Context, *paymaster.Submission) (ethcommon.Hash, error) {
	return ethcommon.Hash{0x01}, nil
}

type fakeConfirmer struct{}

func (fakeConfirmer) Await(_ context.Context, req watcher.Request) (*watcher.Confirmation, error) {
	return &watcher.Confirmation{
		Result: &evm.SpinResult{
			Player:      req.Player,
			TotWin:      big.NewInt(500_000),
			BonusPrize:  big.NewInt(0),
			BlockNumber: req.FromBlock + 1,
			TxHash:      ethcommon.Hash{0x02},
		},
		Path: "live",
	}, nil
}

type fakeDialer struct {
	mu     sync.Mutex
	dials  []string
	closed []string
	fail   map[string]bool
}

func (d *fakeDialer) dial(_ context.Context, profile networks.Profile) (*Backend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail[profile.Key] {
		return nil, errors.New("connection refused")
	}
	d.dials = append(d.dials, profile.Key)

	selector := paymaster.NewSelector(profile.Key, fakeStrategy{}, nil, big.NewInt(0), time.Minute, clock.NewMock(), zerolog.Nop())
	return NewBackend(profile, &fakeNetwork{balance: big.NewInt(10_000_000)}, selector, fakeConfirmer{}, func() {
		d.mu.Lock()
		d.closed = append(d.closed, profile.Key)
		d.mu.Unlock()
	}), nil
}

func (d *fakeDialer) snapshot() ([]string, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.dials...), append([]string(nil), d.closed...)
}

// extensionWallet behaves like an injected signer: it stays on its own chain until asked to switch.
type extensionWallet struct {
	*delegation.EmbeddedWallet
}

func (w extensionWallet) Class() delegation.Class { return delegation.ClassExtension }

func testProfile(name string, chainID uint64) networks.Profile {
	return networks.Profile{
		Name:                  name,
		ChainID:               chainID,
		PublicRPC:             "https://rpc.example.com",
		RelayURL:              "https://relay.example.com",
		ActionContract:        "0x1000000000000000000000000000000000000001",
		FeeToken:              "0x2000000000000000000000000000000000000002",
		EntryPoint:            "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		AccountFactory:        "0x3000000000000000000000000000000000000003",
		AccountImplementation: "0x4000000000000000000000000000000000000004",
	}
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultNetwork: "alpha",
		Networks: map[string]networks.Profile{
			"alpha": testProfile("Alpha", 1001),
			"beta":  testProfile("Beta", 1002),
		},
	}
}

func newEmbeddedWallet(t *testing.T) *delegation.EmbeddedWallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return delegation.NewEmbeddedWallet("test", key)
}

type fixture struct {
	client *Client
	dialer *fakeDialer
	db     *db.DB
}

func newFixture(t *testing.T, wallets []delegation.Wallet, prepare func(*db.DB)) *fixture {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	if prepare != nil {
		prepare(database)
	}

	dialer := &fakeDialer{fail: map[string]bool{}}
	if wallets == nil {
		wallets = []delegation.Wallet{}
	}
	c, err := NewClient(context.Background(), testConfig(), database, zerolog.New(zerolog.NewTestWriter(t)),
		WithDialer(dialer.dial),
		WithWallets(wallets),
		WithClock(clock.NewMock()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Stop() })
	return &fixture{client: c, dialer: dialer, db: database}
}

func TestNewClient(t *testing.T) {
	t.Run("fails without config", func(t *testing.T) {
		c, err := NewClient(context.Background(), nil, nil, zerolog.Nop())
		assert.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("fails with unknown default network", func(t *testing.T) {
		cfg := testConfig()
		cfg.DefaultNetwork = "gamma"
		c, err := NewClient(context.Background(), cfg, nil, zerolog.Nop(), WithDialer((&fakeDialer{}).dial))
		assert.Error(t, err)
		assert.Nil(t, c)
	})

	t.Run("fails when the startup network cannot be dialed", func(t *testing.T) {
		dialer := &fakeDialer{fail: map[string]bool{"alpha": true}}
		c, err := NewClient(context.Background(), testConfig(), nil, zerolog.Nop(), WithDialer(dialer.dial), WithWallets([]delegation.Wallet{}))
		require.Error(t, err)
		assert.Nil(t, c)
		assert.Contains(t, err.Error(), "alpha")
	})

	t.Run("starts on the default network", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		status := f.client.Status()
		assert.Equal(t, "alpha", status.Network)
		assert.Equal(t, uint64(1001), status.ChainID)
		assert.False(t, status.Ready)
		assert.Equal(t, health.StatusGood, status.Health.Status)
		require.NotNil(t, status.Payments)
		assert.True(t, status.Payments.SponsoredEnabled)
		assert.False(t, status.Payments.FeeTokenAvailable)
	})

	t.Run("starts on the stored network", func(t *testing.T) {
		f := newFixture(t, nil, func(d *db.DB) {
			require.NoError(t, d.SetPreference(constant.PreferenceSelectedNetwork, "beta"))
		})
		assert.Equal(t, "beta", f.client.Status().Network)
	})

	t.Run("ignores a stored network that is no longer configured", func(t *testing.T) {
		f := newFixture(t, nil, func(d *db.DB) {
			require.NoError(t, d.SetPreference(constant.PreferenceSelectedNetwork, "gamma"))
		})
		assert.Equal(t, "alpha", f.client.Status().Network)
	})
}

func TestSetup(t *testing.T) {
	t.Run("without a wallet", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		err := f.client.Setup(context.Background())
		require.Error(t, err)

		var spinErr *spinerrors.SpinError
		require.True(t, spinerrors.As(err, &spinErr))
		assert.Equal(t, spinerrors.SetupNoWallet, spinErr.Reason)

		status := f.client.Status()
		assert.False(t, status.Ready)
		assert.Equal(t, "no wallet available", status.SetupError)
	})

	t.Run("embedded wallet becomes ready", func(t *testing.T) {
		w := newEmbeddedWallet(t)
		f := newFixture(t, []delegation.Wallet{w}, nil)
		require.NoError(t, f.client.Setup(context.Background()))

		owners, err := w.RequestAccounts(context.Background())
		require.NoError(t, err)
		profile := testProfile("Alpha", 1001)
		expected := delegation.DeriveAccountAddress(profile.FactoryAddress(), profile.ImplementationAddress(), owners[0])

		status := f.client.Status()
		assert.True(t, status.Ready)
		assert.Empty(t, status.SetupError)
		assert.Equal(t, expected.Hex(), status.Account)
		assert.Equal(t, owners[0].Hex(), status.Owner)
		assert.Equal(t, string(delegation.ClassEmbedded), status.WalletType)
		assert.False(t, status.Deployed)

		info, ok := f.client.hub.Wallet()
		require.True(t, ok)
		assert.Equal(t, "alpha", info.Network)
	})

	t.Run("extension wallet on another chain records a pending switch", func(t *testing.T) {
		f := newFixture(t, []delegation.Wallet{extensionWallet{newEmbeddedWallet(t)}}, nil)
		err := f.client.Setup(context.Background())
		require.Error(t, err)

		status := f.client.Status()
		assert.False(t, status.Ready)
		assert.Equal(t, "alpha", status.PendingNetwork)

		require.NoError(t, f.client.ConfirmNetworkSwitch(context.Background()))
		status = f.client.Status()
		assert.True(t, status.Ready)
		assert.Empty(t, status.PendingNetwork)
		assert.Equal(t, string(delegation.ClassExtension), status.WalletType)

		dials, _ := f.dialer.snapshot()
		assert.Equal(t, []string{"alpha"}, dials)
	})
}

func TestSubmitSpin(t *testing.T) {
	t.Run("settles and persists", func(t *testing.T) {
		f := newFixture(t, []delegation.Wallet{newEmbeddedWallet(t)}, nil)
		require.NoError(t, f.client.Setup(context.Background()))

		id := f.client.SubmitSpin(context.Background(), spin.Intent{Bet: 0.1})
		assert.Equal(t, uint64(1), id)

		records, err := f.client.RecentSpins("alpha", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, store.SpinStatusSettled, records[0].Status)
		assert.Equal(t, string(paymaster.KindSponsored), records[0].Strategy)
		assert.Equal(t, "live", records[0].Path)
		assert.Equal(t, "0.5", records[0].TotWin)

		status := f.client.Status()
		assert.True(t, status.Deployed)
		assert.Equal(t, uint64(1), status.LatestRequestID)
		assert.Equal(t, health.StatusGood, status.Health.Status)
	})

	t.Run("fails without a delegation", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		f.client.SubmitSpin(context.Background(), spin.Intent{Bet: 0.2, Lines: 5})

		records, err := f.client.RecentSpins("", 10)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, store.SpinStatusFailed, records[0].Status)
		assert.Contains(t, records[0].ErrorMsg, "no active delegation")
		assert.Equal(t, health.StatusGood, f.client.Status().Health.Status)
	})
}

func TestSwitchNetwork(t *testing.T) {
	t.Run("unknown network", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		_, err := f.client.SwitchNetwork(context.Background(), "gamma")
		require.Error(t, err)
		assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeConfig))
		assert.Equal(t, "alpha", f.client.Status().Network)
	})

	t.Run("embedded wallet switches immediately", func(t *testing.T) {
		f := newFixture(t, []delegation.Wallet{newEmbeddedWallet(t)}, nil)
		require.NoError(t, f.client.Setup(context.Background()))

		result, err := f.client.SwitchNetwork(context.Background(), "beta")
		require.NoError(t, err)
		assert.Equal(t, "beta", result.Network)
		assert.False(t, result.ConfirmationRequired)

		status := f.client.Status()
		assert.Equal(t, "beta", status.Network)
		assert.Equal(t, uint64(1002), status.ChainID)
		assert.True(t, status.Ready)

		dials, closed := f.dialer.snapshot()
		assert.Equal(t, []string{"alpha", "beta"}, dials)
		assert.Equal(t, []string{"alpha"}, closed)

		stored, ok, err := f.db.GetPreference(constant.PreferenceSelectedNetwork)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "beta", stored)

		info, ok := f.client.hub.Wallet()
		require.True(t, ok)
		assert.Equal(t, "beta", info.Network)
	})

	t.Run("dial failure keeps the current network", func(t *testing.T) {
		f := newFixture(t, []delegation.Wallet{newEmbeddedWallet(t)}, nil)
		require.NoError(t, f.client.Setup(context.Background()))
		f.dialer.fail["beta"] = true

		_, err := f.client.SwitchNetwork(context.Background(), "beta")
		require.Error(t, err)
		assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeNetwork))

		status := f.client.Status()
		assert.Equal(t, "alpha", status.Network)
		assert.True(t, status.Ready)
	})

	t.Run("extension wallet waits for confirmation", func(t *testing.T) {
		w := extensionWallet{newEmbeddedWallet(t)}
		require.NoError(t, w.SwitchChain(context.Background(), testProfile("Alpha", 1001)))
		f := newFixture(t, []delegation.Wallet{w}, nil)
		require.NoError(t, f.client.Setup(context.Background()))

		result, err := f.client.SwitchNetwork(context.Background(), "beta")
		require.NoError(t, err)
		assert.True(t, result.ConfirmationRequired)

		status := f.client.Status()
		assert.Equal(t, "alpha", status.Network)
		assert.Equal(t, "beta", status.PendingNetwork)

		require.NoError(t, f.client.ConfirmNetworkSwitch(context.Background()))
		status = f.client.Status()
		assert.Equal(t, "beta", status.Network)
		assert.Empty(t, status.PendingNetwork)
		assert.True(t, status.Ready)

		chainID, err := w.CurrentChain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(1002), chainID)
	})

	t.Run("confirm without a pending switch", func(t *testing.T) {
		f := newFixture(t, nil, nil)
		err := f.client.ConfirmNetworkSwitch(context.Background())
		require.Error(t, err)
		assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeValidation))
	})
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t, []delegation.Wallet{newEmbeddedWallet(t)}, nil)
	require.NoError(t, f.client.Setup(context.Background()))
	require.True(t, f.client.Status().Ready)

	f.client.Disconnect()

	status := f.client.Status()
	assert.False(t, status.Ready)
	assert.Equal(t, "alpha", status.Network)
	_, ok := f.client.hub.Wallet()
	assert.False(t, ok)

	require.NoError(t, f.client.Setup(context.Background()))
	assert.True(t, f.client.Status().Ready)
}

func TestNetworks(t *testing.T) {
	f := newFixture(t, nil, nil)
	nets := f.client.Networks()
	require.Len(t, nets, 2)
	assert.Equal(t, "alpha", nets[0].Key)
	assert.True(t, nets[0].Active)
	assert.Equal(t, "beta", nets[1].Key)
	assert.False(t, nets[1].Active)
}

func TestHandlerServesStatus(t *testing.T) {
	f := newFixture(t, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	f.client.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"network":"alpha"`)
}
