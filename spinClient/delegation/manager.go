// Package delegation establishes the primary smart account for an external signer and
// the session key that acts for it.
package delegation

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/networks"
)

// Delegation is the current session: primary account, session key and its approval.
type Delegation struct {
	Owner       ethcommon.Address
	Account     ethcommon.Address
	Deployed    bool
	WalletClass Class
	NetworkKey  string
	ChainID     uint64
	SessionKey  *ecdsa.PrivateKey
	Approval    string
	Session     *SessionAccount
}

// Manager owns the process-wide delegation. A delegation lives until the next setup,
// a network change or a teardown.
type Manager struct {
	mu         sync.RWMutex
	wallets    []Wallet
	profile    networks.Profile
	reader     CodeReader
	cache      *DeploymentCache
	current    *Delegation
	generation uint64
	now        func() time.Time
	logger     zerolog.Logger
}

// NewManager creates a manager for profile.
func NewManager(wallets []Wallet, profile networks.Profile, reader CodeReader, cache *DeploymentCache, logger zerolog.Logger) *Manager {
	return &Manager{
		wallets: wallets,
		profile: profile,
		reader:  reader,
		cache:   cache,
		now:     time.Now,
		logger:  logger.With().Str("component", "delegation_manager").Logger(),
	}
}

// Profile returns the network the manager currently targets.
func (m *Manager) Profile() networks.Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// Wallets returns the configured signers.
func (m *Manager) Wallets() []Wallet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Wallet(nil), m.wallets...)
}

// SelectedWallet returns the signer setup would use.
func (m *Manager) SelectedWallet() (Wallet, bool) {
	return SelectWallet(m.Wallets())
}

// Setup selects a signer, derives the primary account and mints a new session delegation,
// replacing the current one. Requests holding the replaced delegation run to completion.
func (m *Manager) Setup(ctx context.Context) (*Delegation, error) {
	m.mu.RLock()
	profile := m.profile
	reader := m.reader
	generation := m.generation
	m.mu.RUnlock()

	wallet, ok := SelectWallet(m.Wallets())
	if !ok {
		return nil, spinerrors.NewSetupError(spinerrors.SetupNoWallet, profile.Key, "no wallet available", nil)
	}
	log := m.logger.With().Str("network", profile.Key).Str("wallet_type", string(wallet.Class())).Logger()

	if wallet.Class() == ClassExtension {
		chainID, err := wallet.CurrentChain(ctx)
		if err != nil {
			return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, profile.Key, "failed to read wallet chain", err)
		}
		if chainID != profile.ChainID {
			log.Info().Uint64("wallet_chain", chainID).Uint64("target_chain", profile.ChainID).Msg("wallet on wrong chain, network switch required")
			return nil, spinerrors.NewSetupError(spinerrors.SetupWrongChain, profile.Key, "wallet is connected to another chain", nil).
				WithContext("wallet_chain_id", chainID).
				WithContext("target_chain_id", profile.ChainID)
		}
	} else if wallet.Class() == ClassEmbedded {
		if err := wallet.SwitchChain(ctx, profile); err != nil {
			return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, profile.Key, "failed to bind wallet to network", err)
		}
	}

	addrs, err := wallet.RequestAccounts(ctx)
	if err != nil {
		return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, profile.Key, "failed to request accounts", err)
	}
	if len(addrs) == 0 {
		return nil, spinerrors.NewSetupError(spinerrors.SetupNoWallet, profile.Key, "wallet exposes no accounts", nil)
	}
	owner := addrs[0]

	account := DeriveAccountAddress(profile.FactoryAddress(), profile.ImplementationAddress(), owner)
	deployed := m.cache.IsDeployed(ctx, reader, account)

	sessionKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, spinerrors.NewInternalError(profile.Key, "failed to generate session key", err)
	}
	sessionAddr := crypto.PubkeyToAddress(sessionKey.PublicKey)

	approval := &Approval{
		Account:      account,
		Owner:        owner,
		SessionKey:   sessionAddr,
		PermissionID: PermissionIDFor(sessionAddr),
		Policy:       PolicySudo,
		ChainID:      profile.ChainID,
		IssuedAt:     uint64(m.now().Unix()),
	}
	sig, err := wallet.SignTypedData(ctx, owner, approval.TypedData())
	if err != nil {
		zeroKey(sessionKey)
		return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, profile.Key, "owner declined to enable session key", err)
	}
	approval.Signature = sig

	serialized, err := approval.Serialize()
	if err != nil {
		zeroKey(sessionKey)
		return nil, spinerrors.NewInternalError(profile.Key, "failed to serialize approval", err)
	}
	session, err := Rehydrate(serialized, sessionKey, profile)
	if err != nil {
		zeroKey(sessionKey)
		return nil, spinerrors.NewSetupError(spinerrors.SetupProvider, profile.Key, "approval does not verify", err)
	}

	d := &Delegation{
		Owner:       owner,
		Account:     account,
		Deployed:    deployed,
		WalletClass: wallet.Class(),
		NetworkKey:  profile.Key,
		ChainID:     profile.ChainID,
		SessionKey:  sessionKey,
		Approval:    serialized,
		Session:     session,
	}

	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		zeroKey(sessionKey)
		return nil, spinerrors.NewSetupError(spinerrors.SetupNotReady, profile.Key, "network changed during setup", nil)
	}
	m.current = d
	m.mu.Unlock()

	log.Info().
		Str("owner", owner.Hex()).
		Str("account", account.Hex()).
		Bool("deployed", deployed).
		Msg("session delegation established")
	return d, nil
}

// Active returns the current delegation.
func (m *Manager) Active() (*Delegation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil, spinerrors.NewSetupError(spinerrors.SetupNotReady, m.profile.Key, "no active delegation", nil)
	}
	return m.current, nil
}

// RefreshDeployed re-checks deployment for an account not yet known to be deployed.
func (m *Manager) RefreshDeployed(ctx context.Context) bool {
	m.mu.RLock()
	d := m.current
	reader := m.reader
	known := d != nil && d.Deployed
	m.mu.RUnlock()
	if d == nil {
		return false
	}
	if known {
		return true
	}

	deployed := m.cache.IsDeployed(ctx, reader, d.Account)
	if deployed {
		m.setDeployed(d)
	}
	return deployed
}

// MarkDeployed records that the active account now exists on chain.
func (m *Manager) MarkDeployed() {
	m.mu.RLock()
	d := m.current
	m.mu.RUnlock()
	if d == nil {
		return
	}
	m.cache.MarkDeployed(d.Account)
	m.setDeployed(d)
}

func (m *Manager) setDeployed(d *Delegation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == d {
		d.Deployed = true
	}
}

// Teardown clears the delegation. A request already holding the old session keeps
// signing with it until it finishes; published keys are never zeroed in place.
func (m *Manager) Teardown() {
	m.mu.Lock()
	previous := m.current
	m.current = nil
	m.generation++
	m.mu.Unlock()

	if previous != nil {
		m.logger.Info().Str("network", previous.NetworkKey).Msg("session delegation torn down")
	}
}

// SetProfile switches the target network. Any delegation minted for the old network is torn down.
func (m *Manager) SetProfile(profile networks.Profile, reader CodeReader) {
	m.Teardown()
	m.mu.Lock()
	m.profile = profile
	m.reader = reader
	m.mu.Unlock()
}

// zeroKey wipes a key that was never published through Active.
func zeroKey(key *ecdsa.PrivateKey) {
	if key == nil || key.D == nil {
		return
	}
	words := key.D.Bits()
	for i := range words {
		words[i] = 0
	}
	key.D.SetInt64(0)
}
