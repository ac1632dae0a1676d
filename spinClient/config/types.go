package config

import (
	"time"

	"github.com/pushchain/spin-relay/spinClient/networks"
)

// WalletType names a signer class. Priority during setup is embedded > extension > generic.
type WalletType string

const (
	// WalletTypeEmbedded is a custodial key held by the relay itself (keystore or hex key)
	WalletTypeEmbedded WalletType = "embedded"

	// WalletTypeExtension is an injected signer reached over JSON-RPC (browser bridge, Frame, Clef)
	WalletTypeExtension WalletType = "extension"

	// WalletTypeGeneric is any other JSON-RPC signer
	WalletTypeGeneric WalletType = "generic"
)

type Config struct {
	// Log Config
	LogLevel   int    `json:"log_level"`   // e.g., 0 = debug, 1 = info, etc.
	LogFormat  string `json:"log_format"`  // "json" or "console"
	LogSampler bool   `json:"log_sampler"` // if true, samples logs (e.g., 1 in 5)

	// Node Config
	NodeHome string `json:"node_home"` // Node home directory (default: ~/.pspin)

	// Query Server Config
	QueryServerPort int `json:"query_server_port"` // Port for HTTP/WebSocket server (default: 8080)

	// Origins allowed to open the game bridge websocket. Empty allows any origin.
	BridgeAllowedOrigins []string `json:"bridge_allowed_origins,omitempty"`

	// Network profiles keyed by network key, and the one used when no preference is stored
	DefaultNetwork string                      `json:"default_network"`
	Networks       map[string]networks.Profile `json:"networks"`

	// Signers available for delegation setup
	Wallets []WalletConfig `json:"wallets"`

	Spin         SpinConfig         `json:"spin"`
	Confirmation ConfirmationConfig `json:"confirmation"`
	Paymaster    PaymasterConfig    `json:"paymaster"`
	Setup        SetupConfig        `json:"setup"`

	RPCRequestTimeoutSeconds int `json:"rpc_request_timeout_seconds"` // Per-call timeout for chain reads (default: 10)
}

// WalletConfig describes one external signer.
type WalletConfig struct {
	Type WalletType `json:"type"`
	Name string     `json:"name,omitempty"`

	// Embedded wallets
	KeystorePath        string `json:"keystore_path,omitempty"`
	KeystorePasswordEnv string `json:"keystore_password_env,omitempty"` // env var holding the keystore password
	PrivateKeyEnv       string `json:"private_key_env,omitempty"`       // env var holding a hex private key

	// Extension / generic wallets
	RPCURL string `json:"rpc_url,omitempty"`
}

// SpinConfig bounds and defaults for inbound spin intents.
type SpinConfig struct {
	MinBet            float64 `json:"min_bet"`
	MaxBet            float64 `json:"max_bet"`
	DefaultPaylines   int     `json:"default_paylines"`
	RevalidateDelayMs int     `json:"revalidate_delay_ms"` // delay before a corrected intent is re-issued
	FeeReserveUnits   int64   `json:"fee_reserve_units"`   // estimated fee reserve (base units) for fee-token payment
}

// ConfirmationConfig drives the confirmation watcher.
type ConfirmationConfig struct {
	FallbackDelayMs int `json:"fallback_delay_ms"`
	PollRetries     int `json:"poll_retries"`
	PollIntervalMs  int `json:"poll_interval_ms"`
}

// PaymasterConfig drives the gas payment strategy selector.
type PaymasterConfig struct {
	SponsorRecoverySeconds int `json:"sponsor_recovery_seconds"`
}

// SetupConfig drives delegation setup.
type SetupConfig struct {
	SetupDelayMs          int `json:"setup_delay_ms"`           // debounce before setup runs after authentication
	NetworkSwitchSettleMs int `json:"network_switch_settle_ms"` // wait after a wallet chain switch
}

// RevalidateDelay returns the delay before a corrected intent is re-issued.
func (c SpinConfig) RevalidateDelay() time.Duration {
	return time.Duration(c.RevalidateDelayMs) * time.Millisecond
}

// FallbackDelay returns how long the live path runs alone.
func (c ConfirmationConfig) FallbackDelay() time.Duration {
	return time.Duration(c.FallbackDelayMs) * time.Millisecond
}

// PollInterval returns the delay between fallback polls.
func (c ConfirmationConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// SponsorRecovery returns the sponsored strategy recovery period.
func (c PaymasterConfig) SponsorRecovery() time.Duration {
	return time.Duration(c.SponsorRecoverySeconds) * time.Second
}

// SetupDelay returns the debounce before setup.
func (c SetupConfig) SetupDelay() time.Duration {
	return time.Duration(c.SetupDelayMs) * time.Millisecond
}

// NetworkSwitchSettle returns the wait after a wallet chain switch.
func (c SetupConfig) NetworkSwitchSettle() time.Duration {
	return time.Duration(c.NetworkSwitchSettleMs) * time.Millisecond
}

// RPCRequestTimeout returns the per-call timeout for chain reads.
func (c *Config) RPCRequestTimeout() time.Duration {
	return time.Duration(c.RPCRequestTimeoutSeconds) * time.Second
}
