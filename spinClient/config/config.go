package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pushchain/spin-relay/spinClient/constant"
	"github.com/pushchain/spin-relay/spinClient/networks"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}

	// Initialize Networks if nil or empty
	if len(cfg.Networks) == 0 {
		// Load defaults from embedded config
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.Networks = defaultCfg.Networks
			if cfg.DefaultNetwork == "" {
				cfg.DefaultNetwork = defaultCfg.DefaultNetwork
			}
		} else {
			cfg.Networks = make(map[string]networks.Profile)
		}
	}
	if cfg.DefaultNetwork == "" {
		return fmt.Errorf("default network must be set")
	}
	if _, err := networks.NewRegistry(cfg.Networks, cfg.DefaultNetwork); err != nil {
		return fmt.Errorf("invalid networks: %w", err)
	}

	for i, w := range cfg.Wallets {
		switch w.Type {
		case WalletTypeEmbedded:
			if w.KeystorePath == "" && w.PrivateKeyEnv == "" {
				return fmt.Errorf("wallet %d: embedded wallet needs keystore_path or private_key_env", i)
			}
		case WalletTypeExtension, WalletTypeGeneric:
			if w.RPCURL == "" {
				return fmt.Errorf("wallet %d: %s wallet needs rpc_url", i, w.Type)
			}
		default:
			return fmt.Errorf("wallet %d: unknown wallet type %q", i, w.Type)
		}
	}

	// Set defaults for spin bounds
	if cfg.Spin.MinBet == 0 {
		cfg.Spin.MinBet = constant.DefaultMinBet
	}
	if cfg.Spin.MaxBet == 0 {
		cfg.Spin.MaxBet = constant.DefaultMaxBet
	}
	if cfg.Spin.MinBet > cfg.Spin.MaxBet {
		return fmt.Errorf("min bet must not exceed max bet")
	}
	if cfg.Spin.DefaultPaylines == 0 {
		cfg.Spin.DefaultPaylines = constant.DefaultPaylines
	}
	if cfg.Spin.DefaultPaylines < 1 || cfg.Spin.DefaultPaylines > 255 {
		return fmt.Errorf("default paylines must be between 1 and 255")
	}
	if cfg.Spin.RevalidateDelayMs == 0 {
		cfg.Spin.RevalidateDelayMs = 250
	}
	if cfg.Spin.FeeReserveUnits == 0 {
		cfg.Spin.FeeReserveUnits = 100000
	}

	// Set defaults for confirmation watcher
	if cfg.Confirmation.FallbackDelayMs == 0 {
		cfg.Confirmation.FallbackDelayMs = 2000
	}
	if cfg.Confirmation.PollRetries == 0 {
		cfg.Confirmation.PollRetries = 5
	}
	if cfg.Confirmation.PollIntervalMs == 0 {
		cfg.Confirmation.PollIntervalMs = 2000
	}

	if cfg.Paymaster.SponsorRecoverySeconds == 0 {
		cfg.Paymaster.SponsorRecoverySeconds = 60
	}

	if cfg.Setup.SetupDelayMs == 0 {
		cfg.Setup.SetupDelayMs = 1000
	}
	if cfg.Setup.NetworkSwitchSettleMs == 0 {
		cfg.Setup.NetworkSwitchSettleMs = 1000
	}

	if cfg.RPCRequestTimeoutSeconds == 0 {
		cfg.RPCRequestTimeoutSeconds = 10
	}

	return nil
}

// Validate applies defaults and checks the config.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Save writes the given config to <NodeDir>/config/pspin_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, constant.ConfigSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, constant.ConfigFileName)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads and returns the config from <BasePath>/config/pspin_config.json.
func Load(basePath string) (Config, error) {
	configFile := filepath.Join(basePath, constant.ConfigSubdir, constant.ConfigFileName)
	data, err := os.ReadFile(filepath.Clean(configFile))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}
