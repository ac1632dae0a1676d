package constant

import "os"

// <NodeDir>/                    (e.g., /home/player/.pspin)
// └── config/
//	└── pspin_config.json
// └── databases/
//	└── spins.db

const (
	NodeDir = ".pspin"

	ConfigSubdir   = "config"
	ConfigFileName = "pspin_config.json"

	DatabasesSubdir  = "databases"
	DatabaseFileName = "spins.db"

	// EnvPrefix is the prefix viper uses for environment overrides (PSPIN_LOG_LEVEL, ...).
	EnvPrefix = "PSPIN"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir

// Fee-token amounts are fixed-point with 6 decimals (USDC style).
const FeeTokenDecimals = 6

// Game surface defaults.
const (
	DefaultPaylines = 20
	DefaultMinBet   = 0.1
	DefaultMaxBet   = 0.5
)

// PreferenceSelectedNetwork is the key under which the last selected network is persisted.
const PreferenceSelectedNetwork = "playerhouse-network"
