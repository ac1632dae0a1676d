// Package spin drives a spin request from intent to delivered outcome: validation, call
// batch construction, gas payment, confirmation and stale-result suppression.
package spin

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/pushchain/spin-relay/spinClient/constant"
	"github.com/pushchain/spin-relay/spinClient/delegation"
	"github.com/pushchain/spin-relay/spinClient/networks"
	"github.com/pushchain/spin-relay/spinClient/paymaster"
	"github.com/pushchain/spin-relay/spinClient/store"
	"github.com/pushchain/spin-relay/spinClient/watcher"
)

// Network is the blockchain capability the orchestrator reads through.
type Network interface {
	ReadBalance(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error)
	ReadAllowance(ctx context.Context, token, owner, spender ethcommon.Address) (*big.Int, error)
	ReadCode(ctx context.Context, addr ethcommon.Address) ([]byte, error)
	CurrentBlock(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Payments submits an operation through a gas payment strategy.
type Payments interface {
	Submit(ctx context.Context, sub *paymaster.Submission) (paymaster.Result, error)
}

// Confirmer waits for a submitted spin's outcome.
type Confirmer interface {
	Await(ctx context.Context, req watcher.Request) (*watcher.Confirmation, error)
}

// Delegations exposes the active session delegation.
type Delegations interface {
	Active() (*delegation.Delegation, error)
	RefreshDeployed(ctx context.Context) bool
	MarkDeployed()
}

// Sink receives outbound messages for the game surface.
type Sink interface {
	SpinLoading()
	SpinResult(id uint64, outcome *Outcome)
}

// Recorder persists finished requests.
type Recorder interface {
	RecordSpin(record *store.SpinRecord) error
}

// Backend is everything bound to one network. It is swapped on network changes.
type Backend struct {
	Profile   networks.Profile
	Network   Network
	Payments  Payments
	Confirmer Confirmer
}

// Intent is an inbound spin request from the game surface. Lines of 0 means the default.
type Intent struct {
	Bet   float64
	Lines int
}

// Request is a validated intent.
type Request struct {
	ID     uint64
	Bet    *big.Int // fee-token base units
	Lines  uint8
	Secret [32]byte
}

// Config bounds and paces requests.
type Config struct {
	MinBet          decimal.Decimal
	MaxBet          decimal.Decimal
	DefaultLines    uint8
	RevalidateDelay time.Duration
}

// DefaultConfig returns the game surface defaults.
func DefaultConfig() Config {
	return Config{
		MinBet:          decimal.NewFromFloat(constant.DefaultMinBet),
		MaxBet:          decimal.NewFromFloat(constant.DefaultMaxBet),
		DefaultLines:    constant.DefaultPaylines,
		RevalidateDelay: 250 * time.Millisecond,
	}
}

// ToUnits converts a decimal token amount to base units, rounding half away from zero.
func ToUnits(amount decimal.Decimal) *big.Int {
	return amount.Shift(constant.FeeTokenDecimals).Round(0).BigInt()
}

// FromUnits converts base units to a decimal token amount.
func FromUnits(units *big.Int) decimal.Decimal {
	if units == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(units, -constant.FeeTokenDecimals)
}
