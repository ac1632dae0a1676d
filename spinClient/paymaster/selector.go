package paymaster

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/metrics"
)

// State is a snapshot of the selector.
type State struct {
	SponsoredEnabled  bool          `json:"sponsored_enabled"`
	FeeTokenAvailable bool          `json:"fee_token_available"`
	LastFailure       time.Time     `json:"last_failure,omitempty"`
	RecoveryPeriod    time.Duration `json:"recovery_period"`
}

// Result identifies a submitted operation and who paid for it.
type Result struct {
	Hash     ethcommon.Hash
	Strategy Kind
}

// Selector picks the gas payment strategy per request. Sponsored is tried first while
// enabled; a sponsored failure disables it for one recovery period counted from that failure.
type Selector struct {
	network   string
	sponsored Strategy
	feeToken  Strategy
	reserve   *big.Int
	recovery  time.Duration
	clock     clock.Clock
	logger    zerolog.Logger

	mu               sync.Mutex
	sponsoredEnabled bool
	lastFailure      time.Time
	running          bool
	timer            *clock.Timer
	armed            uint64
}

// NewSelector creates a selector. feeToken may be nil when the network does not allow it.
func NewSelector(
	network string,
	sponsored, feeToken Strategy,
	reserve *big.Int,
	recovery time.Duration,
	clk clock.Clock,
	logger zerolog.Logger,
) *Selector {
	if clk == nil {
		clk = clock.New()
	}
	metrics.SponsoredEnabled.Set(1)
	return &Selector{
		network:          network,
		sponsored:        sponsored,
		feeToken:         feeToken,
		reserve:          new(big.Int).Set(reserve),
		recovery:         recovery,
		clock:            clk,
		logger:           logger.With().Str("component", "gas_selector").Str("network", network).Logger(),
		sponsoredEnabled: true,
	}
}

// Start enables recovery. A failure recorded before Start re-enables sponsored
// payment one recovery period after that failure. It is a no-op when already running.
func (s *Selector) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	if !s.sponsoredEnabled {
		s.armRecoveryLocked()
	}
}

// Stop cancels any pending recovery.
func (s *Selector) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.armed++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// armRecoveryLocked schedules re-enabling one recovery period after the last failure,
// replacing any earlier schedule.
func (s *Selector) armRecoveryLocked() {
	if !s.running {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed++
	gen := s.armed

	wait := s.recovery - s.clock.Now().Sub(s.lastFailure)
	if wait < 0 {
		wait = 0
	}
	s.timer = s.clock.AfterFunc(wait, func() { s.recover(gen) })
}

func (s *Selector) recover(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running || gen != s.armed || s.sponsoredEnabled {
		return
	}
	s.sponsoredEnabled = true
	s.timer = nil
	metrics.SponsoredEnabled.Set(1)
	s.logger.Info().Msg("sponsored gas payment re-enabled")
}

// State returns a snapshot for status reporting.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		SponsoredEnabled:  s.sponsoredEnabled,
		FeeTokenAvailable: s.feeToken != nil,
		LastFailure:       s.lastFailure,
		RecoveryPeriod:    s.recovery,
	}
}

// Submit pays for and submits sub with at most one successful strategy.
func (s *Selector) Submit(ctx context.Context, sub *Submission) (Result, error) {
	if sub.Balance == nil || sub.Balance.Cmp(sub.Bet) < 0 {
		return Result{}, spinerrors.NewPaymentUnavailableError(s.network, "insufficient funds for bet")
	}

	s.mu.Lock()
	trySponsored := s.sponsoredEnabled && s.sponsored != nil
	s.mu.Unlock()

	var lastErr error
	if trySponsored {
		hash, err := s.sponsored.Submit(ctx, sub)
		metrics.PaymentAttempts.WithLabelValues(string(KindSponsored), metrics.ResultLabel(err)).Inc()
		if err == nil {
			return Result{Hash: hash, Strategy: KindSponsored}, nil
		}
		lastErr = err

		s.mu.Lock()
		s.sponsoredEnabled = false
		s.lastFailure = s.clock.Now()
		s.armRecoveryLocked()
		s.mu.Unlock()
		metrics.SponsoredEnabled.Set(0)
		s.logger.Warn().Err(err).Msg("sponsored gas payment failed, disabling until recovery")
	}

	if s.feeToken == nil {
		return Result{}, spinerrors.NewPaymentExhaustedError(s.network, "no gas payment option available", lastErr)
	}

	required := new(big.Int).Add(sub.Bet, s.reserve)
	if sub.Balance.Cmp(required) < 0 {
		return Result{}, spinerrors.NewPaymentUnavailableError(s.network, "insufficient funds for bet plus gas reserve")
	}

	hash, err := s.feeToken.Submit(ctx, sub)
	metrics.PaymentAttempts.WithLabelValues(string(KindFeeToken), metrics.ResultLabel(err)).Inc()
	if err != nil {
		s.logger.Warn().Err(err).Msg("fee-token gas payment failed")
		return Result{}, spinerrors.NewPaymentExhaustedError(s.network, "all gas payment options failed", err)
	}
	return Result{Hash: hash, Strategy: KindFeeToken}, nil
}
