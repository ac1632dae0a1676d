// Package watcher determines the on-chain outcome of a submitted spin by racing a live
// log subscription against a bounded polling fallback.
package watcher

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/metrics"
)

// LogSource is the part of the network interface the watcher reads.
type LogSource interface {
	GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error)
	SubscribeLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
}

// Config holds the fallback timing.
type Config struct {
	FallbackDelay time.Duration
	PollRetries   int
	PollInterval  time.Duration
}

// DefaultConfig returns the production timing: 2s delay, 5 polls 2s apart.
func DefaultConfig() Config {
	return Config{
		FallbackDelay: 2 * time.Second,
		PollRetries:   5,
		PollInterval:  2 * time.Second,
	}
}

// Request identifies the SpinResult to wait for.
type Request struct {
	Contract  ethcommon.Address
	Player    ethcommon.Address
	FromBlock uint64
}

// Confirmation is the resolved outcome and the path that produced it.
type Confirmation struct {
	Result *evm.SpinResult
	Path   string
}

type outcome struct {
	confirmation *Confirmation
	err          error
}

// latch accepts the first outcome only.
type latch struct {
	once     sync.Once
	result   chan outcome
	resolved chan struct{}
}

func newLatch() *latch {
	return &latch{
		result:   make(chan outcome, 1),
		resolved: make(chan struct{}),
	}
}

func (l *latch) resolve(o outcome) bool {
	won := false
	l.once.Do(func() {
		l.result <- o
		close(l.resolved)
		won = true
	})
	return won
}

func (l *latch) isResolved() bool {
	select {
	case <-l.resolved:
		return true
	default:
		return false
	}
}

// Watcher waits for spin confirmations on one network.
type Watcher struct {
	network string
	source  LogSource
	cfg     Config
	clock   clock.Clock
	logger  zerolog.Logger
}

// New creates a watcher.
func New(network string, source LogSource, cfg Config, clk clock.Clock, logger zerolog.Logger) *Watcher {
	if clk == nil {
		clk = clock.New()
	}
	return &Watcher{
		network: network,
		source:  source,
		cfg:     cfg,
		clock:   clk,
		logger:  logger.With().Str("component", "confirmation_watcher").Str("network", network).Logger(),
	}
}

// Await blocks until exactly one path resolves req. Exhausted polling yields a
// confirmation timeout error.
func (w *Watcher) Await(ctx context.Context, req Request) (*Confirmation, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	liveCtx, cancelLive := context.WithCancel(ctx)
	defer cancelLive()

	query := evm.SpinResultQuery(req.Contract, req.Player, req.FromBlock)
	l := newLatch()

	go w.live(liveCtx, query, l)
	go w.fallback(ctx, query, l, cancelLive)

	select {
	case o := <-l.result:
		path := metrics.PathTimeout
		if o.confirmation != nil {
			path = o.confirmation.Path
		}
		metrics.Confirmations.WithLabelValues(path).Inc()
		return o.confirmation, o.err
	case <-ctx.Done():
		return nil, spinerrors.NewSubmissionError(w.network, "confirmation cancelled", ctx.Err())
	}
}

func (w *Watcher) live(ctx context.Context, query ethereum.FilterQuery, l *latch) {
	logs := make(chan types.Log, 4)
	sub, err := w.source.SubscribeLogs(ctx, query, logs)
	if err != nil {
		w.logger.Debug().Err(err).Msg("live subscription unavailable, relying on polling")
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-sub.Err():
			if err != nil {
				w.logger.Warn().Err(err).Msg("live subscription dropped")
			}
			return
		case log := <-logs:
			if log.Removed {
				continue
			}
			res, err := evm.ParseSpinResult(log)
			if err != nil {
				w.logger.Warn().Err(err).Str("tx_hash", log.TxHash.Hex()).Msg("skipping undecodable log")
				continue
			}
			if l.resolve(outcome{confirmation: &Confirmation{Result: res, Path: metrics.PathLive}}) {
				w.logger.Debug().Uint64("block", res.BlockNumber).Msg("spin confirmed by subscription")
			}
			return
		}
	}
}

func (w *Watcher) fallback(ctx context.Context, query ethereum.FilterQuery, l *latch, cancelLive context.CancelFunc) {
	if !w.sleep(ctx, w.cfg.FallbackDelay) || l.isResolved() {
		return
	}
	cancelLive()

	for attempt := 1; attempt <= w.cfg.PollRetries; attempt++ {
		if attempt > 1 && !w.sleep(ctx, w.cfg.PollInterval) {
			return
		}
		if l.isResolved() {
			return
		}

		logs, err := w.source.GetLogs(ctx, query)
		if err != nil {
			w.logger.Warn().Err(err).Int("attempt", attempt).Msg("log poll failed")
			continue
		}
		for _, log := range logs {
			if log.Removed {
				continue
			}
			res, err := evm.ParseSpinResult(log)
			if err != nil {
				w.logger.Warn().Err(err).Str("tx_hash", log.TxHash.Hex()).Msg("skipping undecodable log")
				continue
			}
			if l.resolve(outcome{confirmation: &Confirmation{Result: res, Path: metrics.PathFallback}}) {
				w.logger.Debug().Int("attempt", attempt).Msg("spin confirmed by polling")
			}
			return
		}
	}

	l.resolve(outcome{err: spinerrors.NewConfirmationTimeoutError(w.network, "no spin result observed")})
}

func (w *Watcher) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := w.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
