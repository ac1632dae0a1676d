package spin

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/benbjohnson/clock"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/health"
	"github.com/pushchain/spin-relay/spinClient/metrics"
	"github.com/pushchain/spin-relay/spinClient/paymaster"
	"github.com/pushchain/spin-relay/spinClient/store"
	"github.com/pushchain/spin-relay/spinClient/userop"
	"github.com/pushchain/spin-relay/spinClient/watcher"
)

const tokenSymbol = "USDC"

// Orchestrator runs spin requests. Request ids are strictly increasing and only the
// latest request's outcome is delivered.
type Orchestrator struct {
	cfg         Config
	delegations Delegations
	health      *health.Tracker
	sink        Sink
	recorder    Recorder
	clock       clock.Clock
	logger      zerolog.Logger

	mu      sync.Mutex
	backend *Backend
	latest  uint64
}

// NewOrchestrator creates an orchestrator. recorder may be nil.
func NewOrchestrator(
	cfg Config,
	delegations Delegations,
	tracker *health.Tracker,
	sink Sink,
	recorder Recorder,
	clk clock.Clock,
	logger zerolog.Logger,
) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}
	return &Orchestrator{
		cfg:         cfg,
		delegations: delegations,
		health:      tracker,
		sink:        sink,
		recorder:    recorder,
		clock:       clk,
		logger:      logger.With().Str("component", "spin_orchestrator").Logger(),
	}
}

// SetBackend binds the orchestrator to a network. In-flight requests keep the backend
// they started with.
func (o *Orchestrator) SetBackend(b *Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backend = b
}

// LatestID returns the most recently assigned request id.
func (o *Orchestrator) LatestID() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

func (o *Orchestrator) next() (uint64, *Backend) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.latest++
	return o.latest, o.backend
}

func (o *Orchestrator) isLatest(id uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest == id
}

// Handle runs one intent to completion and returns its request id. An out of bounds
// intent is dropped and the default intent is re-issued after the revalidate delay.
func (o *Orchestrator) Handle(ctx context.Context, in Intent) uint64 {
	id, backend := o.next()
	logger := o.logger.With().Uint64("request_id", id).Logger()

	bet, lines, ok := o.validate(in)
	if !ok {
		metrics.SpinsCorrected.Inc()
		logger.Warn().Float64("bet", in.Bet).Int("lines", in.Lines).Msg("invalid spin intent, re-issuing default")
		corrected := Intent{Bet: o.cfg.MinBet.InexactFloat64(), Lines: int(o.cfg.DefaultLines)}
		o.clock.AfterFunc(o.cfg.RevalidateDelay, func() {
			o.Handle(ctx, corrected)
		})
		return id
	}

	req := &Request{ID: id, Bet: bet, Lines: lines}
	if _, err := rand.Read(req.Secret[:]); err != nil {
		o.finish(backend, req, nil, spinerrors.NewInternalError("", "failed to generate spin secret", err), logger)
		return id
	}

	start := o.clock.Now()
	rec, err := o.execute(ctx, backend, req, logger)
	network := ""
	if backend != nil {
		network = backend.Profile.Key
		metrics.SpinDuration.WithLabelValues(network).Observe(o.clock.Since(start).Seconds())
	}
	o.finish(backend, req, rec, err, logger)
	return id
}

func (o *Orchestrator) validate(in Intent) (*big.Int, uint8, bool) {
	if math.IsNaN(in.Bet) || math.IsInf(in.Bet, 0) {
		return nil, 0, false
	}
	bet := decimal.NewFromFloat(in.Bet)
	if bet.LessThan(o.cfg.MinBet) || bet.GreaterThan(o.cfg.MaxBet) {
		return nil, 0, false
	}

	lines := in.Lines
	if lines == 0 {
		lines = int(o.cfg.DefaultLines)
	}
	if lines < 1 || lines > math.MaxUint8 {
		return nil, 0, false
	}
	return ToUnits(bet), uint8(lines), true
}

// execute runs the request and returns the record of what happened so far.
func (o *Orchestrator) execute(ctx context.Context, backend *Backend, req *Request, logger zerolog.Logger) (*store.SpinRecord, error) {
	rec := &store.SpinRecord{
		RequestID: req.ID,
		Bet:       FromUnits(req.Bet).String(),
		Lines:     req.Lines,
	}
	if backend == nil {
		return rec, spinerrors.NewSetupError(spinerrors.SetupNotReady, "", "no network selected", nil)
	}
	profile := backend.Profile
	rec.Network = profile.Key
	rec.ChainID = profile.ChainID

	d, err := o.delegations.Active()
	if err != nil {
		return rec, err
	}
	rec.Account = strings.ToLower(d.Account.Hex())
	if d.ChainID != profile.ChainID || d.NetworkKey != profile.Key {
		return rec, spinerrors.NewSetupError(spinerrors.SetupWrongChain, profile.Key,
			"session delegation was minted for another network", nil).
			WithContext("delegation_chain_id", d.ChainID).
			WithContext("target_chain_id", profile.ChainID)
	}

	token := profile.FeeTokenAddress()
	action := profile.ActionAddress()
	deployed := o.delegations.RefreshDeployed(ctx)
	if !deployed {
		logger.Info().Str("account", d.Account.Hex()).Msg("account not deployed, this operation will deploy it")
	}

	balance, err := backend.Network.ReadBalance(ctx, token, d.Account)
	if err != nil {
		return rec, spinerrors.NewSubmissionError(profile.Key, "failed to read balance", err)
	}
	allowance, err := backend.Network.ReadAllowance(ctx, token, d.Account, action)
	if err != nil {
		return rec, spinerrors.NewSubmissionError(profile.Key, "failed to read allowance", err)
	}

	calls, err := buildCalls(req, token, action, allowance)
	if err != nil {
		return rec, spinerrors.NewInternalError(profile.Key, "failed to encode calls", err)
	}

	if balance.Cmp(req.Bet) < 0 {
		return rec, spinerrors.NewPaymentUnavailableError(profile.Key,
			fmt.Sprintf("insufficient %s for bet, need %s", tokenSymbol, FromUnits(req.Bet).String()))
	}

	o.sink.SpinLoading()

	startBlock, err := backend.Network.CurrentBlock(ctx)
	if err != nil {
		return rec, spinerrors.NewSubmissionError(profile.Key, "failed to read block height", err)
	}

	// Balance may have moved since the batch was built.
	balance, err = backend.Network.ReadBalance(ctx, token, d.Account)
	if err != nil {
		return rec, spinerrors.NewSubmissionError(profile.Key, "failed to read balance", err)
	}

	result, err := backend.Payments.Submit(ctx, &paymaster.Submission{
		Signer:   d.Session,
		Deployed: deployed,
		Calls:    calls,
		Bet:      req.Bet,
		Balance:  balance,
	})
	if err != nil {
		return rec, asSpinError(profile.Key, "failed to submit operation", err)
	}
	rec.Strategy = string(result.Strategy)
	rec.OpHash = result.Hash.Hex()
	logger.Info().
		Str("op_hash", rec.OpHash).
		Str("strategy", rec.Strategy).
		Int("calls", len(calls)).
		Uint64("from_block", startBlock).
		Msg("operation submitted")

	conf, err := backend.Confirmer.Await(ctx, watcher.Request{
		Contract:  action,
		Player:    d.Account,
		FromBlock: startBlock,
	})
	if err != nil {
		if spinerrors.IsCode(err, spinerrors.ErrCodeConfirmationTimeout) {
			rec.Path = metrics.PathTimeout
		}
		return rec, asSpinError(profile.Key, "failed to confirm operation", err)
	}
	rec.Path = conf.Path
	rec.TxHash = conf.Result.TxHash.Hex()
	if !deployed {
		o.delegations.MarkDeployed()
	}

	fresh, err := backend.Network.ReadBalance(ctx, token, d.Account)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to refresh balance after confirmation, reporting pre-submission balance")
		fresh = balance
	}

	outcome := NewOutcome(conf.Result, fresh)
	rec.Status = store.SpinStatusSettled
	rec.TotWin = FromUnits(conf.Result.TotWin).String()
	rec.Won = outcome.Win
	o.deliverOutcome(req.ID, profile.Key, outcome, rec, logger)
	return rec, nil
}

func buildCalls(req *Request, token, action ethcommon.Address, allowance *big.Int) ([]userop.Call, error) {
	calls := make([]userop.Call, 0, 2)
	if allowance == nil || allowance.Cmp(req.Bet) < 0 {
		data, err := evm.PackApprove(action, evm.MaxApproval)
		if err != nil {
			return nil, err
		}
		calls = append(calls, userop.Call{Target: token, Value: new(big.Int), CallData: data})
	}

	data, err := evm.PackSpin(req.Secret, req.Bet, req.Lines)
	if err != nil {
		return nil, err
	}
	return append(calls, userop.Call{Target: action, Value: new(big.Int), CallData: data}), nil
}

// asSpinError classifies an unexpected error as a submission exception.
func asSpinError(network, message string, err error) error {
	var spinErr *spinerrors.SpinError
	if spinerrors.As(err, &spinErr) {
		return err
	}
	return spinerrors.NewSubmissionError(network, message, err)
}

// finish handles the failure exit and persists the record.
func (o *Orchestrator) finish(backend *Backend, req *Request, rec *store.SpinRecord, err error, logger zerolog.Logger) {
	if rec == nil {
		rec = &store.SpinRecord{RequestID: req.ID, Bet: FromUnits(req.Bet).String(), Lines: req.Lines}
		if backend != nil {
			rec.Network = backend.Profile.Key
			rec.ChainID = backend.Profile.ChainID
		}
	}

	if err != nil {
		if spinerrors.CountsAgainstHealth(err) {
			snap := o.health.RecordFailure()
			logger.Warn().Str("health", string(snap.Status)).Int("failures", snap.Failures).Msg("connection health degraded")
		}
		logger.Error().Err(err).Msg("spin failed")

		rec.Status = store.SpinStatusFailed
		rec.ErrorMsg = err.Error()
		o.deliver(req.ID, rec.Network, Failed(failureMessage(err)), rec, metrics.ResultFailure, logger)
	}

	if o.recorder != nil {
		if recErr := o.recorder.RecordSpin(rec); recErr != nil {
			logger.Warn().Err(recErr).Msg("failed to persist spin record")
		}
	}
}

func (o *Orchestrator) deliverOutcome(id uint64, network string, outcome *Outcome, rec *store.SpinRecord, logger zerolog.Logger) {
	snap := o.health.RecordSuccess()
	logger.Info().
		Bool("win", outcome.Win).
		Float64("tot_win", outcome.TotWin).
		Str("health", string(snap.Status)).
		Msg("spin settled")
	o.deliver(id, network, outcome, rec, metrics.ResultSuccess, logger)
}

func (o *Orchestrator) deliver(id uint64, network string, outcome *Outcome, rec *store.SpinRecord, result string, logger zerolog.Logger) {
	metrics.SpinsTotal.WithLabelValues(network, result).Inc()
	if !o.isLatest(id) {
		metrics.SpinsSuperseded.Inc()
		logger.Debug().Msg("discarding outcome of superseded request")
		return
	}
	rec.Delivered = true
	o.sink.SpinResult(id, outcome)
}
