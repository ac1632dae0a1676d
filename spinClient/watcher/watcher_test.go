package watcher

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushchain/spin-relay/spinClient/chains/evm"
	spinerrors "github.com/pushchain/spin-relay/spinClient/errors"
	"github.com/pushchain/spin-relay/spinClient/metrics"
)

var (
	testContract = ethcommon.HexToAddress("0x9Dc3a5f5D8F1e3C1b0f0C7e1D2c3B4a5F6e799ab")
	testPlayer   = ethcommon.HexToAddress("0x3333333333333333333333333333333333333333")
)

type fakeSource struct {
	mu           sync.Mutex
	subErr       error
	live         []types.Log
	liveDelay    time.Duration
	polls        [][]types.Log
	pollErr      error
	pollCalls    int
	lastQuery    ethereum.FilterQuery
	unsubscribed bool
}

func (f *fakeSource) GetLogs(_ context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pollCalls++
	f.lastQuery = query
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	if f.pollCalls <= len(f.polls) {
		return f.polls[f.pollCalls-1], nil
	}
	return nil, nil
}

func (f *fakeSource) SubscribeLogs(_ context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	f.mu.Lock()
	f.lastQuery = query
	subErr, live, delay := f.subErr, f.live, f.liveDelay
	f.mu.Unlock()

	if subErr != nil {
		return nil, subErr
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer func() {
			f.mu.Lock()
			f.unsubscribed = true
			f.mu.Unlock()
		}()
		for _, log := range live {
			select {
			case <-time.After(delay):
			case <-quit:
				return nil
			}
			select {
			case ch <- log:
			case <-quit:
				return nil
			}
		}
		<-quit
		return nil
	}), nil
}

func (f *fakeSource) polled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pollCalls
}

func (f *fakeSource) wasUnsubscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

func spinLog(t *testing.T, totWin int64) types.Log {
	t.Helper()
	log, err := evm.SpinResultLog(testContract, &evm.SpinResult{
		Player:      testPlayer,
		TotWin:      big.NewInt(totWin),
		Pattern:     [3][5]uint8{{1, 1, 1, 2, 3}, {4, 5, 6, 7, 8}, {0, 0, 0, 0, 0}},
		BonusPrize:  big.NewInt(0),
		BlockNumber: 101,
	})
	require.NoError(t, err)
	return log
}

func newTestWatcher(source LogSource, cfg Config) *Watcher {
	return New("arbitrumSepolia", source, cfg, nil, zerolog.Nop())
}

func request() Request {
	return Request{Contract: testContract, Player: testPlayer, FromBlock: 100}
}

func TestAwaitLiveBeatsFallback(t *testing.T) {
	source := &fakeSource{live: []types.Log{spinLog(t, 250_000)}}
	w := newTestWatcher(source, Config{FallbackDelay: 200 * time.Millisecond, PollRetries: 5, PollInterval: 10 * time.Millisecond})

	conf, err := w.Await(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, metrics.PathLive, conf.Path)
	assert.Equal(t, int64(250_000), conf.Result.TotWin.Int64())
	assert.Equal(t, testPlayer, conf.Result.Player)

	// Past the fallback delay: the poll never ran and the subscription is gone.
	time.Sleep(300 * time.Millisecond)
	assert.Zero(t, source.polled())
	assert.True(t, source.wasUnsubscribed())
}

func TestAwaitSkipsUndecodableLiveLogs(t *testing.T) {
	bad := types.Log{Address: testContract, Topics: []ethcommon.Hash{ethcommon.HexToHash("0x01")}}
	source := &fakeSource{live: []types.Log{bad, spinLog(t, 0)}}
	w := newTestWatcher(source, Config{FallbackDelay: time.Second, PollRetries: 1, PollInterval: time.Millisecond})

	conf, err := w.Await(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, metrics.PathLive, conf.Path)
	assert.False(t, conf.Result.Won())
}

func TestAwaitTimesOutAfterPolling(t *testing.T) {
	source := &fakeSource{subErr: errors.New("notifications not supported")}
	w := newTestWatcher(source, Config{FallbackDelay: 10 * time.Millisecond, PollRetries: 5, PollInterval: 5 * time.Millisecond})

	conf, err := w.Await(context.Background(), request())
	require.Error(t, err)
	assert.Nil(t, conf)
	assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeConfirmationTimeout))
	assert.Equal(t, 5, source.polled())
	assert.Equal(t, uint64(100), source.lastQuery.FromBlock.Uint64())
}

func TestAwaitPollErrorsCountAsAttempts(t *testing.T) {
	source := &fakeSource{subErr: errors.New("http only"), pollErr: errors.New("rate limited")}
	w := newTestWatcher(source, Config{FallbackDelay: time.Millisecond, PollRetries: 3, PollInterval: time.Millisecond})

	_, err := w.Await(context.Background(), request())
	assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeConfirmationTimeout))
	assert.Equal(t, 3, source.polled())
}

func TestAwaitFallbackFindsLog(t *testing.T) {
	source := &fakeSource{
		subErr: errors.New("http only"),
		polls:  [][]types.Log{nil, nil, {spinLog(t, 40_000)}},
	}
	w := newTestWatcher(source, Config{FallbackDelay: 5 * time.Millisecond, PollRetries: 5, PollInterval: 5 * time.Millisecond})

	conf, err := w.Await(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, metrics.PathFallback, conf.Path)
	assert.True(t, conf.Result.Won())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, source.polled())
}

func TestAwaitFallbackCancelsLiveSubscription(t *testing.T) {
	source := &fakeSource{
		live:      []types.Log{spinLog(t, 1)},
		liveDelay: time.Hour,
		polls:     [][]types.Log{{spinLog(t, 2)}},
	}
	w := newTestWatcher(source, Config{FallbackDelay: 10 * time.Millisecond, PollRetries: 5, PollInterval: 5 * time.Millisecond})

	conf, err := w.Await(context.Background(), request())
	require.NoError(t, err)
	assert.Equal(t, metrics.PathFallback, conf.Path)
	assert.Equal(t, int64(2), conf.Result.TotWin.Int64())
	assert.Eventually(t, source.wasUnsubscribed, time.Second, 5*time.Millisecond)
}

func TestAwaitContextCancelled(t *testing.T) {
	source := &fakeSource{subErr: errors.New("http only")}
	w := newTestWatcher(source, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.Await(ctx, request())
	require.Error(t, err)
	assert.True(t, spinerrors.IsCode(err, spinerrors.ErrCodeSubmission))
	assert.Zero(t, source.polled())
}

func TestLatchResolvesOnce(t *testing.T) {
	l := newLatch()
	assert.False(t, l.isResolved())
	assert.True(t, l.resolve(outcome{err: errors.New("first")}))
	assert.False(t, l.resolve(outcome{err: errors.New("second")}))
	assert.True(t, l.isResolved())

	o := <-l.result
	assert.EqualError(t, o.err, "first")
	select {
	case <-l.result:
		t.Fatal("latch delivered twice")
	default:
	}
}
