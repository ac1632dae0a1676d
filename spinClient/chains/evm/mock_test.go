package evm

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
)

// mockEthClient is a mock implementation of the Ethereum client for testing
type mockEthClient struct {
	mock.Mock
}

func (m *mockEthClient) BlockNumber(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockEthClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	args := m.Called(ctx, q)
	if logs := args.Get(0); logs != nil {
		return logs.([]types.Log), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) ChainID(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if id := args.Get(0); id != nil {
		return id.(*big.Int), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) CodeAt(ctx context.Context, account ethcommon.Address, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, account, blockNumber)
	if code := args.Get(0); code != nil {
		return code.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	args := m.Called(ctx, msg, blockNumber)
	if out := args.Get(0); out != nil {
		return out.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	args := m.Called(ctx, q, ch)
	if sub := args.Get(0); sub != nil {
		return sub.(ethereum.Subscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEthClient) Close() {
	m.Called()
}
