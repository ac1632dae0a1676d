package api

import (
	"context"

	"github.com/pushchain/spin-relay/spinClient/store"
)

// RelayClient defines the methods needed by the API server
type RelayClient interface {
	Status() Status
	Networks() []NetworkInfo
	Setup(ctx context.Context) error
	SwitchNetwork(ctx context.Context, key string) (SwitchResult, error)
	ConfirmNetworkSwitch(ctx context.Context) error
	Disconnect()
	RecentSpins(network string, limit int) ([]store.SpinRecord, error)
}
