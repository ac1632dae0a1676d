package api

import (
	"github.com/pushchain/spin-relay/spinClient/health"
	"github.com/pushchain/spin-relay/spinClient/paymaster"
)

// Status is the relay's current session state.
type Status struct {
	Network         string           `json:"network"`
	ChainID         uint64           `json:"chain_id"`
	PendingNetwork  string           `json:"pending_network,omitempty"`
	Ready           bool             `json:"ready"`
	Account         string           `json:"account,omitempty"`
	Owner           string           `json:"owner,omitempty"`
	Deployed        bool             `json:"deployed"`
	WalletType      string           `json:"wallet_type,omitempty"`
	SetupError      string           `json:"setup_error,omitempty"`
	Health          health.Snapshot  `json:"health"`
	Payments        *paymaster.State `json:"payments,omitempty"`
	LatestRequestID uint64           `json:"latest_request_id"`
	BridgeClients   int              `json:"bridge_clients"`
}

// NetworkInfo describes a selectable network.
type NetworkInfo struct {
	Key                     string `json:"key"`
	Name                    string `json:"name"`
	ChainID                 uint64 `json:"chain_id"`
	SupportsFeeTokenPayment bool   `json:"supports_fee_token_payment"`
	Active                  bool   `json:"active"`
}

// SwitchResult reports a network change. With an extension wallet the change waits
// for ConfirmNetworkSwitch.
type SwitchResult struct {
	Network              string `json:"network"`
	ConfirmationRequired bool   `json:"confirmation_required"`
}

// SwitchRequest is the body of POST /api/v1/network.
type SwitchRequest struct {
	Network string `json:"network"`
}

// QueryResponse wraps list responses.
type QueryResponse struct {
	Data  interface{} `json:"data"`
	Count int         `json:"count"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}
