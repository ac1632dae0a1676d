// Package networks holds the static per-chain profiles the relay can operate on.
package networks

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Profile is the immutable configuration of one supported network.
type Profile struct {
	Key     string `json:"-" validate:"required"`
	Name    string `json:"name" validate:"required"`
	ChainID uint64 `json:"chain_id" validate:"gt=0"`

	PublicRPC   string `json:"public_rpc" validate:"required,url"`
	WSRPC       string `json:"ws_rpc,omitempty" validate:"omitempty,url"`
	RelayURL    string `json:"relay_url" validate:"required,url"`
	GasPriceURL string `json:"gas_price_url,omitempty" validate:"omitempty,url"`

	ActionContract        string `json:"action_contract" validate:"required,eth_addr"`
	FeeToken              string `json:"fee_token" validate:"required,eth_addr"`
	FeeTokenPaymaster     string `json:"fee_token_paymaster,omitempty" validate:"omitempty,eth_addr"`
	EntryPoint            string `json:"entry_point" validate:"required,eth_addr"`
	AccountFactory        string `json:"account_factory" validate:"required,eth_addr"`
	AccountImplementation string `json:"account_implementation" validate:"required,eth_addr"`

	SupportsFeeTokenPayment bool `json:"supports_fee_token_payment"`

	ExplorerURL string `json:"explorer_url,omitempty" validate:"omitempty,url"`
}

// ChainIDBig returns the chain id as a big.Int for signers and typed data domains.
func (p Profile) ChainIDBig() *big.Int {
	return new(big.Int).SetUint64(p.ChainID)
}

// ChainIDHex returns the 0x-prefixed chain id used by wallet_switchEthereumChain.
func (p Profile) ChainIDHex() string {
	return "0x" + p.ChainIDBig().Text(16)
}

// ActionAddress returns the action (slot) contract address.
func (p Profile) ActionAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.ActionContract)
}

// FeeTokenAddress returns the fee-bearing token address.
func (p Profile) FeeTokenAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.FeeToken)
}

// PaymasterAddress returns the fee-token paymaster address.
func (p Profile) PaymasterAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.FeeTokenPaymaster)
}

// EntryPointAddress returns the ERC-4337 entry point address.
func (p Profile) EntryPointAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.EntryPoint)
}

// FactoryAddress returns the smart-account factory address.
func (p Profile) FactoryAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.AccountFactory)
}

// ImplementationAddress returns the smart-account implementation address.
func (p Profile) ImplementationAddress() ethcommon.Address {
	return ethcommon.HexToAddress(p.AccountImplementation)
}

// GasPriceEndpoint returns the endpoint queried for operation gas prices,
// falling back to the relay itself.
func (p Profile) GasPriceEndpoint() string {
	if p.GasPriceURL != "" {
		return p.GasPriceURL
	}
	return p.RelayURL
}

// SubscriptionEndpoint returns the endpoint used for live log subscriptions.
// Empty when the profile has no websocket RPC.
func (p Profile) SubscriptionEndpoint() string {
	return p.WSRPC
}
