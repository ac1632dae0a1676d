// Package userop models ERC-4337 v0.7 user operations as the relay submits them:
// hashing, Kernel batch call encoding, and draft construction.
package userop

import (
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// UserOperation is the unpacked v0.7 operation in the bundler's JSON-RPC shape.
type UserOperation struct {
	Sender                        ethcommon.Address  `json:"sender"`
	Nonce                         *hexutil.Big       `json:"nonce"`
	Factory                       *ethcommon.Address `json:"factory,omitempty"`
	FactoryData                   hexutil.Bytes      `json:"factoryData,omitempty"`
	CallData                      hexutil.Bytes      `json:"callData"`
	CallGasLimit                  *hexutil.Big       `json:"callGasLimit"`
	VerificationGasLimit          *hexutil.Big       `json:"verificationGasLimit"`
	PreVerificationGas            *hexutil.Big       `json:"preVerificationGas"`
	MaxFeePerGas                  *hexutil.Big       `json:"maxFeePerGas"`
	MaxPriorityFeePerGas          *hexutil.Big       `json:"maxPriorityFeePerGas"`
	Paymaster                     *ethcommon.Address `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit *hexutil.Big       `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big       `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                 hexutil.Bytes      `json:"paymasterData,omitempty"`
	Signature                     hexutil.Bytes      `json:"signature"`
}

// InitCode returns factory ++ factoryData, or nil when the account is already deployed.
func (op *UserOperation) InitCode() []byte {
	if op.Factory == nil {
		return nil
	}
	out := make([]byte, 0, ethcommon.AddressLength+len(op.FactoryData))
	out = append(out, op.Factory.Bytes()...)
	return append(out, op.FactoryData...)
}

// PaymasterAndData returns the packed paymaster field, or nil without a paymaster.
func (op *UserOperation) PaymasterAndData() []byte {
	if op.Paymaster == nil {
		return nil
	}
	out := make([]byte, 0, ethcommon.AddressLength+32+len(op.PaymasterData))
	out = append(out, op.Paymaster.Bytes()...)
	out = append(out, uint128(bigOf(op.PaymasterVerificationGasLimit))...)
	out = append(out, uint128(bigOf(op.PaymasterPostOpGasLimit))...)
	return append(out, op.PaymasterData...)
}

// HasPaymaster reports whether a paymaster pays for this operation.
func (op *UserOperation) HasPaymaster() bool {
	return op.Paymaster != nil && *op.Paymaster != (ethcommon.Address{})
}

// Copy returns a deep copy so strategies can decorate a shared draft independently.
func (op *UserOperation) Copy() *UserOperation {
	cp := *op
	cp.Nonce = copyBig(op.Nonce)
	cp.CallGasLimit = copyBig(op.CallGasLimit)
	cp.VerificationGasLimit = copyBig(op.VerificationGasLimit)
	cp.PreVerificationGas = copyBig(op.PreVerificationGas)
	cp.MaxFeePerGas = copyBig(op.MaxFeePerGas)
	cp.MaxPriorityFeePerGas = copyBig(op.MaxPriorityFeePerGas)
	cp.PaymasterVerificationGasLimit = copyBig(op.PaymasterVerificationGasLimit)
	cp.PaymasterPostOpGasLimit = copyBig(op.PaymasterPostOpGasLimit)
	cp.FactoryData = append(hexutil.Bytes(nil), op.FactoryData...)
	cp.CallData = append(hexutil.Bytes(nil), op.CallData...)
	cp.PaymasterData = append(hexutil.Bytes(nil), op.PaymasterData...)
	cp.Signature = append(hexutil.Bytes(nil), op.Signature...)
	if op.Factory != nil {
		f := *op.Factory
		cp.Factory = &f
	}
	if op.Paymaster != nil {
		p := *op.Paymaster
		cp.Paymaster = &p
	}
	return &cp
}

// GasEstimate is the eth_estimateUserOperationGas result.
type GasEstimate struct {
	PreVerificationGas            *hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit          *hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit                  *hexutil.Big `json:"callGasLimit"`
	PaymasterVerificationGasLimit *hexutil.Big `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit       *hexutil.Big `json:"paymasterPostOpGasLimit,omitempty"`
}

// Apply copies the estimate onto op.
func (e *GasEstimate) Apply(op *UserOperation) {
	op.PreVerificationGas = e.PreVerificationGas
	op.VerificationGasLimit = e.VerificationGasLimit
	op.CallGasLimit = e.CallGasLimit
	if e.PaymasterVerificationGasLimit != nil {
		op.PaymasterVerificationGasLimit = e.PaymasterVerificationGasLimit
	}
	if e.PaymasterPostOpGasLimit != nil {
		op.PaymasterPostOpGasLimit = e.PaymasterPostOpGasLimit
	}
}

// Sponsorship is the sponsoring paymaster's answer: gas limits plus the paymaster fields.
type Sponsorship struct {
	GasEstimate
	Paymaster            ethcommon.Address `json:"paymaster"`
	PaymasterData        hexutil.Bytes     `json:"paymasterData"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
}

// Apply copies the sponsorship onto op.
func (s *Sponsorship) Apply(op *UserOperation) {
	s.GasEstimate.Apply(op)
	pm := s.Paymaster
	op.Paymaster = &pm
	op.PaymasterData = s.PaymasterData
	if s.MaxFeePerGas != nil {
		op.MaxFeePerGas = s.MaxFeePerGas
	}
	if s.MaxPriorityFeePerGas != nil {
		op.MaxPriorityFeePerGas = s.MaxPriorityFeePerGas
	}
}

// GasFees is one tier of the bundler's gas price recommendation.
type GasFees struct {
	MaxFeePerGas         *hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big `json:"maxPriorityFeePerGas"`
}

// GasPriceTiers is the pimlico_getUserOperationGasPrice result.
type GasPriceTiers struct {
	Slow     GasFees `json:"slow"`
	Standard GasFees `json:"standard"`
	Fast     GasFees `json:"fast"`
}

func bigOf(v *hexutil.Big) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToInt()
}

func copyBig(v *hexutil.Big) *hexutil.Big {
	if v == nil {
		return nil
	}
	return (*hexutil.Big)(new(big.Int).Set(v.ToInt()))
}

// uint128 left-pads v into 16 bytes.
func uint128(v *big.Int) []byte {
	out := make([]byte, 16)
	v.FillBytes(out)
	return out
}

// NewBig wraps v for operation fields.
func NewBig(v *big.Int) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).Set(v))
}

// NewBigUint wraps v for operation fields.
func NewBigUint(v uint64) *hexutil.Big {
	return (*hexutil.Big)(new(big.Int).SetUint64(v))
}
