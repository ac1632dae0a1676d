package userop

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ContractCaller executes read-only calls.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// GasPricer recommends operation fees.
type GasPricer interface {
	GasPrice(ctx context.Context) (*GasPriceTiers, error)
}

// DraftParams describes one operation before gas and payment are decided.
type DraftParams struct {
	Sender         ethcommon.Address
	NonceKey       *big.Int
	Calls          []Call
	Factory        *ethcommon.Address // nil once the account is deployed
	FactoryData    []byte
	DummySignature []byte
}

// Builder turns call batches into unsigned operations.
type Builder struct {
	entryPoint ethcommon.Address
	caller     ContractCaller
	pricer     GasPricer
}

// NewBuilder creates a draft builder bound to one EntryPoint.
func NewBuilder(entryPoint ethcommon.Address, caller ContractCaller, pricer GasPricer) *Builder {
	return &Builder{entryPoint: entryPoint, caller: caller, pricer: pricer}
}

// EntryPoint returns the EntryPoint the builder targets.
func (b *Builder) EntryPoint() ethcommon.Address {
	return b.entryPoint
}

// Nonce reads EntryPoint.getNonce(sender, key).
func (b *Builder) Nonce(ctx context.Context, sender ethcommon.Address, key *big.Int) (*big.Int, error) {
	if key == nil {
		key = new(big.Int)
	}
	data, err := KernelABI.Pack("getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("failed to pack getNonce: %w", err)
	}

	ep := b.entryPoint
	raw, err := b.caller.CallContract(ctx, ethereum.CallMsg{To: &ep, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}

	out, err := KernelABI.Unpack("getNonce", raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack nonce: %w", err)
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Draft builds an unsigned operation with fresh nonce and standard-tier fees.
// Gas limits are left at zero for the paymaster or bundler to fill in.
func (b *Builder) Draft(ctx context.Context, p DraftParams) (*UserOperation, error) {
	callData, err := EncodeExecuteBatch(p.Calls)
	if err != nil {
		return nil, err
	}

	nonce, err := b.Nonce(ctx, p.Sender, p.NonceKey)
	if err != nil {
		return nil, err
	}

	tiers, err := b.pricer.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch gas price: %w", err)
	}
	if tiers.Standard.MaxFeePerGas == nil || tiers.Standard.MaxPriorityFeePerGas == nil {
		return nil, fmt.Errorf("gas price response missing standard tier")
	}

	op := &UserOperation{
		Sender:               p.Sender,
		Nonce:                NewBig(nonce),
		CallData:             callData,
		CallGasLimit:         NewBigUint(0),
		VerificationGasLimit: NewBigUint(0),
		PreVerificationGas:   NewBigUint(0),
		MaxFeePerGas:         copyBig(tiers.Standard.MaxFeePerGas),
		MaxPriorityFeePerGas: copyBig(tiers.Standard.MaxPriorityFeePerGas),
		Signature:            append([]byte(nil), p.DummySignature...),
	}
	if p.Factory != nil {
		f := *p.Factory
		op.Factory = &f
		op.FactoryData = append([]byte(nil), p.FactoryData...)
	}
	return op, nil
}
