// Package paymaster decides who pays gas for an operation: a sponsoring paymaster, or
// the account itself in the fee token through a permit-based token paymaster.
package paymaster

import (
	"context"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/pushchain/spin-relay/spinClient/userop"
)

// Kind names a gas payment strategy.
type Kind string

const (
	KindSponsored Kind = "sponsored"
	KindFeeToken  Kind = "fee_token"
)

// Signer is the session account acting for the primary account.
type Signer interface {
	Address() ethcommon.Address
	NonceKey() *big.Int
	FactoryFields(deployed bool) (*ethcommon.Address, []byte)
	DummySignature() []byte
	SignUserOperation(op *userop.UserOperation) error
	SignTypedData(data apitypes.TypedData) ([]byte, error)
}

// Relay submits operations and prices them.
type Relay interface {
	SendUserOperation(ctx context.Context, op *userop.UserOperation) (ethcommon.Hash, error)
	EstimateUserOperationGas(ctx context.Context, op *userop.UserOperation) (*userop.GasEstimate, error)
	SponsorUserOperation(ctx context.Context, op *userop.UserOperation) (*userop.Sponsorship, error)
}

// Drafter builds unsigned operations.
type Drafter interface {
	Draft(ctx context.Context, p userop.DraftParams) (*userop.UserOperation, error)
}

// TokenReader reads what an EIP-2612 permit needs.
type TokenReader interface {
	PermitNonce(ctx context.Context, token, owner ethcommon.Address) (*big.Int, error)
	TokenDomain(ctx context.Context, token ethcommon.Address) (string, string, error)
}

// Submission is one request's batch, ready to be paid for and sent.
type Submission struct {
	Signer   Signer
	Deployed bool
	Calls    []userop.Call
	Bet      *big.Int
	Balance  *big.Int // fee-token balance read immediately before submission
}

// Strategy pays for and submits an operation.
type Strategy interface {
	Kind() Kind
	Submit(ctx context.Context, sub *Submission) (ethcommon.Hash, error)
}

func draft(ctx context.Context, d Drafter, sub *Submission) (*userop.UserOperation, error) {
	factory, factoryData := sub.Signer.FactoryFields(sub.Deployed)
	return d.Draft(ctx, userop.DraftParams{
		Sender:         sub.Signer.Address(),
		NonceKey:       sub.Signer.NonceKey(),
		Calls:          sub.Calls,
		Factory:        factory,
		FactoryData:    factoryData,
		DummySignature: sub.Signer.DummySignature(),
	})
}
