package paymaster

import (
	"context"
	"fmt"
	"math/big"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/pushchain/spin-relay/spinClient/userop"
)

const (
	// feeTokenMode is the token paymaster's permit mode selector.
	feeTokenMode = 0x00

	paymasterVerificationGas = 200_000
	paymasterPostOpGas       = 15_000
)

// FeeTokenStrategy pays gas in the fee token through a permit-based token paymaster.
type FeeTokenStrategy struct {
	relay     Relay
	drafter   Drafter
	tokens    TokenReader
	token     ethcommon.Address
	paymaster ethcommon.Address
	chainID   *big.Int
	reserve   *big.Int
}

// NewFeeTokenStrategy creates the fee-token strategy. reserve is the permit allowance
// granted to the paymaster for fees.
func NewFeeTokenStrategy(
	relay Relay,
	drafter Drafter,
	tokens TokenReader,
	token, paymaster ethcommon.Address,
	chainID *big.Int,
	reserve *big.Int,
) *FeeTokenStrategy {
	return &FeeTokenStrategy{
		relay:     relay,
		drafter:   drafter,
		tokens:    tokens,
		token:     token,
		paymaster: paymaster,
		chainID:   new(big.Int).Set(chainID),
		reserve:   new(big.Int).Set(reserve),
	}
}

func (s *FeeTokenStrategy) Kind() Kind { return KindFeeToken }

func (s *FeeTokenStrategy) Submit(ctx context.Context, sub *Submission) (ethcommon.Hash, error) {
	op, err := draft(ctx, s.drafter, sub)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	data, err := s.paymasterData(ctx, sub.Signer)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	pm := s.paymaster
	op.Paymaster = &pm
	op.PaymasterData = data
	op.PaymasterVerificationGasLimit = userop.NewBigUint(paymasterVerificationGas)
	op.PaymasterPostOpGasLimit = userop.NewBigUint(paymasterPostOpGas)

	est, err := s.relay.EstimateUserOperationGas(ctx, op)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	est.Apply(op)

	if err := sub.Signer.SignUserOperation(op); err != nil {
		return ethcommon.Hash{}, err
	}
	return s.relay.SendUserOperation(ctx, op)
}

// paymasterData is mode ‖ token ‖ permitAmount ‖ permitSignature.
func (s *FeeTokenStrategy) paymasterData(ctx context.Context, signer Signer) ([]byte, error) {
	owner := signer.Address()

	nonce, err := s.tokens.PermitNonce(ctx, s.token, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to read permit nonce: %w", err)
	}
	name, version, err := s.tokens.TokenDomain(ctx, s.token)
	if err != nil {
		return nil, fmt.Errorf("failed to read token domain: %w", err)
	}

	permit := PermitTypedData(name, version, s.chainID, s.token, owner, s.paymaster, s.reserve, nonce, math.MaxBig256)
	sig, err := signer.SignTypedData(permit)
	if err != nil {
		return nil, fmt.Errorf("failed to sign permit: %w", err)
	}

	out := make([]byte, 0, 1+ethcommon.AddressLength+32+len(sig))
	out = append(out, feeTokenMode)
	out = append(out, s.token.Bytes()...)
	out = append(out, ethcommon.LeftPadBytes(s.reserve.Bytes(), 32)...)
	return append(out, sig...), nil
}

// PermitTypedData is the EIP-2612 permit letting spender draw value from owner.
func PermitTypedData(
	name, version string,
	chainID *big.Int,
	token, owner, spender ethcommon.Address,
	value, nonce, deadline *big.Int,
) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Permit": {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "Permit",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"spender":  spender.Hex(),
			"value":    value.String(),
			"nonce":    nonce.String(),
			"deadline": deadline.String(),
		},
	}
}
