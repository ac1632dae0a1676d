package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

var (
	addressT, _ = abi.NewType("address", "", nil)
	uint256T, _ = abi.NewType("uint256", "", nil)
	bytes32T, _ = abi.NewType("bytes32", "", nil)

	packedOpArgs = abi.Arguments{
		{Type: addressT}, // sender
		{Type: uint256T}, // nonce
		{Type: bytes32T}, // keccak(initCode)
		{Type: bytes32T}, // keccak(callData)
		{Type: bytes32T}, // accountGasLimits
		{Type: uint256T}, // preVerificationGas
		{Type: bytes32T}, // gasFees
		{Type: bytes32T}, // keccak(paymasterAndData)
	}

	opHashArgs = abi.Arguments{
		{Type: bytes32T},
		{Type: addressT},
		{Type: uint256T},
	}
)

// Hash returns the EntryPoint v0.7 user operation hash for entryPoint on chainID.
func (op *UserOperation) Hash(entryPoint ethcommon.Address, chainID *big.Int) (ethcommon.Hash, error) {
	packed, err := packedOpArgs.Pack(
		op.Sender,
		bigOf(op.Nonce),
		crypto.Keccak256Hash(op.InitCode()),
		crypto.Keccak256Hash(op.CallData),
		pair128(bigOf(op.VerificationGasLimit), bigOf(op.CallGasLimit)),
		bigOf(op.PreVerificationGas),
		pair128(bigOf(op.MaxPriorityFeePerGas), bigOf(op.MaxFeePerGas)),
		crypto.Keccak256Hash(op.PaymasterAndData()),
	)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	enc, err := opHashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, chainID)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return crypto.Keccak256Hash(enc), nil
}

// pair128 packs hi and lo into one 32-byte word, 16 bytes each.
func pair128(hi, lo *big.Int) [32]byte {
	word, _ := uint256.FromBig(hi)
	low, _ := uint256.FromBig(lo)
	word.Lsh(word, 128)
	word.Or(word, low)
	return word.Bytes32()
}
