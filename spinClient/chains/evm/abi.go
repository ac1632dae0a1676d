package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

const erc20ABIJSON = `[
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const slotABIJSON = `[
	{"type":"function","name":"spin","stateMutability":"nonpayable","inputs":[{"name":"secret","type":"bytes32"},{"name":"bet","type":"uint256"},{"name":"numLines","type":"uint8"}],"outputs":[]},
	{"type":"event","name":"SpinResult","anonymous":false,"inputs":[
		{"name":"player","type":"address","indexed":true},
		{"name":"totWin","type":"uint256","indexed":false},
		{"name":"pattern","type":"uint8[5][3]","indexed":false},
		{"name":"freespin","type":"bool","indexed":false},
		{"name":"bonus","type":"bool","indexed":false},
		{"name":"numFreespin","type":"uint8","indexed":false},
		{"name":"bonusPrize","type":"uint256","indexed":false},
		{"name":"bonusPrizeIndexes","type":"uint8[]","indexed":false}
	]}
]`

var (
	// ERC20ABI covers the fee-token calls the relay makes, including the EIP-2612 domain reads.
	ERC20ABI = mustParseABI(erc20ABIJSON)

	// SlotABI is the action contract: spin() and its SpinResult event.
	SlotABI = mustParseABI(slotABIJSON)

	// MaxApproval is the allowance granted by the one-time approve call.
	MaxApproval = new(big.Int).Set(math.MaxBig256)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI: %v", err))
	}
	return parsed
}

// SpinResultTopic is topic0 of the SpinResult event.
func SpinResultTopic() ethcommon.Hash {
	return SlotABI.Events["SpinResult"].ID
}

// PackSpin encodes spin(secret, bet, numLines).
func PackSpin(secret [32]byte, bet *big.Int, numLines uint8) ([]byte, error) {
	return SlotABI.Pack("spin", secret, bet, numLines)
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender ethcommon.Address, amount *big.Int) ([]byte, error) {
	return ERC20ABI.Pack("approve", spender, amount)
}
