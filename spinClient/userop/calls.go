package userop

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Call is one entry of an account batch.
type Call struct {
	Target   ethcommon.Address
	Value    *big.Int
	CallData []byte
}

// kernelABI covers the account and EntryPoint surfaces the relay encodes against.
const kernelABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"payable","inputs":[{"name":"execMode","type":"bytes32"},{"name":"executionCalldata","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"rootValidator","type":"bytes21"},{"name":"hook","type":"address"},{"name":"validatorData","type":"bytes"},{"name":"hookData","type":"bytes"},{"name":"initConfig","type":"bytes[]"}],"outputs":[]},
	{"type":"function","name":"createAccount","stateMutability":"payable","inputs":[{"name":"data","type":"bytes"},{"name":"salt","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	// KernelABI is the account, factory and EntryPoint interface.
	KernelABI abi.ABI

	executionsArgs abi.Arguments
)

// ExecModeBatch selects call type 0x01 (batch) with default exec type.
var ExecModeBatch = [32]byte{0x01}

func init() {
	parsed, err := abi.JSON(strings.NewReader(kernelABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid kernel ABI: %v", err))
	}
	KernelABI = parsed

	executionT, err := abi.NewType("tuple[]", "", []abi.ArgumentMarshaling{
		{Name: "target", Type: "address"},
		{Name: "value", Type: "uint256"},
		{Name: "callData", Type: "bytes"},
	})
	if err != nil {
		panic(fmt.Sprintf("invalid execution type: %v", err))
	}
	executionsArgs = abi.Arguments{{Type: executionT}}
}

// execution mirrors the Kernel Execution struct for abi encoding.
type execution struct {
	Target   ethcommon.Address
	Value    *big.Int
	CallData []byte
}

// EncodeExecuteBatch encodes execute(batchMode, abi.encode(Execution[])) for the account.
func EncodeExecuteBatch(calls []Call) ([]byte, error) {
	if len(calls) == 0 {
		return nil, fmt.Errorf("empty call batch")
	}

	execs := make([]execution, len(calls))
	for i, c := range calls {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		execs[i] = execution{Target: c.Target, Value: value, CallData: c.CallData}
	}

	execData, err := executionsArgs.Pack(execs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode executions: %w", err)
	}
	return KernelABI.Pack("execute", ExecModeBatch, execData)
}

// DecodeExecuteBatch reverses EncodeExecuteBatch.
func DecodeExecuteBatch(callData []byte) ([]Call, error) {
	if len(callData) < 4 {
		return nil, fmt.Errorf("call data too short")
	}
	method, err := KernelABI.MethodById(callData[:4])
	if err != nil || method.Name != "execute" {
		return nil, fmt.Errorf("call data is not an execute call")
	}

	args, err := method.Inputs.Unpack(callData[4:])
	if err != nil {
		return nil, fmt.Errorf("failed to decode execute: %w", err)
	}
	mode := args[0].([32]byte)
	if mode != ExecModeBatch {
		return nil, fmt.Errorf("unsupported exec mode %x", mode[:1])
	}

	unpacked, err := executionsArgs.Unpack(args[1].([]byte))
	if err != nil {
		return nil, fmt.Errorf("failed to decode executions: %w", err)
	}

	var execs []execution
	if err := executionsArgs.Copy(&execs, unpacked); err != nil {
		return nil, fmt.Errorf("failed to copy executions: %w", err)
	}

	out := make([]Call, len(execs))
	for i, e := range execs {
		out[i] = Call{Target: e.Target, Value: e.Value, CallData: e.CallData}
	}
	return out, nil
}
