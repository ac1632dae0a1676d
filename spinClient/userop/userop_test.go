package userop

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testEntryPoint = ethcommon.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	testSender     = ethcommon.HexToAddress("0x2222222222222222222222222222222222222222")
	testToken      = ethcommon.HexToAddress("0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d")
	testSlot       = ethcommon.HexToAddress("0x9Dc3e731cfa840c83253b4e16155E0b8a74399ab")
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               testSender,
		Nonce:                NewBigUint(3),
		CallData:             []byte{0xde, 0xad},
		CallGasLimit:         NewBigUint(100_000),
		VerificationGasLimit: NewBigUint(200_000),
		PreVerificationGas:   NewBigUint(50_000),
		MaxFeePerGas:         NewBigUint(2_000_000_000),
		MaxPriorityFeePerGas: NewBigUint(1_000_000),
		Signature:            []byte{0x01},
	}
}

func TestUserOperationHash(t *testing.T) {
	op := sampleOp()

	h1, err := op.Hash(testEntryPoint, big.NewInt(421614))
	require.NoError(t, err)
	h2, err := op.Hash(testEntryPoint, big.NewInt(421614))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	t.Run("bound to chain", func(t *testing.T) {
		other, err := op.Hash(testEntryPoint, big.NewInt(42161))
		require.NoError(t, err)
		assert.NotEqual(t, h1, other)
	})

	t.Run("signature is not hashed", func(t *testing.T) {
		signed := op.Copy()
		signed.Signature = []byte{0x02, 0x03}
		h, err := signed.Hash(testEntryPoint, big.NewInt(421614))
		require.NoError(t, err)
		assert.Equal(t, h1, h)
	})

	t.Run("paymaster changes hash", func(t *testing.T) {
		withPM := op.Copy()
		pm := ethcommon.HexToAddress("0x31BE08D380A21fc740883c0BC434FcFc88740b58")
		withPM.Paymaster = &pm
		h, err := withPM.Hash(testEntryPoint, big.NewInt(421614))
		require.NoError(t, err)
		assert.NotEqual(t, h1, h)
	})
}

func TestPackedFields(t *testing.T) {
	op := sampleOp()
	assert.Nil(t, op.InitCode())
	assert.Nil(t, op.PaymasterAndData())
	assert.False(t, op.HasPaymaster())

	factory := ethcommon.HexToAddress("0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419")
	op.Factory = &factory
	op.FactoryData = []byte{0xaa, 0xbb}
	initCode := op.InitCode()
	require.Len(t, initCode, 22)
	assert.Equal(t, factory.Bytes(), initCode[:20])
	assert.Equal(t, []byte{0xaa, 0xbb}, initCode[20:])

	pm := ethcommon.HexToAddress("0x31BE08D380A21fc740883c0BC434FcFc88740b58")
	op.Paymaster = &pm
	op.PaymasterVerificationGasLimit = NewBigUint(0x1234)
	op.PaymasterPostOpGasLimit = NewBigUint(0x56)
	op.PaymasterData = []byte{0x00}
	pmd := op.PaymasterAndData()
	require.Len(t, pmd, 20+16+16+1)
	assert.Equal(t, pm.Bytes(), pmd[:20])
	assert.Equal(t, byte(0x12), pmd[34])
	assert.Equal(t, byte(0x34), pmd[35])
	assert.Equal(t, byte(0x56), pmd[51])
	assert.True(t, op.HasPaymaster())
}

func TestPair128(t *testing.T) {
	word := pair128(big.NewInt(200_000), big.NewInt(100_000))
	assert.Equal(t, uint128(big.NewInt(200_000)), word[:16])
	assert.Equal(t, uint128(big.NewInt(100_000)), word[16:])

	zero := pair128(new(big.Int), new(big.Int))
	assert.Equal(t, [32]byte{}, zero)
}

func TestUserOperationJSON(t *testing.T) {
	op := sampleOp()
	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x3", fields["nonce"])
	assert.Equal(t, "0xdead", fields["callData"])
	assert.Equal(t, "0x186a0", fields["callGasLimit"])
	assert.NotContains(t, fields, "factory")
	assert.NotContains(t, fields, "paymaster")
}

func TestCopyIsDeep(t *testing.T) {
	op := sampleOp()
	cp := op.Copy()
	cp.Nonce.ToInt().SetInt64(99)
	cp.CallData[0] = 0x00
	assert.Equal(t, int64(3), op.Nonce.ToInt().Int64())
	assert.Equal(t, byte(0xde), op.CallData[0])
}

func TestEncodeExecuteBatch(t *testing.T) {
	calls := []Call{
		{Target: testToken, CallData: []byte{0x09, 0x5e, 0xa7, 0xb3}},
		{Target: testSlot, Value: big.NewInt(0), CallData: []byte{0x01, 0x02}},
	}

	data, err := EncodeExecuteBatch(calls)
	require.NoError(t, err)
	assert.Equal(t, KernelABI.Methods["execute"].ID, data[:4])

	decoded, err := DecodeExecuteBatch(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, testToken, decoded[0].Target)
	assert.Equal(t, 0, decoded[0].Value.Sign())
	assert.Equal(t, []byte{0x01, 0x02}, decoded[1].CallData)

	_, err = EncodeExecuteBatch(nil)
	assert.ErrorContains(t, err, "empty call batch")

	_, err = DecodeExecuteBatch([]byte{0x01})
	assert.ErrorContains(t, err, "too short")
}

type fakeCaller struct {
	nonce *big.Int
	err   error
	msgs  []ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	f.msgs = append(f.msgs, msg)
	if f.err != nil {
		return nil, f.err
	}
	return KernelABI.Methods["getNonce"].Outputs.Pack(f.nonce)
}

type fakePricer struct {
	tiers *GasPriceTiers
	err   error
}

func (f *fakePricer) GasPrice(context.Context) (*GasPriceTiers, error) {
	return f.tiers, f.err
}

func standardTiers() *GasPriceTiers {
	return &GasPriceTiers{
		Standard: GasFees{
			MaxFeePerGas:         (*hexutil.Big)(big.NewInt(100)),
			MaxPriorityFeePerGas: (*hexutil.Big)(big.NewInt(10)),
		},
	}
}

func TestBuilderDraft(t *testing.T) {
	calls := []Call{{Target: testSlot, CallData: []byte{0x01}}}

	t.Run("deployed account", func(t *testing.T) {
		caller := &fakeCaller{nonce: big.NewInt(5)}
		b := NewBuilder(testEntryPoint, caller, &fakePricer{tiers: standardTiers()})

		op, err := b.Draft(context.Background(), DraftParams{
			Sender:         testSender,
			NonceKey:       big.NewInt(1),
			Calls:          calls,
			DummySignature: []byte{0xff},
		})
		require.NoError(t, err)

		assert.Equal(t, int64(5), op.Nonce.ToInt().Int64())
		assert.Equal(t, int64(100), op.MaxFeePerGas.ToInt().Int64())
		assert.Equal(t, int64(10), op.MaxPriorityFeePerGas.ToInt().Int64())
		assert.Nil(t, op.Factory)
		assert.Equal(t, hexutil.Bytes{0xff}, op.Signature)
		require.Len(t, caller.msgs, 1)
		assert.Equal(t, testEntryPoint, *caller.msgs[0].To)
	})

	t.Run("undeployed account carries factory", func(t *testing.T) {
		factory := ethcommon.HexToAddress("0xaac5D4240AF87249B3f71BC8E4A2cae074A3E419")
		b := NewBuilder(testEntryPoint, &fakeCaller{nonce: big.NewInt(0)}, &fakePricer{tiers: standardTiers()})

		op, err := b.Draft(context.Background(), DraftParams{
			Sender:      testSender,
			Calls:       calls,
			Factory:     &factory,
			FactoryData: []byte{0x01},
		})
		require.NoError(t, err)
		require.NotNil(t, op.Factory)
		assert.Equal(t, factory, *op.Factory)
	})

	t.Run("nonce read fails", func(t *testing.T) {
		b := NewBuilder(testEntryPoint, &fakeCaller{err: errors.New("rpc down")}, &fakePricer{tiers: standardTiers()})
		_, err := b.Draft(context.Background(), DraftParams{Sender: testSender, Calls: calls})
		assert.ErrorContains(t, err, "failed to read nonce")
	})

	t.Run("gas price fails", func(t *testing.T) {
		b := NewBuilder(testEntryPoint, &fakeCaller{nonce: big.NewInt(0)}, &fakePricer{err: errors.New("503")})
		_, err := b.Draft(context.Background(), DraftParams{Sender: testSender, Calls: calls})
		assert.ErrorContains(t, err, "failed to fetch gas price")
	})

	t.Run("missing standard tier", func(t *testing.T) {
		b := NewBuilder(testEntryPoint, &fakeCaller{nonce: big.NewInt(0)}, &fakePricer{tiers: &GasPriceTiers{}})
		_, err := b.Draft(context.Background(), DraftParams{Sender: testSender, Calls: calls})
		assert.ErrorContains(t, err, "missing standard tier")
	})
}

func TestSponsorshipApply(t *testing.T) {
	op := sampleOp()
	s := &Sponsorship{
		GasEstimate: GasEstimate{
			PreVerificationGas:            NewBigUint(1),
			VerificationGasLimit:          NewBigUint(2),
			CallGasLimit:                  NewBigUint(3),
			PaymasterVerificationGasLimit: NewBigUint(4),
			PaymasterPostOpGasLimit:       NewBigUint(5),
		},
		Paymaster:     ethcommon.HexToAddress("0x0000000000000000000000000000000000000abc"),
		PaymasterData: []byte{0x07},
	}
	s.Apply(op)

	assert.Equal(t, int64(3), op.CallGasLimit.ToInt().Int64())
	assert.Equal(t, int64(4), op.PaymasterVerificationGasLimit.ToInt().Int64())
	assert.True(t, op.HasPaymaster())
	assert.Equal(t, hexutil.Bytes{0x07}, op.PaymasterData)
	assert.Equal(t, int64(2_000_000_000), op.MaxFeePerGas.ToInt().Int64())
}
