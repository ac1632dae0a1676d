package evm

import (
	"math/big"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildSpinResultLog(t *testing.T, player ethcommon.Address, totWin, bonusPrize int64, bonus bool, indexes []uint8) types.Log {
	t.Helper()

	log, err := SpinResultLog(testSpender, &SpinResult{
		Player: player,
		TotWin: big.NewInt(totWin),
		Pattern: [3][5]uint8{
			{1, 2, 3, 4, 5},
			{6, 7, 8, 9, 10},
			{0, 1, 0, 1, 0},
		},
		Bonus:             bonus,
		BonusPrize:        big.NewInt(bonusPrize),
		BonusPrizeIndexes: indexes,
		BlockNumber:       42,
		TxHash:            ethcommon.HexToHash("0xabc"),
	})
	require.NoError(t, err)
	return log
}

func TestParseSpinResult(t *testing.T) {
	t.Run("decodes every field", func(t *testing.T) {
		log := buildSpinResultLog(t, testOwner, 1_500_000, 0, true, []uint8{0, 4})

		res, err := ParseSpinResult(log)
		require.NoError(t, err)

		assert.Equal(t, testOwner, res.Player)
		assert.Equal(t, big.NewInt(1_500_000), res.TotWin)
		assert.Equal(t, uint8(10), res.Pattern[1][4])
		assert.True(t, res.Bonus)
		assert.False(t, res.Freespin)
		assert.Equal(t, []uint8{0, 4}, res.BonusPrizeIndexes)
		assert.Equal(t, uint64(42), res.BlockNumber)
		assert.True(t, res.Won())
	})

	t.Run("bonus prize alone counts as a win", func(t *testing.T) {
		res, err := ParseSpinResult(buildSpinResultLog(t, testOwner, 0, 200_000, true, []uint8{1}))
		require.NoError(t, err)
		assert.True(t, res.Won())
	})

	t.Run("no payout is a loss", func(t *testing.T) {
		res, err := ParseSpinResult(buildSpinResultLog(t, testOwner, 0, 0, false, []uint8{}))
		require.NoError(t, err)
		assert.False(t, res.Won())
		assert.Empty(t, res.BonusPrizeIndexes)
	})

	t.Run("wrong topic", func(t *testing.T) {
		log := buildSpinResultLog(t, testOwner, 0, 0, false, []uint8{})
		log.Topics[0] = ethcommon.HexToHash("0x01")
		_, err := ParseSpinResult(log)
		assert.ErrorContains(t, err, "is not SpinResult")
	})

	t.Run("missing player topic", func(t *testing.T) {
		log := buildSpinResultLog(t, testOwner, 0, 0, false, []uint8{})
		log.Topics = log.Topics[:1]
		_, err := ParseSpinResult(log)
		assert.ErrorContains(t, err, "want 2")
	})

	t.Run("truncated data", func(t *testing.T) {
		log := buildSpinResultLog(t, testOwner, 0, 0, false, []uint8{})
		log.Data = log.Data[:32]
		_, err := ParseSpinResult(log)
		assert.ErrorContains(t, err, "failed to decode SpinResult")
	})
}

func TestSpinResultQuery(t *testing.T) {
	q := SpinResultQuery(testSpender, testOwner, 99)

	assert.Equal(t, big.NewInt(99), q.FromBlock)
	assert.Nil(t, q.ToBlock)
	assert.Equal(t, []ethcommon.Address{testSpender}, q.Addresses)
	require.Len(t, q.Topics, 2)
	assert.Equal(t, SpinResultTopic(), q.Topics[0][0])
	assert.Equal(t, ethcommon.BytesToHash(testOwner.Bytes()), q.Topics[1][0])
}

func TestPackHelpers(t *testing.T) {
	var secret [32]byte
	secret[0] = 0xaa

	data, err := PackSpin(secret, big.NewInt(100_000), 20)
	require.NoError(t, err)
	assert.Equal(t, SlotABI.Methods["spin"].ID, data[:4])
	assert.Len(t, data, 4+32*3)

	data, err = PackApprove(testSpender, MaxApproval)
	require.NoError(t, err)
	assert.Equal(t, ERC20ABI.Methods["approve"].ID, data[:4])

	args, err := ERC20ABI.Methods["approve"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, testSpender, args[0])
	assert.Equal(t, 0, MaxApproval.Cmp(args[1].(*big.Int)))
}
