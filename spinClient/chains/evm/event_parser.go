package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// SpinResult is the decoded SpinResult event.
type SpinResult struct {
	Player            ethcommon.Address
	TotWin            *big.Int
	Pattern           [3][5]uint8
	Freespin          bool
	Bonus             bool
	NumFreespin       uint8
	BonusPrize        *big.Int
	BonusPrizeIndexes []uint8
	BlockNumber       uint64
	TxHash            ethcommon.Hash
}

// Won reports whether the spin paid anything.
func (r *SpinResult) Won() bool {
	return r.TotWin.Sign() > 0 || r.BonusPrize.Sign() > 0
}

// spinResultData mirrors the non-indexed event fields for abi unpacking.
type spinResultData struct {
	TotWin            *big.Int
	Pattern           [3][5]uint8
	Freespin          bool
	Bonus             bool
	NumFreespin       uint8
	BonusPrize        *big.Int
	BonusPrizeIndexes []uint8
}

// SpinResultQuery builds the filter for SpinResult events emitted by contract for player, from fromBlock on.
func SpinResultQuery(contract, player ethcommon.Address, fromBlock uint64) ethereum.FilterQuery {
	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		Addresses: []ethcommon.Address{contract},
		Topics: [][]ethcommon.Hash{
			{SpinResultTopic()},
			{ethcommon.BytesToHash(player.Bytes())},
		},
	}
}

// ParseSpinResult decodes a SpinResult log.
func ParseSpinResult(log types.Log) (*SpinResult, error) {
	if len(log.Topics) < 2 {
		return nil, fmt.Errorf("spin result log has %d topics, want 2", len(log.Topics))
	}
	if log.Topics[0] != SpinResultTopic() {
		return nil, fmt.Errorf("log topic %s is not SpinResult", log.Topics[0].Hex())
	}

	var data spinResultData
	if err := SlotABI.UnpackIntoInterface(&data, "SpinResult", log.Data); err != nil {
		return nil, fmt.Errorf("failed to decode SpinResult: %w", err)
	}

	return &SpinResult{
		Player:            ethcommon.BytesToAddress(log.Topics[1].Bytes()),
		TotWin:            data.TotWin,
		Pattern:           data.Pattern,
		Freespin:          data.Freespin,
		Bonus:             data.Bonus,
		NumFreespin:       data.NumFreespin,
		BonusPrize:        data.BonusPrize,
		BonusPrizeIndexes: data.BonusPrizeIndexes,
		BlockNumber:       log.BlockNumber,
		TxHash:            log.TxHash,
	}, nil
}

// SpinResultLog encodes r as the log contract would emit it.
func SpinResultLog(contract ethcommon.Address, r *SpinResult) (types.Log, error) {
	data, err := SlotABI.Events["SpinResult"].Inputs.NonIndexed().Pack(
		r.TotWin,
		r.Pattern,
		r.Freespin,
		r.Bonus,
		r.NumFreespin,
		r.BonusPrize,
		r.BonusPrizeIndexes,
	)
	if err != nil {
		return types.Log{}, fmt.Errorf("failed to pack SpinResult: %w", err)
	}
	return types.Log{
		Address:     contract,
		Topics:      []ethcommon.Hash{SpinResultTopic(), ethcommon.BytesToHash(r.Player.Bytes())},
		Data:        data,
		BlockNumber: r.BlockNumber,
		TxHash:      r.TxHash,
	}, nil
}
