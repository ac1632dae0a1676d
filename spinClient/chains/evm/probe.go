package evm

import (
	"context"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// ChainProbe verifies an endpoint serves the expected chain and that the
// contracts the relay depends on are deployed there.
type ChainProbe struct {
	chainID   uint64
	contracts []ethcommon.Address
}

// NewChainProbe returns a probe for chainID. Each contract must have code.
func NewChainProbe(chainID uint64, contracts ...ethcommon.Address) *ChainProbe {
	return &ChainProbe{chainID: chainID, contracts: contracts}
}

// Check runs the chain ID, head and contract checks in order.
func (p *ChainProbe) Check(ctx context.Context, client chainClient) error {
	if err := p.checkChainID(ctx, client); err != nil {
		return err
	}

	head, err := client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("failed to read head: %w", err)
	}
	if head == 0 {
		return fmt.Errorf("endpoint reports head 0, not synced")
	}

	for _, addr := range p.contracts {
		code, err := client.CodeAt(ctx, addr, nil)
		if err != nil {
			return fmt.Errorf("failed to read code at %s: %w", addr.Hex(), err)
		}
		if len(code) == 0 {
			return fmt.Errorf("no contract deployed at %s", addr.Hex())
		}
	}
	return nil
}

func (p *ChainProbe) checkChainID(ctx context.Context, client chainClient) error {
	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain ID: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != p.chainID {
		return fmt.Errorf("wrong chain: want %d, endpoint serves %s", p.chainID, id)
	}
	return nil
}
