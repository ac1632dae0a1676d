package paymaster

import (
	"context"
	"fmt"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// SponsoredStrategy has the relay's sponsoring paymaster cover gas.
type SponsoredStrategy struct {
	relay   Relay
	drafter Drafter
}

// NewSponsoredStrategy creates the sponsored strategy.
func NewSponsoredStrategy(relay Relay, drafter Drafter) *SponsoredStrategy {
	return &SponsoredStrategy{relay: relay, drafter: drafter}
}

func (s *SponsoredStrategy) Kind() Kind { return KindSponsored }

func (s *SponsoredStrategy) Submit(ctx context.Context, sub *Submission) (ethcommon.Hash, error) {
	op, err := draft(ctx, s.drafter, sub)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	sponsorship, err := s.relay.SponsorUserOperation(ctx, op)
	if err != nil {
		return ethcommon.Hash{}, fmt.Errorf("sponsorship declined: %w", err)
	}
	sponsorship.Apply(op)

	if err := sub.Signer.SignUserOperation(op); err != nil {
		return ethcommon.Hash{}, err
	}
	return s.relay.SendUserOperation(ctx, op)
}
