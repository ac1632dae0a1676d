package delegation

import (
	"context"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/pushchain/spin-relay/spinClient/userop"
)

var (
	clonePrefix = ethcommon.FromHex("0x3d602d80600a3d3981f3363d3d373d3d3d363d73")
	cloneSuffix = ethcommon.FromHex("0x5af43d82803e903d91602b57fd5bf3")
)

// CodeReader reads contract bytecode.
type CodeReader interface {
	ReadCode(ctx context.Context, addr ethcommon.Address) ([]byte, error)
}

// AccountSalt is keccak256(owner ‖ uint256(0)).
func AccountSalt(owner ethcommon.Address) [32]byte {
	var index [32]byte
	return crypto.Keccak256Hash(owner.Bytes(), index[:])
}

// cloneInitCode is the EIP-1167 minimal proxy creation code for implementation.
func cloneInitCode(implementation ethcommon.Address) []byte {
	out := make([]byte, 0, len(clonePrefix)+ethcommon.AddressLength+len(cloneSuffix))
	out = append(out, clonePrefix...)
	out = append(out, implementation.Bytes()...)
	return append(out, cloneSuffix...)
}

// DeriveAccountAddress returns the counterfactual CREATE2 address of owner's primary account.
func DeriveAccountAddress(factory, implementation, owner ethcommon.Address) ethcommon.Address {
	salt := AccountSalt(owner)
	return crypto.CreateAddress2(factory, salt, crypto.Keccak256(cloneInitCode(implementation)))
}

// FactoryData encodes createAccount(owner, salt) for the first operation of an undeployed account.
func FactoryData(owner ethcommon.Address) ([]byte, error) {
	return userop.KernelABI.Pack("createAccount", owner.Bytes(), AccountSalt(owner))
}

// DeploymentCache remembers accounts known to be deployed. Negative results are never cached
// so an undeployed account is re-checked on every lookup.
type DeploymentCache struct {
	known  *lru.Cache[ethcommon.Address, struct{}]
	logger zerolog.Logger
}

// NewDeploymentCache creates a cache holding up to size accounts.
func NewDeploymentCache(size int, logger zerolog.Logger) (*DeploymentCache, error) {
	known, err := lru.New[ethcommon.Address, struct{}](size)
	if err != nil {
		return nil, err
	}
	return &DeploymentCache{
		known:  known,
		logger: logger.With().Str("component", "deployment_cache").Logger(),
	}, nil
}

// IsDeployed checks for bytecode at addr. Read errors count as not deployed.
func (c *DeploymentCache) IsDeployed(ctx context.Context, reader CodeReader, addr ethcommon.Address) bool {
	if c.known.Contains(addr) {
		return true
	}

	code, err := reader.ReadCode(ctx, addr)
	if err != nil {
		c.logger.Warn().Err(err).Str("account", addr.Hex()).Msg("deployment check failed, assuming not deployed")
		return false
	}
	if len(code) == 0 {
		return false
	}

	c.known.Add(addr, struct{}{})
	return true
}

// MarkDeployed records addr as deployed, e.g. after its first operation confirms.
func (c *DeploymentCache) MarkDeployed(addr ethcommon.Address) {
	c.known.Add(addr, struct{}{})
}
