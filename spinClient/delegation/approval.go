package delegation

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	kernelDomainName    = "Kernel"
	kernelDomainVersion = "0.3.1"

	// PolicySudo lets the session key call anything through the account.
	PolicySudo = "sudo"
)

// Approval is the owner-signed certificate enabling a session key on the primary account.
type Approval struct {
	Account      ethcommon.Address `json:"account"`
	Owner        ethcommon.Address `json:"owner"`
	SessionKey   ethcommon.Address `json:"sessionKey"`
	PermissionID hexutil.Bytes     `json:"permissionId"`
	Policy       string            `json:"policy"`
	ChainID      uint64            `json:"chainId"`
	IssuedAt     uint64            `json:"issuedAt"`
	Signature    hexutil.Bytes     `json:"signature"`
}

// TypedData is the EIP-712 Enable message the owner signs.
func (a *Approval) TypedData() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Enable": {
				{Name: "account", Type: "address"},
				{Name: "sessionKey", Type: "address"},
				{Name: "permissionId", Type: "bytes4"},
				{Name: "policy", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "issuedAt", Type: "uint256"},
			},
		},
		PrimaryType: "Enable",
		Domain: apitypes.TypedDataDomain{
			Name:              kernelDomainName,
			Version:           kernelDomainVersion,
			ChainId:           math.NewHexOrDecimal256(int64(a.ChainID)),
			VerifyingContract: a.Account.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"account":      a.Account.Hex(),
			"sessionKey":   a.SessionKey.Hex(),
			"permissionId": hexutil.Encode(a.PermissionID),
			"policy":       a.Policy,
			"chainId":      strconv.FormatUint(a.ChainID, 10),
			"issuedAt":     strconv.FormatUint(a.IssuedAt, 10),
		},
	}
}

// PermissionIDFor derives the 4-byte permission id from the session key address.
func PermissionIDFor(sessionKey ethcommon.Address) []byte {
	return append([]byte(nil), sessionKey.Bytes()[:4]...)
}

// Serialize encodes the approval for storage.
func (a *Approval) Serialize() (string, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode approval: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DeserializeApproval decodes a stored approval without verifying it.
func DeserializeApproval(serialized string) (*Approval, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, fmt.Errorf("approval is not base64: %w", err)
	}
	var a Approval
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("approval is not valid JSON: %w", err)
	}
	if len(a.PermissionID) != 4 {
		return nil, fmt.Errorf("approval permission id must be 4 bytes")
	}
	return &a, nil
}

// chainIDBig is the approval's chain id in the form the signers expect.
func (a *Approval) chainIDBig() *big.Int {
	return new(big.Int).SetUint64(a.ChainID)
}
