package delegation

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/pushchain/spin-relay/spinClient/networks"
	"github.com/pushchain/spin-relay/spinClient/userop"
)

const (
	nonceModeEnable     = 0x01
	nonceTypePermission = 0x02
)

// SessionAccount is the executable handle rebuilt from an approval plus its session key.
type SessionAccount struct {
	approval    *Approval
	sessionKey  *ecdsa.PrivateKey
	entryPoint  ethcommon.Address
	factory     ethcommon.Address
	factoryData []byte
}

// Rehydrate verifies serialized against profile and sessionKey and returns the account handle.
// It rejects approvals minted for another chain, signed by someone other than the account
// owner, or issued to a different session key.
func Rehydrate(serialized string, sessionKey *ecdsa.PrivateKey, profile networks.Profile) (*SessionAccount, error) {
	if sessionKey == nil {
		return nil, fmt.Errorf("session key is required")
	}
	a, err := DeserializeApproval(serialized)
	if err != nil {
		return nil, err
	}

	if a.ChainID != profile.ChainID {
		return nil, fmt.Errorf("approval is bound to chain %d, network %s is chain %d", a.ChainID, profile.Key, profile.ChainID)
	}
	if got := crypto.PubkeyToAddress(sessionKey.PublicKey); got != a.SessionKey {
		return nil, fmt.Errorf("session key %s does not match approval", got.Hex())
	}
	if expected := DeriveAccountAddress(profile.FactoryAddress(), profile.ImplementationAddress(), a.Owner); expected != a.Account {
		return nil, fmt.Errorf("approval account %s is not owned by %s", a.Account.Hex(), a.Owner.Hex())
	}

	signer, err := recoverTypedDataSigner(a.TypedData(), a.Signature)
	if err != nil {
		return nil, fmt.Errorf("invalid approval signature: %w", err)
	}
	if signer != a.Owner {
		return nil, fmt.Errorf("approval signed by %s, expected owner %s", signer.Hex(), a.Owner.Hex())
	}

	factoryData, err := FactoryData(a.Owner)
	if err != nil {
		return nil, err
	}

	return &SessionAccount{
		approval:    a,
		sessionKey:  sessionKey,
		entryPoint:  profile.EntryPointAddress(),
		factory:     profile.FactoryAddress(),
		factoryData: factoryData,
	}, nil
}

// Address is the primary account address.
func (s *SessionAccount) Address() ethcommon.Address { return s.approval.Account }

// Owner is the external signer that enabled the session.
func (s *SessionAccount) Owner() ethcommon.Address { return s.approval.Owner }

// SessionAddress is the ephemeral signer's address.
func (s *SessionAccount) SessionAddress() ethcommon.Address { return s.approval.SessionKey }

// ChainID is the chain the session is bound to.
func (s *SessionAccount) ChainID() uint64 { return s.approval.ChainID }

// NonceKey selects the permission validator: mode ‖ type ‖ permission id, zero padded to 24 bytes.
func (s *SessionAccount) NonceKey() *big.Int {
	key := make([]byte, 24)
	key[0] = nonceModeEnable
	key[1] = nonceTypePermission
	copy(key[2:6], s.approval.PermissionID)
	return new(big.Int).SetBytes(key)
}

// EncodeCalls encodes calls as one batched account execution.
func (s *SessionAccount) EncodeCalls(calls []userop.Call) ([]byte, error) {
	return userop.EncodeExecuteBatch(calls)
}

// FactoryFields returns the factory pair to deploy the account, or nil when already deployed.
func (s *SessionAccount) FactoryFields(deployed bool) (*ethcommon.Address, []byte) {
	if deployed {
		return nil, nil
	}
	f := s.factory
	return &f, append([]byte(nil), s.factoryData...)
}

// DummySignature has the final signature's length for gas estimation.
func (s *SessionAccount) DummySignature() []byte {
	out := make([]byte, 0, 2*crypto.SignatureLength)
	out = append(out, s.approval.Signature...)
	dummy := make([]byte, crypto.SignatureLength)
	for i := range dummy {
		dummy[i] = 0xff
	}
	dummy[crypto.RecoveryIDOffset] = 27
	return append(out, dummy...)
}

// SignUserOperation signs op with the session key: approval signature ‖ session signature.
func (s *SessionAccount) SignUserOperation(op *userop.UserOperation) error {
	hash, err := op.Hash(s.entryPoint, s.approval.chainIDBig())
	if err != nil {
		return fmt.Errorf("failed to hash operation: %w", err)
	}
	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), s.sessionKey)
	if err != nil {
		return fmt.Errorf("failed to sign operation: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	out := make([]byte, 0, 2*crypto.SignatureLength)
	out = append(out, s.approval.Signature...)
	op.Signature = append(out, sig...)
	return nil
}

// SignTypedData signs data on behalf of the account (ERC-1271 style): permission id ‖ session signature.
func (s *SessionAccount) SignTypedData(data apitypes.TypedData) ([]byte, error) {
	sig, err := signTypedData(s.sessionKey, data)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(s.approval.PermissionID)+len(sig))
	out = append(out, nonceTypePermission)
	out = append(out, s.approval.PermissionID...)
	return append(out, sig...), nil
}

// VerifySessionSignature reports whether sig (as produced by SignUserOperation) was made by
// this session over op.
func (s *SessionAccount) VerifySessionSignature(op *userop.UserOperation) bool {
	if len(op.Signature) != 2*crypto.SignatureLength {
		return false
	}
	hash, err := op.Hash(s.entryPoint, s.approval.chainIDBig())
	if err != nil {
		return false
	}
	sig := append([]byte(nil), op.Signature[crypto.SignatureLength:]...)
	sig[crypto.RecoveryIDOffset] -= 27
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), sig)
	if err != nil {
		return false
	}
	return crypto.PubkeyToAddress(*pub) == s.approval.SessionKey
}
