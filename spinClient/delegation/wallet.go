package delegation

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/pushchain/spin-relay/spinClient/config"
	"github.com/pushchain/spin-relay/spinClient/networks"
)

// Class is the signer class of a wallet.
type Class string

const (
	ClassEmbedded  Class = Class(config.WalletTypeEmbedded)
	ClassExtension Class = Class(config.WalletTypeExtension)
	ClassGeneric   Class = Class(config.WalletTypeGeneric)
)

// errUnrecognizedChain is the EIP-3326 code for a chain the wallet does not know.
const errUnrecognizedChain = 4902

// Wallet is an external signer that owns a primary account.
type Wallet interface {
	Class() Class
	Provider() string
	RequestAccounts(ctx context.Context) ([]ethcommon.Address, error)
	CurrentChain(ctx context.Context) (uint64, error)
	SwitchChain(ctx context.Context, profile networks.Profile) error
	SignTypedData(ctx context.Context, account ethcommon.Address, data apitypes.TypedData) ([]byte, error)
}

// EmbeddedWallet holds its key in process and follows whatever chain it is told to.
type EmbeddedWallet struct {
	key     *ecdsa.PrivateKey
	name    string
	mu      sync.RWMutex
	chainID uint64
}

// NewEmbeddedWallet wraps an existing key.
func NewEmbeddedWallet(name string, key *ecdsa.PrivateKey) *EmbeddedWallet {
	return &EmbeddedWallet{key: key, name: name}
}

// LoadEmbeddedWallet decrypts a keystore file, or falls back to a hex key held in privateKeyEnv.
func LoadEmbeddedWallet(name, keystorePath, passwordEnv, privateKeyEnv string) (*EmbeddedWallet, error) {
	if keystorePath != "" {
		keyJSON, err := os.ReadFile(keystorePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read keystore: %w", err)
		}
		key, err := keystore.DecryptKey(keyJSON, os.Getenv(passwordEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt keystore: %w", err)
		}
		return NewEmbeddedWallet(name, key.PrivateKey), nil
	}

	raw := strings.TrimPrefix(strings.TrimSpace(os.Getenv(privateKeyEnv)), "0x")
	if raw == "" {
		return nil, fmt.Errorf("environment variable %s is empty", privateKeyEnv)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key in %s: %w", privateKeyEnv, err)
	}
	return NewEmbeddedWallet(name, key), nil
}

func (w *EmbeddedWallet) Class() Class { return ClassEmbedded }

func (w *EmbeddedWallet) Provider() string {
	if w.name != "" {
		return w.name
	}
	return "embedded"
}

func (w *EmbeddedWallet) RequestAccounts(context.Context) ([]ethcommon.Address, error) {
	return []ethcommon.Address{crypto.PubkeyToAddress(w.key.PublicKey)}, nil
}

func (w *EmbeddedWallet) CurrentChain(context.Context) (uint64, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID, nil
}

func (w *EmbeddedWallet) SwitchChain(_ context.Context, profile networks.Profile) error {
	w.mu.Lock()
	w.chainID = profile.ChainID
	w.mu.Unlock()
	return nil
}

func (w *EmbeddedWallet) SignTypedData(_ context.Context, account ethcommon.Address, data apitypes.TypedData) ([]byte, error) {
	if account != crypto.PubkeyToAddress(w.key.PublicKey) {
		return nil, fmt.Errorf("embedded wallet does not own %s", account.Hex())
	}
	return signTypedData(w.key, data)
}

// jsonRPCWallet is a signer reached over JSON-RPC.
type jsonRPCWallet struct {
	client *rpc.Client
	url    string
}

func dialWallet(ctx context.Context, url string) (jsonRPCWallet, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return jsonRPCWallet{}, fmt.Errorf("failed to reach wallet at %s: %w", url, err)
	}
	return jsonRPCWallet{client: client, url: url}, nil
}

func (w jsonRPCWallet) Provider() string { return w.url }

func (w jsonRPCWallet) RequestAccounts(ctx context.Context) ([]ethcommon.Address, error) {
	var accounts []ethcommon.Address
	if err := w.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (w jsonRPCWallet) CurrentChain(ctx context.Context) (uint64, error) {
	var id hexutil.Uint64
	if err := w.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

func (w jsonRPCWallet) SwitchChain(ctx context.Context, profile networks.Profile) error {
	switchParams := map[string]string{"chainId": profile.ChainIDHex()}
	err := w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchParams)
	if err == nil {
		return nil
	}

	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != errUnrecognizedChain {
		return err
	}

	add := addChainParams{
		ChainID:        profile.ChainIDHex(),
		ChainName:      profile.Name,
		RPCURLs:        []string{profile.PublicRPC},
		NativeCurrency: nativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: 18},
	}
	if profile.ExplorerURL != "" {
		add.BlockExplorerURLs = []string{profile.ExplorerURL}
	}
	if err := w.client.CallContext(ctx, nil, "wallet_addEthereumChain", add); err != nil {
		return fmt.Errorf("failed to add chain %s: %w", profile.Name, err)
	}
	return w.client.CallContext(ctx, nil, "wallet_switchEthereumChain", switchParams)
}

func (w jsonRPCWallet) SignTypedData(ctx context.Context, account ethcommon.Address, data apitypes.TypedData) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode typed data: %w", err)
	}
	var sig hexutil.Bytes
	if err := w.client.CallContext(ctx, &sig, "eth_signTypedData_v4", account, string(payload)); err != nil {
		return nil, err
	}
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("wallet returned a %d byte signature", len(sig))
	}
	return sig, nil
}

// ExtensionWallet is an injected browser-style signer. Its active chain must match the target network.
type ExtensionWallet struct {
	jsonRPCWallet
}

// NewExtensionWallet dials an injected signer bridge.
func NewExtensionWallet(ctx context.Context, url string) (*ExtensionWallet, error) {
	w, err := dialWallet(ctx, url)
	if err != nil {
		return nil, err
	}
	return &ExtensionWallet{jsonRPCWallet: w}, nil
}

func (w *ExtensionWallet) Class() Class { return ClassExtension }

// GenericWallet is any other JSON-RPC signer.
type GenericWallet struct {
	jsonRPCWallet
}

// NewGenericWallet dials a JSON-RPC signer.
func NewGenericWallet(ctx context.Context, url string) (*GenericWallet, error) {
	w, err := dialWallet(ctx, url)
	if err != nil {
		return nil, err
	}
	return &GenericWallet{jsonRPCWallet: w}, nil
}

func (w *GenericWallet) Class() Class { return ClassGeneric }

// LoadWallets builds wallets from config entries, skipping ones that cannot be constructed.
func LoadWallets(ctx context.Context, cfgs []config.WalletConfig) ([]Wallet, []error) {
	var (
		wallets []Wallet
		errs    []error
	)
	for i, c := range cfgs {
		var (
			w   Wallet
			err error
		)
		switch c.Type {
		case config.WalletTypeEmbedded:
			w, err = LoadEmbeddedWallet(c.Name, c.KeystorePath, c.KeystorePasswordEnv, c.PrivateKeyEnv)
		case config.WalletTypeExtension:
			w, err = NewExtensionWallet(ctx, c.RPCURL)
		case config.WalletTypeGeneric:
			w, err = NewGenericWallet(ctx, c.RPCURL)
		default:
			err = fmt.Errorf("unknown wallet type %q", c.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("wallet %d: %w", i, err))
			continue
		}
		wallets = append(wallets, w)
	}
	return wallets, errs
}

// SelectWallet picks embedded over extension over anything else.
func SelectWallet(wallets []Wallet) (Wallet, bool) {
	if len(wallets) == 0 {
		return nil, false
	}
	for _, class := range []Class{ClassEmbedded, ClassExtension} {
		for _, w := range wallets {
			if w.Class() == class {
				return w, true
			}
		}
	}
	return wallets[0], true
}

func signTypedData(key *ecdsa.PrivateKey, data apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// recoverTypedDataSigner returns the address that produced sig over data.
func recoverTypedDataSigner(data apitypes.TypedData, sig []byte) (ethcommon.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return ethcommon.Address{}, fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return ethcommon.Address{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	normalized := append([]byte(nil), sig...)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash, normalized)
	if err != nil {
		return ethcommon.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
