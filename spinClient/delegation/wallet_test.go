package delegation

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unrecognizedChainError struct{}

func (unrecognizedChainError) Error() string  { return "Unrecognized chain ID" }
func (unrecognizedChainError) ErrorCode() int { return errUnrecognizedChain }

// injectedSigner emulates the eth_ and wallet_ namespaces of a browser wallet.
type injectedSigner struct {
	key     *ecdsa.PrivateKey
	chainID uint64
	known   map[string]bool
	added   []addChainParams
}

type injectedEth struct{ s *injectedSigner }

func (e injectedEth) ChainId() hexutil.Uint64 { return hexutil.Uint64(e.s.chainID) }

func (e injectedEth) RequestAccounts() []ethcommon.Address {
	return []ethcommon.Address{crypto.PubkeyToAddress(e.s.key.PublicKey)}
}

func (e injectedEth) SignTypedData_v4(_ ethcommon.Address, payload string) (hexutil.Bytes, error) {
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(payload), &td); err != nil {
		return nil, err
	}
	return signTypedData(e.s.key, td)
}

type injectedWalletNS struct{ s *injectedSigner }

func (w injectedWalletNS) SwitchEthereumChain(params map[string]string) error {
	id := params["chainId"]
	if !w.s.known[id] {
		return unrecognizedChainError{}
	}
	w.s.chainID = hexutil.MustDecodeUint64(id)
	return nil
}

func (w injectedWalletNS) AddEthereumChain(params addChainParams) error {
	w.s.added = append(w.s.added, params)
	w.s.known[params.ChainID] = true
	return nil
}

func newInjectedWallet(t *testing.T, chainID uint64, known ...string) (*ExtensionWallet, *injectedSigner) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	signer := &injectedSigner{key: key, chainID: chainID, known: map[string]bool{}}
	for _, k := range known {
		signer.known[k] = true
	}

	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", injectedEth{s: signer}))
	require.NoError(t, server.RegisterName("wallet", injectedWalletNS{s: signer}))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})

	return &ExtensionWallet{jsonRPCWallet: jsonRPCWallet{client: client, url: "inproc"}}, signer
}

func TestExtensionWallet(t *testing.T) {
	ctx := context.Background()
	profile := testProfile()

	t.Run("reads chain and accounts", func(t *testing.T) {
		w, signer := newInjectedWallet(t, 1)

		chain, err := w.CurrentChain(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(1), chain)

		accts, err := w.RequestAccounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, []ethcommon.Address{crypto.PubkeyToAddress(signer.key.PublicKey)}, accts)
		assert.Equal(t, ClassExtension, w.Class())
		assert.Equal(t, "inproc", w.Provider())
	})

	t.Run("switches to a known chain", func(t *testing.T) {
		w, signer := newInjectedWallet(t, 1, profile.ChainIDHex())

		require.NoError(t, w.SwitchChain(ctx, profile))
		assert.Equal(t, profile.ChainID, signer.chainID)
		assert.Empty(t, signer.added)
	})

	t.Run("adds an unrecognized chain then switches", func(t *testing.T) {
		w, signer := newInjectedWallet(t, 1)

		require.NoError(t, w.SwitchChain(ctx, profile))
		require.Len(t, signer.added, 1)
		assert.Equal(t, profile.ChainIDHex(), signer.added[0].ChainID)
		assert.Equal(t, []string{profile.PublicRPC}, signer.added[0].RPCURLs)
		assert.Equal(t, profile.ChainID, signer.chainID)
	})

	t.Run("signs typed data", func(t *testing.T) {
		w, signer := newInjectedWallet(t, profile.ChainID)
		owner := crypto.PubkeyToAddress(signer.key.PublicKey)

		a := &Approval{
			Account:      ethcommon.HexToAddress("0x00000000000000000000000000000000000000aa"),
			Owner:        owner,
			SessionKey:   ethcommon.HexToAddress("0x00000000000000000000000000000000000000bb"),
			PermissionID: []byte{1, 2, 3, 4},
			Policy:       PolicySudo,
			ChainID:      profile.ChainID,
			IssuedAt:     1,
		}
		sig, err := w.SignTypedData(ctx, owner, a.TypedData())
		require.NoError(t, err)

		recovered, err := recoverTypedDataSigner(a.TypedData(), sig)
		require.NoError(t, err)
		assert.Equal(t, owner, recovered)
	})
}
