package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testMessage = "Sign this message to authenticate with PumpPilot.\nNonce: 1000"

type fakeReader struct {
	code    []byte
	codeErr error
	out     []byte
	callErr error
	calls   []ethereum.CallMsg
}

func (f *fakeReader) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	return f.code, f.codeErr
}

func (f *fakeReader) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, call)
	return f.out, f.callErr
}

type revertError struct{}

func (revertError) Error() string  { return "execution reverted" }
func (revertError) ErrorCode() int { return 3 }

func signed(t *testing.T, message string) (common.Address, []byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := eth.SignPersonal(message, key)
	require.NoError(t, err)
	return crypto.PubkeyToAddress(key.PublicKey), sig
}

func magicWord() []byte {
	out := make([]byte, 32)
	copy(out, erc1271Magic)
	return out
}

func TestVerifier_ExternallyOwnedAccount(t *testing.T) {
	addr, sig := signed(t, testMessage)
	v := NewVerifier(nil)

	assert.NoError(t, v.Verify(context.Background(), addr.Hex(), testMessage, sig))
	assert.NoError(t, v.Verify(context.Background(), addr.Hex()[:2]+common.Bytes2Hex(addr.Bytes()), testMessage, sig), "lower-case address")

	err := v.Verify(context.Background(), addr.Hex(), testMessage+"x", sig)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	other, _ := signed(t, testMessage)
	err = v.Verify(context.Background(), other.Hex(), testMessage, sig)
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	err = v.Verify(context.Background(), addr.Hex(), testMessage, []byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrSignatureInvalid)

	err = v.Verify(context.Background(), "0xnothex", testMessage, sig)
	assert.ErrorIs(t, err, core.ErrInvalidAddress)
}

func TestVerifier_ContractWallet(t *testing.T) {
	wallet := common.HexToAddress("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	_, sig := signed(t, testMessage)

	t.Run("accepted", func(t *testing.T) {
		reader := &fakeReader{code: []byte{0x60, 0x80}, out: magicWord()}
		require.NoError(t, NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig))
		require.Len(t, reader.calls, 1)
		assert.Equal(t, wallet, *reader.calls[0].To)
		assert.Equal(t, erc1271Magic, reader.calls[0].Data[:4], "isValidSignature selector")
	})

	t.Run("rejected", func(t *testing.T) {
		reader := &fakeReader{code: []byte{0x60, 0x80}, out: make([]byte, 32)}
		err := NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig)
		assert.ErrorIs(t, err, core.ErrSignatureInvalid)
	})

	t.Run("reverted", func(t *testing.T) {
		reader := &fakeReader{code: []byte{0x60, 0x80}, callErr: revertError{}}
		err := NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig)
		assert.ErrorIs(t, err, core.ErrSignatureInvalid)
	})

	t.Run("no code", func(t *testing.T) {
		reader := &fakeReader{}
		err := NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig)
		assert.ErrorIs(t, err, core.ErrSignatureInvalid)
		assert.Empty(t, reader.calls)
	})

	t.Run("rpc unavailable", func(t *testing.T) {
		reader := &fakeReader{codeErr: errors.New("connection refused")}
		err := NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig)
		assert.ErrorIs(t, err, core.ErrUpstreamUnavailable)
	})

	t.Run("rpc timeout", func(t *testing.T) {
		reader := &fakeReader{code: []byte{0x60}, callErr: context.DeadlineExceeded}
		err := NewVerifier(reader).Verify(context.Background(), wallet.Hex(), testMessage, sig)
		assert.ErrorIs(t, err, core.ErrUpstreamTimeout)
	})
}

func TestVerifier_EOASkipsChain(t *testing.T) {
	addr, sig := signed(t, testMessage)
	reader := &fakeReader{codeErr: errors.New("must not be called")}

	assert.NoError(t, NewVerifier(reader).Verify(context.Background(), addr.Hex(), testMessage, sig))
}
