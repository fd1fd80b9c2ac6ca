package chain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pumppilot/gatekeeper/core"
	"github.com/pumppilot/gatekeeper/internal/eth"
	"github.com/pumppilot/gatekeeper/internal/upstream"
	"github.com/pumppilot/gatekeeper/ports"
)

const erc1271ABI = `[{"inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],"name":"isValidSignature","outputs":[{"name":"magicValue","type":"bytes4"}],"stateMutability":"view","type":"function"}]`

// erc1271Magic is returned by isValidSignature for a valid signature
var erc1271Magic = []byte{0x16, 0x26, 0xba, 0x7e}

var _ ports.SignatureVerifier = (*Verifier)(nil)

// ContractReader is the part of ethclient.Client needed to ask a smart
// contract wallet whether it accepts a signature
type ContractReader interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Verifier checks personal_sign signatures by public key recovery. When a
// ContractReader is configured and recovery does not yield the claimed
// address, the address is tried as an EIP-1271 contract wallet.
type Verifier struct {
	reader ContractReader
	abi    abi.ABI
}

// NewVerifier creates a verifier. reader may be nil to accept only
// externally owned accounts.
func NewVerifier(reader ContractReader) *Verifier {
	parsed, err := abi.JSON(strings.NewReader(erc1271ABI))
	if err != nil {
		panic(fmt.Sprintf("invalid erc1271 abi: %v", err))
	}
	return &Verifier{reader: reader, abi: parsed}
}

// Dial connects to a JSON-RPC endpoint over the given HTTP client
func Dial(ctx context.Context, url string, httpClient *http.Client) (*ethclient.Client, error) {
	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	return ethclient.NewClient(client), nil
}

// Verify returns nil when signature over message was produced by address
func (v *Verifier) Verify(ctx context.Context, address, message string, signature []byte) error {
	addr, err := eth.NormalizeAddress(address)
	if err != nil {
		return core.ErrInvalidAddress
	}

	signer, recoverErr := eth.RecoverPersonalSign(message, signature)
	if recoverErr == nil && signer == addr {
		return nil
	}

	if v.reader == nil {
		if recoverErr != nil {
			return fmt.Errorf("%w: %v", core.ErrSignatureInvalid, recoverErr)
		}
		return fmt.Errorf("%w: recovered %s", core.ErrSignatureInvalid, signer.Hex())
	}

	return v.verifyContract(ctx, addr, message, signature)
}

func (v *Verifier) verifyContract(ctx context.Context, addr common.Address, message string, signature []byte) error {
	code, err := v.reader.CodeAt(ctx, addr, nil)
	if err != nil {
		return upstream.Classify(fmt.Errorf("eth_getCode: %w", err))
	}
	if len(code) == 0 {
		return fmt.Errorf("%w: signer does not match and %s has no code", core.ErrSignatureInvalid, addr.Hex())
	}

	var digest [32]byte
	copy(digest[:], eth.TextHash(message))

	input, err := v.abi.Pack("isValidSignature", digest, signature)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSignatureInvalid, err)
	}

	out, err := v.reader.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: input}, nil)
	if err != nil {
		// A JSON-RPC error (revert) is the contract rejecting the signature
		var rpcErr rpc.Error
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%w: %v", core.ErrSignatureInvalid, err)
		}
		return upstream.Classify(fmt.Errorf("eth_call: %w", err))
	}

	if len(out) < len(erc1271Magic) || !bytes.Equal(out[:len(erc1271Magic)], erc1271Magic) {
		return fmt.Errorf("%w: contract wallet rejected signature", core.ErrSignatureInvalid)
	}

	return nil
}
