// Package eth holds the Ethereum primitives used to authenticate wallets:
// address normalization and EIP-191 personal_sign signing and recovery.
package eth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidAddress = errors.New("invalid ethereum address")
	ErrMalformedSig   = errors.New("malformed signature")
	ErrRecoveryFailed = errors.New("signature recovery failed")
)

// NormalizeAddress validates a hex address and returns it parsed
func NormalizeAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(address), nil
}

// DecodeSignature decodes a hex signature with or without the 0x prefix
func DecodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSig, err)
	}
	return sig, nil
}

// TextHash is the EIP-191 digest a wallet signs for personal_sign
func TextHash(message string) []byte {
	return accounts.TextHash([]byte(message))
}

// RecoverPersonalSign returns the address that produced sig over message.
// Both 0/1 and 27/28 recovery ids are accepted.
func RecoverPersonalSign(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: signature must be %d bytes", ErrMalformedSig, crypto.SignatureLength)
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(TextHash(message), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// SignPersonal signs message the way wallets do for personal_sign,
// returning a 65 byte signature with a 27/28 recovery id
func SignPersonal(message string, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(TextHash(message), key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
