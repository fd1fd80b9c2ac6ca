package ports

import "context"

// SignatureVerifier checks that signature over message was produced by address.
// It returns core.ErrSignatureInvalid when it was not.
type SignatureVerifier interface {
	Verify(ctx context.Context, address, message string, signature []byte) error
}
