package crypto

import (
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Verify checks a raw (untagged) signature over a 32-byte digest.
//
// A well-formed signature that does not match returns (false, nil). Wrong
// signature or digest widths return ErrSignatureFormat, because those are
// caller bugs rather than verification outcomes.
func Verify(pub PublicKey, digest []byte, signature []byte) (bool, error) {
	if pub == nil {
		return false, fmt.Errorf("%w: nil public key", ErrKeyFormat)
	}
	if len(digest) != DigestLength {
		return false, fmt.Errorf("%w: digest must be %d bytes, got %d", ErrSignatureFormat, DigestLength, len(digest))
	}

	want, err := pub.Curve().SignatureLength()
	if err != nil {
		return false, err
	}
	if len(signature) != want {
		return false, fmt.Errorf("%w: %s signature must be %d bytes, got %d", ErrSignatureFormat, pub.Curve(), want, len(signature))
	}

	switch k := pub.(type) {
	case Secp256k1PublicKey:
		if err := checkRecoveryID(signature); err != nil {
			return false, err
		}
		// VerifySignature wants [R || S]; it rejects high-S values, matching the chain.
		return ethcrypto.VerifySignature(k[:], digest, signature[:64]), nil
	case Ed25519PublicKey:
		return ed25519.Verify(ed25519.PublicKey(k[:]), digest, signature), nil
	default:
		return false, fmt.Errorf("%w: %T", ErrUnsupportedCurve, pub)
	}
}

// RecoverSecp256k1 recovers the signer's public key from a digest and a
// 65-byte [R || S || V] signature.
func RecoverSecp256k1(digest []byte, signature []byte) (Secp256k1PublicKey, error) {
	if len(signature) != Secp256k1SignatureLength {
		return Secp256k1PublicKey{}, fmt.Errorf("%w: invalid signature length: %d", ErrSignatureFormat, len(signature))
	}
	if len(digest) != DigestLength {
		return Secp256k1PublicKey{}, fmt.Errorf("%w: invalid digest length: %d", ErrSignatureFormat, len(digest))
	}

	publicKey, err := ethcrypto.SigToPub(digest, signature)
	if err != nil {
		return Secp256k1PublicKey{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	var out Secp256k1PublicKey
	copy(out[:], ethcrypto.CompressPubkey(publicKey))
	return out, nil
}

// checkRecoveryID rejects a [R || S || V] signature whose V is not the raw
// recovery id 0 or 1, the only values recovery accepts.
func checkRecoveryID(signature []byte) error {
	if v := signature[Secp256k1SignatureLength-1]; v > 1 {
		return fmt.Errorf("%w: secp256k1 recovery id must be 0 or 1, got %d", ErrSignatureFormat, v)
	}
	return nil
}
