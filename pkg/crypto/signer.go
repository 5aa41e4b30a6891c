package crypto

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/cloudflare/circl/sign/ed25519"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer produces signatures over 32-byte digests.
// Sign takes a context because a signer may sit in front of a remote key
// manager; it is the only call in the signing path that can block.
type Signer interface {
	Curve() Curve
	PublicKey() PublicKey
	Address() Address
	Sign(ctx context.Context, digest []byte) ([]byte, error)
}

// KeyPair is a Signer that holds its private key locally.
type KeyPair interface {
	Signer
	// PrivateKeyBytes returns the 32-byte secret (secp256k1 scalar or ed25519 seed).
	// WARNING: Keep this secret! Never expose to users or logs
	PrivateKeyBytes() []byte
	PrivateKeyHex() string
}

// GenerateKey creates a new random key pair on the given curve.
func GenerateKey(curve Curve) (KeyPair, error) {
	switch curve {
	case Secp256k1:
		privateKey, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		return newSecp256k1Signer(privateKey), nil

	case Ed25519:
		_, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate key: %w", err)
		}
		return newEd25519Signer(privateKey), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
}

// FromPrivateKey loads a key pair from its 32-byte secret.
func FromPrivateKey(curve Curve, secret []byte) (KeyPair, error) {
	switch curve {
	case Secp256k1:
		privateKey, err := ethcrypto.ToECDSA(secret)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFormat, err)
		}
		return newSecp256k1Signer(privateKey), nil

	case Ed25519:
		if len(secret) != ed25519.SeedSize {
			return nil, fmt.Errorf("%w: ed25519 seed must be %d bytes, got %d", ErrKeyFormat, ed25519.SeedSize, len(secret))
		}
		return newEd25519Signer(ed25519.NewKeyFromSeed(secret)), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, curve)
	}
}

// FromPrivateKeyHex loads a key pair from a hex-encoded secret.
// Format: "0x1234..." or "1234..." (64 hex chars)
func FromPrivateKeyHex(curve Curve, hexKey string) (KeyPair, error) {
	secret, err := hex.DecodeString(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse private key: %v", ErrKeyFormat, err)
	}
	return FromPrivateKey(curve, secret)
}

// Secp256k1Signer signs with ECDSA over secp256k1.
// Signatures are deterministic (RFC 6979) and returned as [R || S || V] with
// V the raw recovery id (0 or 1).
type Secp256k1Signer struct {
	privateKey *ecdsa.PrivateKey
	publicKey  Secp256k1PublicKey
	address    Address
}

func newSecp256k1Signer(privateKey *ecdsa.PrivateKey) *Secp256k1Signer {
	var pub Secp256k1PublicKey
	copy(pub[:], ethcrypto.CompressPubkey(&privateKey.PublicKey))
	return &Secp256k1Signer{
		privateKey: privateKey,
		publicKey:  pub,
		address:    DeriveAddress(pub),
	}
}

func (s *Secp256k1Signer) Curve() Curve         { return Secp256k1 }
func (s *Secp256k1Signer) PublicKey() PublicKey { return s.publicKey }
func (s *Secp256k1Signer) Address() Address     { return s.address }

func (s *Secp256k1Signer) PrivateKeyBytes() []byte { return ethcrypto.FromECDSA(s.privateKey) }

// PrivateKeyHex returns the private key as hex string (WITHOUT 0x prefix)
func (s *Secp256k1Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.PrivateKeyBytes())
}

// Sign signs a 32-byte digest.
func (s *Secp256k1Signer) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(digest) != DigestLength {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestLength, len(digest))
	}

	signature, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}

	return signature, nil
}

// Ed25519Signer signs with pure Ed25519 (RFC 8032).
type Ed25519Signer struct {
	privateKey ed25519.PrivateKey
	publicKey  Ed25519PublicKey
	address    Address
}

func newEd25519Signer(privateKey ed25519.PrivateKey) *Ed25519Signer {
	var pub Ed25519PublicKey
	copy(pub[:], privateKey[ed25519.SeedSize:])
	return &Ed25519Signer{
		privateKey: privateKey,
		publicKey:  pub,
		address:    DeriveAddress(pub),
	}
}

func (s *Ed25519Signer) Curve() Curve         { return Ed25519 }
func (s *Ed25519Signer) PublicKey() PublicKey { return s.publicKey }
func (s *Ed25519Signer) Address() Address     { return s.address }

func (s *Ed25519Signer) PrivateKeyBytes() []byte { return s.privateKey.Seed() }

// PrivateKeyHex returns the seed as hex string (WITHOUT 0x prefix)
func (s *Ed25519Signer) PrivateKeyHex() string {
	return hex.EncodeToString(s.PrivateKeyBytes())
}

// Sign signs a 32-byte digest.
func (s *Ed25519Signer) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(digest) != DigestLength {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestLength, len(digest))
	}
	return ed25519.Sign(s.privateKey, digest), nil
}

// SignatureToRSV splits a 65-byte secp256k1 signature into R, S, V components
// Useful for contract call arguments or debugging
func SignatureToRSV(signature []byte) (r, s *big.Int, v uint8, err error) {
	if len(signature) != Secp256k1SignatureLength {
		return nil, nil, 0, fmt.Errorf("%w: invalid signature length: %d", ErrSignatureFormat, len(signature))
	}

	r = new(big.Int).SetBytes(signature[:32])
	s = new(big.Int).SetBytes(signature[32:64])
	v = signature[64]

	return r, s, v, nil
}

// RSVToSignature combines R, S, V into a 65-byte signature
func RSVToSignature(r, s *big.Int, v uint8) []byte {
	signature := make([]byte, Secp256k1SignatureLength)
	r.FillBytes(signature[:32])
	s.FillBytes(signature[32:64])
	signature[64] = v
	return signature
}

// GenerateSalt returns a cryptographically random order salt.
func GenerateSalt() (uint64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate salt: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

var (
	_ KeyPair = (*Secp256k1Signer)(nil)
	_ KeyPair = (*Ed25519Signer)(nil)
)
