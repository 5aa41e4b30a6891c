package crypto

import (
	"bytes"
	"context"
	"errors"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	testSecpKey  = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testSecpPub  = "0x024e3b81af9c2234cad09d679ce6035ed1392347ce64ce405f5dcd36228a25de6e"
	testSecpAddr = "0x1beb40e6e4ffd7989d88a12e27866ae179affb144eb5b0024249c77e0afde415"

	// RFC 8032 test vector 1
	testEdSeed = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	testEdPub  = "0xd75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	testEdAddr = "0x304af458e90e97c841685b8cbbc59b909f3e2cf150df590ada4c81452c29737d"
)

func TestGenerateKey(t *testing.T) {
	for _, curve := range Curves {
		t.Run(curve.String(), func(t *testing.T) {
			kp, err := GenerateKey(curve)
			if err != nil {
				t.Fatalf("failed to generate key: %v", err)
			}
			if kp.Curve() != curve {
				t.Errorf("curve = %s, want %s", kp.Curve(), curve)
			}
			if kp.Address().IsZero() {
				t.Error("generated zero address")
			}
			if len(kp.PrivateKeyHex()) != 64 {
				t.Errorf("private key hex length = %d, want 64", len(kp.PrivateKeyHex()))
			}
			if kp.Address() != DeriveAddress(kp.PublicKey()) {
				t.Error("address does not match derived address")
			}
		})
	}

	if _, err := GenerateKey(Curve(7)); !errors.Is(err, ErrUnsupportedCurve) {
		t.Errorf("err = %v, want ErrUnsupportedCurve", err)
	}
}

func TestFromPrivateKeyHex(t *testing.T) {
	for _, curve := range Curves {
		kp1, _ := GenerateKey(curve)

		kp2, err := FromPrivateKeyHex(curve, "0x"+kp1.PrivateKeyHex())
		if err != nil {
			t.Fatalf("%s: failed to load key: %v", curve, err)
		}
		if kp2.Address() != kp1.Address() {
			t.Errorf("%s: address = %s, want %s", curve, kp2.Address(), kp1.Address())
		}
		if kp2.PrivateKeyHex() != kp1.PrivateKeyHex() {
			t.Errorf("%s: private key mismatch after reload", curve)
		}
	}

	if _, err := FromPrivateKeyHex(Ed25519, "abcd"); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("short seed: err = %v, want ErrKeyFormat", err)
	}
	if _, err := FromPrivateKeyHex(Secp256k1, "zz"); !errors.Is(err, ErrKeyFormat) {
		t.Errorf("bad hex: err = %v, want ErrKeyFormat", err)
	}
}

func TestKnownKeys(t *testing.T) {
	tests := []struct {
		curve Curve
		key   string
		pub   string
		addr  string
	}{
		{Secp256k1, testSecpKey, testSecpPub, testSecpAddr},
		{Ed25519, testEdSeed, testEdPub, testEdAddr},
	}

	for _, tt := range tests {
		kp, err := FromPrivateKeyHex(tt.curve, tt.key)
		if err != nil {
			t.Fatalf("%s: %v", tt.curve, err)
		}
		if got := kp.PublicKey().Hex(); got != tt.pub {
			t.Errorf("%s: public key = %s, want %s", tt.curve, got, tt.pub)
		}
		if got := kp.Address().Hex(); got != tt.addr {
			t.Errorf("%s: address = %s, want %s", tt.curve, got, tt.addr)
		}

		// derivation is pure
		for i := 0; i < 3; i++ {
			addr, err := RecoverAddress(kp.PublicKey().Bytes(), tt.curve)
			if err != nil {
				t.Fatalf("%s: recover address: %v", tt.curve, err)
			}
			if addr.Hex() != tt.addr {
				t.Errorf("%s: recovered address = %s, want %s", tt.curve, addr, tt.addr)
			}
		}
	}
}

func TestAddressIsCurveTagged(t *testing.T) {
	// Same 32 bytes read as an ed25519 key and as the x-coordinate half of a
	// secp256k1 key must never derive the same account.
	kp, _ := FromPrivateKeyHex(Secp256k1, testSecpKey)
	secpPub := kp.PublicKey().(Secp256k1PublicKey)

	var edPub Ed25519PublicKey
	copy(edPub[:], secpPub[1:])

	if DeriveAddress(edPub) == DeriveAddress(secpPub) {
		t.Error("addresses collide across curves")
	}
}

func TestSignAndVerify(t *testing.T) {
	digest := ethcrypto.Keccak256([]byte("Hello, perps!"))

	for _, curve := range Curves {
		t.Run(curve.String(), func(t *testing.T) {
			kp, _ := GenerateKey(curve)
			sig, err := kp.Sign(context.Background(), digest)
			if err != nil {
				t.Fatalf("failed to sign: %v", err)
			}

			want, _ := curve.SignatureLength()
			if len(sig) != want {
				t.Errorf("signature length = %d, want %d", len(sig), want)
			}

			valid, err := Verify(kp.PublicKey(), digest, sig)
			if err != nil {
				t.Fatalf("verify: %v", err)
			}
			if !valid {
				t.Error("signature verification failed")
			}

			// Wrong key on the same curve
			other, _ := GenerateKey(curve)
			valid, err = Verify(other.PublicKey(), digest, sig)
			if err != nil {
				t.Fatalf("verify wrong key: %v", err)
			}
			if valid {
				t.Error("signature should not verify with wrong key")
			}

			// Wrong digest
			valid, _ = Verify(kp.PublicKey(), ethcrypto.Keccak256([]byte("other")), sig)
			if valid {
				t.Error("signature should not verify for another digest")
			}
		})
	}
}

func TestSignIsDeterministic(t *testing.T) {
	digest := ethcrypto.Keccak256([]byte("determinism"))
	for _, tt := range []struct {
		curve Curve
		key   string
	}{{Secp256k1, testSecpKey}, {Ed25519, testEdSeed}} {
		kp, _ := FromPrivateKeyHex(tt.curve, tt.key)
		a, _ := kp.Sign(context.Background(), digest)
		b, _ := kp.Sign(context.Background(), digest)
		if !bytes.Equal(a, b) {
			t.Errorf("%s: signatures differ across calls", tt.curve)
		}
	}
}

func TestSignRejectsBadDigest(t *testing.T) {
	for _, curve := range Curves {
		kp, _ := GenerateKey(curve)
		if _, err := kp.Sign(context.Background(), []byte("short")); err == nil {
			t.Errorf("%s: expected error for short digest", curve)
		}
	}
}

func TestSignHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kp, _ := GenerateKey(Ed25519)
	if _, err := kp.Sign(ctx, make([]byte, 32)); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestVerifyMalformedInput(t *testing.T) {
	digest := ethcrypto.Keccak256([]byte("test"))
	for _, curve := range Curves {
		kp, _ := GenerateKey(curve)

		if _, err := Verify(kp.PublicKey(), digest, []byte{1, 2, 3}); !errors.Is(err, ErrSignatureFormat) {
			t.Errorf("%s: short signature err = %v, want ErrSignatureFormat", curve, err)
		}

		n, _ := curve.SignatureLength()
		if _, err := Verify(kp.PublicKey(), []byte("short"), make([]byte, n)); !errors.Is(err, ErrSignatureFormat) {
			t.Errorf("%s: short digest err = %v, want ErrSignatureFormat", curve, err)
		}
	}

	// An Ethereum-style V of 27 would still verify on R || S alone but cannot
	// be recovered, so it is rejected as malformed.
	kp, _ := FromPrivateKeyHex(Secp256k1, testSecpKey)
	sig, err := kp.Sign(context.Background(), digest)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}
	for _, v := range []byte{27, 28, 2} {
		bad := bytes.Clone(sig)
		bad[64] = v
		if ok, err := Verify(kp.PublicKey(), digest, bad); ok || !errors.Is(err, ErrSignatureFormat) {
			t.Errorf("V=%d: Verify = (%v, %v), want ErrSignatureFormat", v, ok, err)
		}
		if _, err := NewTypedSignature(bad, Secp256k1); !errors.Is(err, ErrSignatureFormat) {
			t.Errorf("V=%d: NewTypedSignature err = %v, want ErrSignatureFormat", v, err)
		}
		typed := TypedSignature(append(bytes.Clone(bad), Secp256k1.Tag()))
		if _, _, err := typed.Split(); !errors.Is(err, ErrSignatureFormat) {
			t.Errorf("V=%d: Split err = %v, want ErrSignatureFormat", v, err)
		}
		if _, err := RecoverSecp256k1(digest, bad); err == nil {
			t.Errorf("V=%d: RecoverSecp256k1 accepted the signature", v)
		}
	}
	if ok, err := Verify(kp.PublicKey(), digest, sig); !ok || err != nil {
		t.Errorf("original signature: Verify = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestRecoverSecp256k1(t *testing.T) {
	kp, _ := GenerateKey(Secp256k1)
	digest := ethcrypto.Keccak256([]byte("Test message"))

	sig, err := kp.Sign(context.Background(), digest)
	if err != nil {
		t.Fatalf("failed to sign: %v", err)
	}

	pub, err := RecoverSecp256k1(digest, sig)
	if err != nil {
		t.Fatalf("failed to recover public key: %v", err)
	}
	if DeriveAddress(pub) != kp.Address() {
		t.Errorf("recovered address = %s, want %s", DeriveAddress(pub), kp.Address())
	}

	if _, err := RecoverSecp256k1(digest, sig[:64]); !errors.Is(err, ErrSignatureFormat) {
		t.Errorf("err = %v, want ErrSignatureFormat", err)
	}
}

func TestSignatureToRSV(t *testing.T) {
	kp, _ := GenerateKey(Secp256k1)
	signature, _ := kp.Sign(context.Background(), ethcrypto.Keccak256([]byte("RSV test")))

	r, s, v, err := SignatureToRSV(signature)
	if err != nil {
		t.Fatalf("failed to split signature: %v", err)
	}

	reconstructed := RSVToSignature(r, s, v)
	if !bytes.Equal(reconstructed, signature) {
		t.Errorf("reconstructed = %x, want %x", reconstructed, signature)
	}
}

func TestGenerateSalt(t *testing.T) {
	salt1, err := GenerateSalt()
	if err != nil {
		t.Fatalf("failed to generate salt: %v", err)
	}
	salt2, err := GenerateSalt()
	if err != nil {
		t.Fatalf("failed to generate second salt: %v", err)
	}

	// Salts should be different (statistically)
	if salt1 == salt2 {
		t.Error("generated identical salts (unlikely but possible - retry test)")
	}
}
