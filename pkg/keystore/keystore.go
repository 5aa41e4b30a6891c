// Package keystore keeps named signing keys and hands out signers for them.
// It is the key-management primitive behind order signing: callers refer to
// keys by alias and never handle raw secrets.
package keystore

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

var (
	ErrNotFound     = errors.New("key not found")
	ErrExists       = errors.New("key alias already exists")
	ErrInvalidAlias = errors.New("invalid key alias")
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// Entry is a stored key. PrivateKey is hex without 0x.
type Entry struct {
	Alias      string       `json:"alias"`
	Curve      crypto.Curve `json:"curve"`
	PrivateKey string       `json:"privateKey"`
	PublicKey  string       `json:"publicKey"`
	Address    string       `json:"address"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Info is an Entry without the secret, safe to return to clients.
type Info struct {
	Alias     string       `json:"alias"`
	Curve     crypto.Curve `json:"curve"`
	PublicKey string       `json:"publicKey"`
	Address   string       `json:"address"`
	CreatedAt time.Time    `json:"createdAt"`
}

func (e Entry) Info() Info {
	return Info{
		Alias:     e.Alias,
		Curve:     e.Curve,
		PublicKey: e.PublicKey,
		Address:   e.Address,
		CreatedAt: e.CreatedAt,
	}
}

// Store persists key entries by alias. Implementations are safe for
// concurrent use.
type Store interface {
	// Put stores a new key. It fails with ErrExists if the alias is taken.
	Put(alias string, curve crypto.Curve, secret []byte) (Entry, error)
	Get(alias string) (Entry, error)
	List() ([]Entry, error)
	Delete(alias string) error
	Close() error
}

// Signer loads the key stored under alias.
func Signer(s Store, alias string) (crypto.KeyPair, error) {
	e, err := s.Get(alias)
	if err != nil {
		return nil, err
	}
	kp, err := crypto.FromPrivateKeyHex(e.Curve, e.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("stored key %q is corrupt: %w", alias, err)
	}
	return kp, nil
}

// Generate creates a fresh key on curve and stores it under alias.
func Generate(s Store, alias string, curve crypto.Curve) (Entry, error) {
	kp, err := crypto.GenerateKey(curve)
	if err != nil {
		return Entry{}, err
	}
	return s.Put(alias, curve, kp.PrivateKeyBytes())
}

func newEntry(alias string, curve crypto.Curve, secret []byte, now time.Time) (Entry, error) {
	if !aliasPattern.MatchString(alias) {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidAlias, alias)
	}
	kp, err := crypto.FromPrivateKey(curve, secret)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Alias:      alias,
		Curve:      curve,
		PrivateKey: kp.PrivateKeyHex(),
		PublicKey:  kp.PublicKey().Hex(),
		Address:    kp.Address().Hex(),
		CreatedAt:  now.UTC(),
	}, nil
}
