// Package auth provides identity and session handling for the Ekiden
// gateway: ed25519 key pairs with Keccak-derived addresses, a Signer
// capability, and a session Manager that exchanges a signed challenge for a
// renewable bearer token.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/ekidenfi/ekiden-go/model"
)

// ErrKeyWiped is returned by Sign after the key material has been zeroed.
var ErrKeyWiped = errors.New("key material has been wiped")

// Signer signs arbitrary payloads on behalf of one account. Implemented by
// KeyPair; alternative implementations can delegate to external key stores.
type Signer interface {
	// Sign returns the 64-byte signature over payload.
	Sign(payload []byte) ([]byte, error)
	// PublicKeyHex returns the 0x-prefixed hex public key.
	PublicKeyHex() string
	// Address returns the 0x-prefixed hex account address.
	Address() string
}

// KeyPair holds an ed25519 signing key and its derived identity. The public
// key and address are computed once at construction and never change. The
// raw key is never exposed, logged, or serialized.
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
	addr string
}

// GenerateKeyPair creates a key pair from the system's randomness source.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &KeyPair{priv: priv, pub: pub, addr: deriveAddress(pub)}, nil
}

// KeyPairFromSeed builds a key pair from a 32-byte ed25519 seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &KeyPair{priv: priv, pub: pub, addr: deriveAddress(pub)}, nil
}

// KeyPairFromHex builds a key pair from a hex-encoded 32-byte seed, with or
// without the 0x prefix.
func KeyPairFromHex(privateKeyHex string) (*KeyPair, error) {
	seed, err := hex.DecodeString(model.StripHexPrefix(privateKeyHex))
	if err != nil {
		return nil, errors.New("private key is not valid hex")
	}
	return KeyPairFromSeed(seed)
}

// Sign signs payload with the private key.
func (k *KeyPair) Sign(payload []byte) ([]byte, error) {
	if k.priv == nil {
		return nil, ErrKeyWiped
	}
	return ed25519.Sign(k.priv, payload), nil
}

// PublicKeyHex returns the 0x-prefixed hex encoding of the public key.
func (k *KeyPair) PublicKeyHex() string {
	return "0x" + hex.EncodeToString(k.pub)
}

// Address returns the account address derived from the public key.
func (k *KeyPair) Address() string {
	return k.addr
}

// Verify checks a signature produced by this key pair.
func (k *KeyPair) Verify(payload, sig []byte) bool {
	return ed25519.Verify(k.pub, payload, sig)
}

// Zero wipes the private key bytes. The key pair is unusable for signing
// afterwards; the public identity remains readable.
func (k *KeyPair) Zero() {
	for i := range k.priv {
		k.priv[i] = 0
	}
	k.priv = nil
}

// deriveAddress maps a public key to its account address: the last 20 bytes
// of the legacy Keccak256 digest of the raw key, hex encoded.
func deriveAddress(pub ed25519.PublicKey) string {
	h := sha3.NewLegacyKeccak256()
	h.Write(pub)
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[12:])
}
