package model

import (
	"fmt"
	"strings"
)

// Hex string lengths after stripping the 0x prefix.
const (
	addressHexLen   = 40  // 20-byte account address
	publicKeyHexLen = 64  // 32-byte ed25519 public key
	signatureHexLen = 128 // 64-byte ed25519 signature
)

// StripHexPrefix removes a leading "0x" if present.
func StripHexPrefix(s string) string {
	return strings.TrimPrefix(s, "0x")
}

// EnsureHexPrefix adds a leading "0x" if absent.
func EnsureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") {
		return s
	}
	return "0x" + s
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return s != ""
}

// IsValidAddress reports whether s is a 20-byte hex account address, with
// or without the 0x prefix.
func IsValidAddress(s string) bool {
	h := StripHexPrefix(s)
	return len(h) == addressHexLen && isHex(h)
}

// IsValidPublicKey reports whether s is a 32-byte hex public key.
func IsValidPublicKey(s string) bool {
	h := StripHexPrefix(s)
	return len(h) == publicKeyHexLen && isHex(h)
}

// IsValidSignature reports whether s is a 64-byte hex signature.
func IsValidSignature(s string) bool {
	h := StripHexPrefix(s)
	return len(h) == signatureHexLen && isHex(h)
}

// NormalizeAddress lowercases the address and ensures the 0x prefix, the
// canonical form the gateway expects in paths and channel keys.
func NormalizeAddress(s string) (string, error) {
	if !IsValidAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return EnsureHexPrefix(strings.ToLower(StripHexPrefix(s))), nil
}

// NormalizePublicKey lowercases the public key and ensures the 0x prefix.
func NormalizePublicKey(s string) (string, error) {
	if !IsValidPublicKey(s) {
		return "", fmt.Errorf("invalid public key %q", s)
	}
	return EnsureHexPrefix(strings.ToLower(StripHexPrefix(s))), nil
}
