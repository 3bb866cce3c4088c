package model

import (
	"strings"
	"testing"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b", true},
		{"1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b", true},
		{"0x1A2B3C4D5E6F7A8B9C0D1E2F3A4B5C6D7E8F9A0B", true},
		{"0x1a2b", false},
		{"0x" + strings.Repeat("z", 40), false},
		{"0x" + strings.Repeat("a", 64), false},
		{"", false},
		{"0x", false},
	}

	for _, tt := range tests {
		if got := IsValidAddress(tt.in); got != tt.want {
			t.Errorf("IsValidAddress(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestIsValidPublicKey(t *testing.T) {
	if !IsValidPublicKey("0x" + strings.Repeat("ab", 32)) {
		t.Error("64 hex chars rejected")
	}
	if IsValidPublicKey("0x" + strings.Repeat("ab", 20)) {
		t.Error("40 hex chars accepted as public key")
	}
}

func TestIsValidSignature(t *testing.T) {
	if !IsValidSignature(strings.Repeat("0f", 64)) {
		t.Error("128 hex chars rejected")
	}
	if IsValidSignature(strings.Repeat("0f", 32)) {
		t.Error("64 hex chars accepted as signature")
	}
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("1A2B3C4D5E6F7A8B9C0D1E2F3A4B5C6D7E8F9A0B")
	if err != nil {
		t.Fatalf("NormalizeAddress error: %v", err)
	}
	want := "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"
	if got != want {
		t.Errorf("NormalizeAddress = %q, want %q", got, want)
	}

	if _, err := NormalizeAddress("0x123"); err == nil {
		t.Error("NormalizeAddress accepted a short address")
	}
}

func TestNormalizePublicKey(t *testing.T) {
	in := strings.Repeat("AB", 32)
	got, err := NormalizePublicKey(in)
	if err != nil {
		t.Fatalf("NormalizePublicKey error: %v", err)
	}
	if got != "0x"+strings.Repeat("ab", 32) {
		t.Errorf("NormalizePublicKey = %q", got)
	}
}
