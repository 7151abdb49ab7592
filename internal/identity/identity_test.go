package identity

import (
	"errors"
	"testing"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"wgwarden/internal/models"
)

func TestGenerate(t *testing.T) {
	id, err := Generate(true)
	if err != nil {
		t.Fatal(err)
	}
	priv, err := wgtypes.ParseKey(id.PrivateKey)
	if err != nil {
		t.Fatalf("private key not parseable: %v", err)
	}
	if priv.PublicKey().String() != id.PublicKey {
		t.Fatal("public key does not match private key")
	}
	if _, err := wgtypes.ParseKey(id.PresharedKey); err != nil {
		t.Fatalf("preshared key not parseable: %v", err)
	}
}

func TestGenerateWithoutPSK(t *testing.T) {
	id, err := Generate(false)
	if err != nil {
		t.Fatal(err)
	}
	if id.PresharedKey != "" {
		t.Fatalf("unexpected preshared key %q", id.PresharedKey)
	}
}

func TestGenerateUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id, err := Generate(false)
		if err != nil {
			t.Fatal(err)
		}
		if seen[id.PublicKey] {
			t.Fatal("key material reused across generations")
		}
		seen[id.PublicKey] = true
	}
}

func TestValidateKey(t *testing.T) {
	id, err := Generate(false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ValidateKey(id.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	if got != id.PublicKey {
		t.Fatalf("ValidateKey() = %q, want %q", got, id.PublicKey)
	}
}

func TestValidateKeyRejectsMalformed(t *testing.T) {
	for _, bad := range []string{"", "not-a-key", "AAAA", "@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@@="} {
		if _, err := ValidateKey(bad); !errors.Is(err, models.ErrInvalidKey) {
			t.Fatalf("ValidateKey(%q): expected ErrInvalidKey, got %v", bad, err)
		}
	}
}
