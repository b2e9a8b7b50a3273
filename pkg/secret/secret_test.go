package secret

import (
	"errors"
	"testing"
)

func TestSealOpen(t *testing.T) {
	sealed, err := Seal("binance-secret", "master")
	if err != nil {
		t.Fatal(err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("missing prefix: %s", sealed)
	}
	other, _ := Seal("binance-secret", "master")
	if other == sealed {
		t.Fatalf("nonce must differ between seals")
	}

	plain, err := Open(sealed, "master")
	if err != nil {
		t.Fatal(err)
	}
	if plain != "binance-secret" {
		t.Fatalf("unexpected plaintext %q", plain)
	}

	if _, err := Open(sealed, "wrong"); err == nil {
		t.Fatalf("wrong master key must fail")
	}
	if _, err := Open(sealed, ""); !errors.Is(err, ErrNoMasterKey) {
		t.Fatalf("expected ErrNoMasterKey, got %v", err)
	}
}

func TestOpenPlain(t *testing.T) {
	v, err := Open("plain-value", "")
	if err != nil || v != "plain-value" {
		t.Fatalf("plain values pass through: %q %v", v, err)
	}
	if _, err := Open(Prefix+"!!!", "master"); err == nil {
		t.Fatalf("bad base64 must fail")
	}
	if _, err := Open(Prefix+"AAAA", "master"); err == nil {
		t.Fatalf("short value must fail")
	}
}
