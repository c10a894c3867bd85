package msgcrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/hex"
	"errors"
	"testing"
)

func newTestCodec(t *testing.T, secret string) *Codec {
	t.Helper()
	c, err := NewCodec(DeriveKey(secret))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

// sealLegacy reproduces content written before per-message IVs existed.
func sealLegacy(c *Codec, plaintext string) string {
	block, _ := aes.NewCipher(c.legacyKey)
	data := pad([]byte(plaintext))
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, c.legacyIV).CryptBlocks(out, data)
	return hex.EncodeToString(out)
}

func TestSealOpenRoundTrip(t *testing.T) {
	c := newTestCodec(t, "s3cret")
	cases := []string{
		"a",
		"Salam, bu test mesajıdır",
		"exactly sixteen!",
		string(bytes.Repeat([]byte("x"), 5000)),
	}
	for _, tc := range cases {
		sealed, err := c.Seal(tc)
		if err != nil {
			t.Fatalf("Seal(%q): %v", tc, err)
		}
		if sealed.Ciphertext == hex.EncodeToString([]byte(tc)) {
			t.Fatalf("ciphertext equals plaintext")
		}
		got, err := c.Open(sealed)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if got != tc {
			t.Fatalf("round trip mismatch: got %q want %q", got, tc)
		}
	}
}

func TestSealUsesFreshIV(t *testing.T) {
	c := newTestCodec(t, "s3cret")
	a, _ := c.Seal("same body")
	b, _ := c.Seal("same body")
	if a.IV == b.IV {
		t.Fatalf("expected distinct IVs, got %s twice", a.IV)
	}
	if a.Ciphertext == b.Ciphertext {
		t.Fatalf("expected distinct ciphertexts")
	}
}

func TestOpenFallsBackToLegacy(t *testing.T) {
	c := newTestCodec(t, "s3cret")
	legacy := sealLegacy(c, "köhnə mesaj")

	got, err := c.Open(Sealed{Ciphertext: legacy})
	if err != nil {
		t.Fatalf("Open legacy: %v", err)
	}
	if got != "köhnə mesaj" {
		t.Fatalf("unexpected legacy plaintext %q", got)
	}
}

func TestOpenOrPlaceholder(t *testing.T) {
	c := newTestCodec(t, "s3cret")

	if got := c.OpenOrPlaceholder(Sealed{Ciphertext: "zz", IV: "00"}); got != Undecryptable {
		t.Fatalf("expected placeholder for malformed input, got %q", got)
	}
	if _, err := c.Open(Sealed{Ciphertext: "abcd", IV: "00"}); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDeriveKeyDefaults(t *testing.T) {
	if !bytes.Equal(DeriveKey(""), DeriveKey(DefaultSecret)) {
		t.Fatalf("empty secret must derive the default key")
	}
	if len(DeriveKey("short")) != 32 {
		t.Fatalf("derived key must be 32 bytes")
	}
	if _, err := NewCodec([]byte("too short")); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestFromSecretEmptyReadsDefaultKeyRows(t *testing.T) {
	stored, err := newTestCodec(t, DefaultSecret).Seal("archived")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	unset, err := FromSecret("")
	if err != nil {
		t.Fatalf("FromSecret: %v", err)
	}
	if got, err := unset.Open(stored); err != nil || got != "archived" {
		t.Fatalf("Open = %q, %v", got, err)
	}
	other, err := FromSecret("jwt-signing-secret")
	if err != nil {
		t.Fatalf("FromSecret: %v", err)
	}
	if got := other.OpenOrPlaceholder(stored); got == "archived" {
		t.Fatalf("a different secret must not open the row, got %q", got)
	}
}

func TestSealRejectsEmpty(t *testing.T) {
	c := newTestCodec(t, "")
	if _, err := c.Seal(""); !errors.Is(err, ErrEmptyPlaintext) {
		t.Fatalf("expected ErrEmptyPlaintext, got %v", err)
	}
}

func TestBytesToKeyKnownVector(t *testing.T) {
	// openssl enc -aes-256-cbc -k password -nosalt -md md5 -P
	key, iv := bytesToKey([]byte("password"), 32, 16)
	wantKey := "5f4dcc3b5aa765d61d8327deb882cf992b95990a9151374abd8ff8c5a7a0fe08"
	wantIV := "b7b4372cdfbcb3d16a2631b59b509e94"
	if hex.EncodeToString(key) != wantKey {
		t.Fatalf("unexpected key %x", key)
	}
	if hex.EncodeToString(iv) != wantIV {
		t.Fatalf("unexpected iv %x", iv)
	}
}
