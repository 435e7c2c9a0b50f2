package backup

import (
	"bytes"
	"errors"
	"testing"
)

func TestGenerateSalt(t *testing.T) {
	salt1, err := generateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}
	if len(salt1) != saltSize {
		t.Errorf("salt length = %d, want %d", len(salt1), saltSize)
	}
	salt2, _ := generateSalt()
	if bytes.Equal(salt1, salt2) {
		t.Error("two salts should not be equal")
	}
}

func TestDeriveKeyDeterminism(t *testing.T) {
	salt := []byte("1234567890abcdef")
	key1 := deriveKey("mypassphrase", salt)
	key2 := deriveKey("mypassphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase+salt should produce same key")
	}
	if len(key1) != keySize {
		t.Errorf("key length = %d, want %d", len(key1), keySize)
	}
	if bytes.Equal(key1, deriveKey("other", salt)) {
		t.Error("different passphrases produced the same key")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt := []byte("1234567890abcdef")
	plain := []byte("SQLite format 3\x00 some pages")

	sealed, err := Encrypt(plain, "correct horse", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if !bytes.Equal(sealed[:saltSize], salt) {
		t.Error("salt not stored in the header")
	}
	if bytes.Contains(sealed, plain) {
		t.Error("ciphertext contains the plaintext")
	}

	got, err := Decrypt(sealed, "correct horse")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("round trip = %q, want %q", got, plain)
	}
}

func TestDecryptRejectsBadInput(t *testing.T) {
	salt := []byte("1234567890abcdef")
	sealed, err := Encrypt([]byte("data"), "right", salt)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decrypt(sealed, "wrong"); err == nil {
		t.Error("wrong passphrase should fail")
	}

	tampered := bytes.Clone(sealed)
	tampered[len(tampered)-1] ^= 0xff
	if _, err := Decrypt(tampered, "right"); err == nil {
		t.Error("tampered ciphertext should fail")
	}

	if _, err := Decrypt(sealed[:10], "right"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short input error = %v, want ErrCiphertextTooShort", err)
	}
}

func TestEncryptEmptyPlaintext(t *testing.T) {
	salt := []byte("1234567890abcdef")
	sealed, err := Encrypt(nil, "pw", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := Decrypt(sealed, "pw")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes, want 0", len(got))
	}
}

func TestEncryptRejectsBadSalt(t *testing.T) {
	if _, err := Encrypt([]byte("x"), "pw", []byte("short")); err == nil {
		t.Error("expected error for short salt")
	}
}
