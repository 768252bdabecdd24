package grant

import "testing"

func testKeys() EncryptionKeys {
	return EncryptionKeys{
		Primary:       []byte("0123456789abcdef0123456789abcdef"),
		Deterministic: []byte("fedcba9876543210fedcba9876543210"),
		Salt:          []byte("test-salt"),
	}
}

func TestCipherRandomizedRoundTrip(t *testing.T) {
	c, err := NewCipher(testKeys(), EncryptedAttribute{Name: "email"})
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	ciphertext, err := c.Encrypt("alice@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "alice@example.com" {
		t.Errorf("Decrypt = %q, want %q", plaintext, "alice@example.com")
	}
}

func TestCipherRandomizedProducesDistinctCiphertexts(t *testing.T) {
	c, err := NewCipher(testKeys(), EncryptedAttribute{Name: "email"})
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	a, err := c.Encrypt("alice@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("alice@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a == b {
		t.Error("expected two randomized encryptions of the same plaintext to differ")
	}
}

func TestCipherDeterministicProducesEqualCiphertexts(t *testing.T) {
	c, err := NewCipher(testKeys(), EncryptedAttribute{Name: "email", Deterministic: true})
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	a, err := c.Encrypt("bob@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("bob@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if a != b {
		t.Errorf("expected deterministic encryptions of the same plaintext to match, got %q and %q", a, b)
	}

	plaintext, err := c.Decrypt(a)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "bob@example.com" {
		t.Errorf("Decrypt = %q, want %q", plaintext, "bob@example.com")
	}
}

func TestCipherDecryptCorruptedCiphertext(t *testing.T) {
	c, err := NewCipher(testKeys(), EncryptedAttribute{Name: "email"})
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	if _, err := c.Decrypt("not-valid-base64!!!"); err == nil {
		t.Error("expected error decrypting corrupted ciphertext")
	} else if !IsDecryptionError(err) {
		t.Errorf("expected ErrDecryption, got %v", err)
	}
}

func TestEncryptionRegistryRotatePreservesSearchability(t *testing.T) {
	reg := NewEncryptionRegistry()
	if err := reg.Register("users", EncryptedAttribute{Name: "email", Deterministic: true}, testKeys()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	oldCipher, _ := reg.Cipher("users", "email")
	before, err := oldCipher.Encrypt("carol@example.com")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	rotated := EncryptionKeys{
		Primary:       []byte("rotated-primary-key-0123456789ab"),
		Deterministic: []byte("rotated-deterministic-key-abcdef"),
		Salt:          []byte("rotated-salt"),
	}
	if err := reg.Rotate(rotated); err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	newCipher, _ := reg.Cipher("users", "email")
	after, err := newCipher.Encrypt("carol@example.com")
	if err != nil {
		t.Fatalf("Encrypt after rotate: %v", err)
	}

	if before == after {
		t.Error("expected ciphertext to change after key rotation")
	}

	rotatedRows, err := RotateColumn([]string{before}, oldCipherSnapshot(t, testKeys(), "email", true), newCipher)
	if err != nil {
		t.Fatalf("RotateColumn: %v", err)
	}
	if rotatedRows[0] != after {
		t.Errorf("RotateColumn result %q does not match fresh post-rotation encryption %q", rotatedRows[0], after)
	}
}

func oldCipherSnapshot(t *testing.T, keys EncryptionKeys, name string, deterministic bool) *Cipher {
	t.Helper()
	c, err := NewCipher(keys, EncryptedAttribute{Name: name, Deterministic: deterministic})
	if err != nil {
		t.Fatalf("NewCipher snapshot: %v", err)
	}
	return c
}
