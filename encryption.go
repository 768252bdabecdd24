package grant

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// EncryptionKeys supplies the primary and deterministic master keys plus the
// derivation salt the Encryption Subsystem needs. Callers pass them in
// explicitly rather than having this package read environment variables
// directly, so key management stays the caller's responsibility.
type EncryptionKeys struct {
	Primary       []byte // randomized-mode master key
	Deterministic []byte // deterministic-mode master key
	Salt          []byte // HKDF salt, shared by both modes
}

// EncryptedAttribute is one encrypts(attr, deterministic:) declaration: the
// logical field name, its sibling storage column, and whether it uses
// deterministic (searchable) or randomized ciphertext.
type EncryptedAttribute struct {
	Name          string
	StorageColumn string // defaults to Name + "_encrypted"
	Deterministic bool
}

// Cipher derives per-attribute keys from a model's EncryptionKeys via
// HKDF-SHA256 and performs AES-256-GCM encrypt/decrypt for one attribute.
// A Cipher caches its derived key (derivation is per-attribute, not
// per-call) behind a mutex since rotation replaces it wholesale.
type Cipher struct {
	mu   sync.RWMutex
	keys EncryptionKeys
	attr EncryptedAttribute
	key  []byte
}

// NewCipher derives the AES-256 key for attr immediately (key derivation is
// deterministic over (keys, attr.Name, attr.Deterministic), so there is
// nothing to gain by deferring it).
func NewCipher(keys EncryptionKeys, attr EncryptedAttribute) (*Cipher, error) {
	if attr.StorageColumn == "" {
		attr.StorageColumn = attr.Name + "_encrypted"
	}
	c := &Cipher{keys: keys, attr: attr}
	if err := c.deriveLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cipher) deriveLocked() error {
	master := c.keys.Primary
	if c.attr.Deterministic {
		master = c.keys.Deterministic
	}
	if len(master) == 0 {
		return fmt.Errorf("grant: no %s master key configured for attribute %q", encryptionModeLabel(c.attr.Deterministic), c.attr.Name)
	}

	info := []byte("grant-encrypt:" + c.attr.Name)
	kdf := hkdf.New(sha256.New, master, c.keys.Salt, info)

	key := make([]byte, 32) // AES-256
	if _, err := io.ReadFull(kdf, key); err != nil {
		return fmt.Errorf("grant: key derivation for attribute %q: %w", c.attr.Name, err)
	}
	c.key = key
	return nil
}

func encryptionModeLabel(deterministic bool) string {
	if deterministic {
		return "deterministic"
	}
	return "randomized"
}

// StorageColumn returns the column the ciphertext is written to and read
// from, which may differ from the logical attribute name.
func (c *Cipher) StorageColumn() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.attr.StorageColumn
}

// Rotate re-derives this Cipher's key from newKeys. Deterministic attributes
// keep yielding equal ciphertexts for equal plaintexts under the new key
// (still searchable), just not equal to ciphertexts encrypted before
// rotation — callers re-encrypt existing rows via RotateColumn.
func (c *Cipher) Rotate(newKeys EncryptionKeys) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.keys
	c.keys = newKeys
	if err := c.deriveLocked(); err != nil {
		c.keys = old
		return err
	}
	return nil
}

// Encrypt returns the base64-encoded ciphertext to store in the attribute's
// storage column. Randomized mode draws a fresh IV every call; deterministic
// mode derives the IV from HMAC-SHA256(plaintext, key) so identical
// plaintexts always produce identical ciphertext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	c.mu.RLock()
	key := c.key
	deterministic := c.attr.Deterministic
	c.mu.RUnlock()

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	iv := make([]byte, gcm.NonceSize())
	if deterministic {
		mac := hmac.New(sha256.New, key)
		mac.Write([]byte(plaintext))
		copy(iv, mac.Sum(nil))
	} else {
		if _, err := rand.Read(iv); err != nil {
			return "", err
		}
	}

	ciphertext := gcm.Seal(iv, iv, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt reverses Encrypt. A wrong or rotated key, or corrupted storage,
// returns ErrDecryption rather than corrupted plaintext.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	c.mu.RLock()
	key := c.key
	c.mu.RUnlock()

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(raw) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext shorter than nonce", ErrDecryption)
	}
	iv, body := raw[:nonceSize], raw[nonceSize:]

	plaintext, err := gcm.Open(nil, iv, body, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return string(plaintext), nil
}

// EncryptionRegistry tracks every encrypts() declaration for a model table
// and caches each attribute's Cipher, keyed by table+attribute so a single
// rotation updates every row's cipher at once.
type EncryptionRegistry struct {
	mu      sync.RWMutex
	ciphers map[string]*Cipher // key: table + "." + attribute
}

// NewEncryptionRegistry returns an empty registry; one is normally owned by
// a Runtime, mirroring the Connection Registry's shape.
func NewEncryptionRegistry() *EncryptionRegistry {
	return &EncryptionRegistry{ciphers: make(map[string]*Cipher)}
}

// Register derives and stores a Cipher for table.attr using keys.
func (e *EncryptionRegistry) Register(table string, attr EncryptedAttribute, keys EncryptionKeys) error {
	c, err := NewCipher(keys, attr)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ciphers == nil {
		e.ciphers = make(map[string]*Cipher)
	}
	e.ciphers[table+"."+attr.Name] = c
	return nil
}

// Cipher returns the registered Cipher for table.attr, if any.
func (e *EncryptionRegistry) Cipher(table, attr string) (*Cipher, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.ciphers[table+"."+attr]
	return c, ok
}

// Rotate rotates every registered Cipher under newKeys. Rows already in the
// database are not touched here — callers follow up with RotateColumn per
// encrypted column they want re-encrypted in place.
func (e *EncryptionRegistry) Rotate(newKeys EncryptionKeys) error {
	e.mu.RLock()
	ciphers := make([]*Cipher, 0, len(e.ciphers))
	for _, c := range e.ciphers {
		ciphers = append(ciphers, c)
	}
	e.mu.RUnlock()

	for _, c := range ciphers {
		if err := c.Rotate(newKeys); err != nil {
			return err
		}
	}
	return nil
}

// RotateColumn re-encrypts each stored value in rows, decrypting with
// oldCipher and re-encrypting with newCipher, and returns the new values in
// the same order; empty strings stay empty. It does not read or write the
// database: the caller loads the stored values and writes the result back.
func RotateColumn(rows []string, oldCipher, newCipher *Cipher) ([]string, error) {
	out := make([]string, len(rows))
	for i, encoded := range rows {
		if encoded == "" {
			continue
		}
		plaintext, err := oldCipher.Decrypt(encoded)
		if err != nil {
			return nil, fmt.Errorf("grant: rotate row %d: %w", i, err)
		}
		reEncoded, err := newCipher.Encrypt(plaintext)
		if err != nil {
			return nil, fmt.Errorf("grant: rotate row %d: %w", i, err)
		}
		out[i] = reEncoded
	}
	return out, nil
}
