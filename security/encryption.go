package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const (
	// SaltSize is the per-record salt stored next to the ciphertexts. The
	// salt is authenticated as GCM associated data, binding every encrypted
	// field to its owning record. It is never used as a nonce.
	SaltSize = 32

	gcmTagSize = 16
)

// FieldCipher encrypts individual record fields with AES-256-GCM. Every
// field gets its own random 96-bit nonce, so two fields of the same record
// never share one.
type FieldCipher struct {
	aead cipher.AEAD
}

// EncryptedField carries the three parts persisted per encrypted column.
type EncryptedField struct {
	Ciphertext []byte
	Nonce      []byte
	Tag        []byte
}

func CreateFieldCipher(key []byte) (*FieldCipher, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %v", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %v", err)
	}

	return &FieldCipher{aead: aead}, nil
}

func (c *FieldCipher) EncryptField(plaintext, associatedData []byte) (*EncryptedField, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %v", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, associatedData)
	split := len(sealed) - gcmTagSize

	return &EncryptedField{
		Ciphertext: sealed[:split],
		Nonce:      nonce,
		Tag:        sealed[split:],
	}, nil
}

func (c *FieldCipher) DecryptField(field *EncryptedField, associatedData []byte) ([]byte, error) {
	if len(field.Nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size %d", len(field.Nonce))
	}
	if len(field.Tag) != gcmTagSize {
		return nil, fmt.Errorf("invalid tag size %d", len(field.Tag))
	}

	sealed := make([]byte, 0, len(field.Ciphertext)+len(field.Tag))
	sealed = append(sealed, field.Ciphertext...)
	sealed = append(sealed, field.Tag...)

	plaintext, err := c.aead.Open(nil, field.Nonce, sealed, associatedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %v", err)
	}

	return plaintext, nil
}

func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %v", err)
	}
	return salt, nil
}

// GenerateEncryptionKey exists for sandbox bootstrap only; production keys
// are provisioned externally and never generated at runtime.
func GenerateEncryptionKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %v", err)
	}
	return key, nil
}
