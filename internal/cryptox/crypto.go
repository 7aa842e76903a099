// Package cryptox implements at-rest protection for signing-key material.
// Secrets are sealed with AES-256-GCM under a key derived from the operator
// master key via argon2id, so a database dump alone does not expose them.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	nonceSize = 12
)

// ErrMalformedBlob is returned when a sealed value is too short to contain
// its salt and nonce.
var ErrMalformedBlob = errors.New("malformed sealed blob")

// deriveKey stretches the master key into a 32-byte AES key. A fresh salt is
// used per sealed value, so equal plaintexts never share ciphertexts.
func deriveKey(masterKey, salt []byte) []byte {
	return argon2.IDKey(masterKey, salt, 1, 64*1024, 4, 32)
}

// Seal encrypts plaintext under the master key. The returned blob is
// salt || nonce || ciphertext and is safe to store in the database.
func Seal(plaintext, masterKey []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(deriveKey(masterKey, salt))
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, saltSize+nonceSize+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// Open decrypts a blob produced by Seal. A wrong master key or tampered blob
// fails GCM authentication and returns an error.
func Open(blob, masterKey []byte) ([]byte, error) {
	if len(blob) < saltSize+nonceSize {
		return nil, ErrMalformedBlob
	}
	salt := blob[:saltSize]
	nonce := blob[saltSize : saltSize+nonceSize]
	ciphertext := blob[saltSize+nonceSize:]

	block, err := aes.NewCipher(deriveKey(masterKey, salt))
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	return aesgcm.Open(nil, nonce, ciphertext, nil)
}
