// Package unwrap decrypts uploaded payloads sealed with the relay's shared
// AES-256-CBC key.
package unwrap

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/tinywideclouds/go-push-relay/pkg/push"
)

const (
	KeySize = 32
	IVSize  = aes.BlockSize
)

var (
	ErrCiphertextLength = errors.New("ciphertext is not a positive multiple of the block size")
	ErrPadding          = errors.New("invalid PKCS#7 padding")
)

// Unwrapper holds the configured key and IV. The IV is fixed for every
// message to stay compatible with existing clients.
type Unwrapper struct {
	block cipher.Block
	iv    []byte
}

// New validates the key and IV sizes and prepares the block cipher.
func New(key, iv []byte) (*Unwrapper, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &Unwrapper{block: block, iv: bytes.Clone(iv)}, nil
}

// Decrypt reverses Encrypt. Every failure is a *push.DecryptionError.
func (u *Unwrapper) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, &push.DecryptionError{Err: ErrCiphertextLength}
	}

	plain := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(u.block, u.iv).CryptBlocks(plain, ciphertext)

	out, err := unpad(plain)
	if err != nil {
		return nil, &push.DecryptionError{Err: err}
	}
	return out, nil
}

// Encrypt pads plaintext with PKCS#7 and seals it with the configured key/IV.
func (u *Unwrapper) Encrypt(plaintext []byte) []byte {
	padded := pad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(u.block, u.iv).CryptBlocks(out, padded)
	return out
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	return append(bytes.Clone(b), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, ErrPadding
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}
