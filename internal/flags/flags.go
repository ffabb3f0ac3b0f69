// Package flags generates and validates per-user CTF flags. A flag is the
// user's email encrypted with AES-256-CBC under a key derived from the
// instructor secret, wrapped as flag{<hex>}.
package flags

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	prefix = "flag{"
	suffix = "}"
)

// Create builds the flag for an email under the given key.
func Create(email, key string) (string, error) {
	enc, err := encrypt(email, key)
	if err != nil {
		return "", err
	}
	return prefix + enc + suffix, nil
}

// Check reports whether flag is the valid flag for email under key.
func Check(email, flag, key string) bool {
	if !strings.HasPrefix(flag, prefix) || !strings.HasSuffix(flag, suffix) {
		return false
	}
	enc := strings.TrimSuffix(strings.TrimPrefix(flag, prefix), suffix)

	dec, err := decrypt(enc, key)
	if err != nil {
		return false
	}
	if dec != email {
		return false
	}

	// Round-trip check: re-encrypting the email must reproduce the ciphertext.
	reenc, err := encrypt(email, key)
	if err != nil {
		return false
	}
	return reenc == enc
}

// deriveKey maps the shared secret to a 32-byte AES key, with the IV derived
// from the key material itself so the scheme stays deterministic.
func deriveKey(key string) (aesKey, iv []byte) {
	sum := sha256.Sum256([]byte(key))
	ivSum := md5.Sum(sum[:])
	return sum[:], ivSum[:]
}

func encrypt(text, key string) (string, error) {
	aesKey, iv := deriveKey(key)
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}

	plain := pkcs7Pad([]byte(text), block.BlockSize())
	out := make([]byte, len(plain))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plain)
	return hex.EncodeToString(out), nil
}

func decrypt(encrypted, key string) (string, error) {
	data, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	aesKey, iv := deriveKey(key)
	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	if len(data) == 0 || len(data)%block.BlockSize() != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)

	unpadded, err := pkcs7Unpad(out, block.BlockSize())
	if err != nil {
		return "", err
	}
	return string(unpadded), nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}
