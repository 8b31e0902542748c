package secret

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"unicode/utf8"
)

// IVSize — размер IV для CBC (равен размеру блока AES).
const IVSize = aes.BlockSize

// Encrypt шифрует текст AES-256-CBC со свежим случайным IV
// и возвращает base64(IV || ciphertext).
func Encrypt(plaintext string, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	padded := pad([]byte(plaintext), aes.BlockSize)

	out := make([]byte, IVSize+len(padded))
	iv := out[:IVSize]
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[IVSize:], padded)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt расшифровывает base64(IV || ciphertext).
// При любой ошибке возвращает пустую строку и ошибку, оборачивающую ErrCrypto.
func Decrypt(blob string, key []byte) (string, error) {
	block, err := newBlock(key)
	if err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if len(raw) < IVSize {
		return "", fmt.Errorf("%w: %d bytes", ErrCiphertextTooShort, len(raw))
	}

	iv, ct := raw[:IVSize], raw[IVSize:]
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", fmt.Errorf("%w: ciphertext length %d", ErrInvalidPadding, len(ct))
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)

	plain, err = unpad(plain, aes.BlockSize)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(plain) {
		return "", ErrInvalidPlaintext
	}
	return string(plain), nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return block, nil
}

// pad дополняет данные по PKCS#7. Всегда добавляет от 1 до blockSize байт.
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad снимает PKCS#7 padding.
func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, ErrInvalidPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, ErrInvalidPadding
	}

	tail := data[len(data)-n:]
	good := 1
	for _, b := range tail {
		good &= subtle.ConstantTimeByteEq(b, byte(n))
	}
	if good != 1 {
		return nil, ErrInvalidPadding
	}
	return data[:len(data)-n], nil
}
