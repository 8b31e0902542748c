// Package secret реализует симметричное шифрование сообщений (AES-256-CBC)
// и работу с ключом.
package secret

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize — размер ключа AES-256.
const KeySize = 32

// Параметры вывода ключа из пароля.
const (
	DerivationSalt       = "manchester-link-v1"
	DerivationIterations = 100000
)

// Key — 256-битный ключ.
type Key [KeySize]byte

// GenerateKey создаёт случайный ключ.
func GenerateKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, fmt.Errorf("generate key: %w", err)
	}
	return k, nil
}

// ParseKey разбирает ключ из base64. Допустимы только 32 байта.
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Key{}, ErrEmptyKey
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return KeyFromBytes(raw)
}

// KeyFromBytes копирует ключ из среза, проверяя длину.
func KeyFromBytes(b []byte) (Key, error) {
	if len(b) != KeySize {
		return Key{}, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidKeySize, len(b), KeySize)
	}
	var k Key
	copy(k[:], b)
	return k, nil
}

// DeriveKey выводит ключ из пароля (PBKDF2-SHA256, фиксированная соль).
// Обе стороны, знающие пароль, получают один и тот же ключ.
func DeriveKey(passphrase string) (Key, error) {
	if passphrase == "" {
		return Key{}, ErrEmptyKey
	}
	raw := pbkdf2.Key([]byte(passphrase), []byte(DerivationSalt), DerivationIterations, KeySize, sha256.New)
	return KeyFromBytes(raw)
}

// String возвращает ключ в base64.
func (k Key) String() string {
	return base64.StdEncoding.EncodeToString(k[:])
}

// Equal сравнивает ключи за постоянное время.
func (k Key) Equal(other Key) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// LoadFromFile загружает ключ из файла (одна строка base64).
func LoadFromFile(path string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("read key file: %w", err)
	}

	k, err := ParseKey(string(data))
	if err != nil {
		return Key{}, fmt.Errorf("parse key file %s: %w", path, err)
	}
	return k, nil
}

// SaveToFile сохраняет ключ в файл с правами 0600.
func (k Key) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(k.String()+"\n"), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// LoadOrGenerate загружает ключ из файла или генерирует и сохраняет новый.
func LoadOrGenerate(path string) (Key, error) {
	k, err := LoadFromFile(path)
	if err == nil {
		return k, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return Key{}, err
	}

	k, err = GenerateKey()
	if err != nil {
		return Key{}, err
	}
	if err := k.SaveToFile(path); err != nil {
		return Key{}, err
	}
	return k, nil
}
