package secret

import (
	"errors"
	"fmt"
)

// ErrCrypto — общая ошибка шифрования. Все ошибки пакета, кроме ErrNoKey,
// оборачивают её.
var ErrCrypto = errors.New("crypto error")

// ErrNoKey — ключ ещё не задан.
var ErrNoKey = errors.New("key required")

var (
	// ErrInvalidKeySize — ключ не 32 байта.
	ErrInvalidKeySize = fmt.Errorf("%w: invalid key size", ErrCrypto)

	// ErrInvalidBase64 — строка не является корректным base64.
	ErrInvalidBase64 = fmt.Errorf("%w: invalid base64", ErrCrypto)

	// ErrCiphertextTooShort — блоб короче IV.
	ErrCiphertextTooShort = fmt.Errorf("%w: ciphertext too short", ErrCrypto)

	// ErrInvalidPadding — неверный PKCS#7 padding (чужой ключ или повреждённые данные).
	ErrInvalidPadding = fmt.Errorf("%w: invalid padding", ErrCrypto)

	// ErrInvalidPlaintext — расшифрованные байты не UTF-8.
	ErrInvalidPlaintext = fmt.Errorf("%w: plaintext is not valid UTF-8", ErrCrypto)

	// ErrEmptyKey — пустая строка вместо ключа.
	ErrEmptyKey = fmt.Errorf("%w: key is empty", ErrCrypto)
)
