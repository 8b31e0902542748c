package link

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/udisondev/manchester/pkg/config"
	"github.com/udisondev/manchester/pkg/secret"
)

// LoadKeys строит holder ключа по конфигурации.
// Пароль имеет приоритет над файлом. Если файла нет: generate == true —
// создаём новый ключ, иначе возвращаем пустой holder (ErrKeyRequired при работе).
func LoadKeys(kc config.KeyConfig, generate bool) (*secret.Holder, error) {
	if kc.Passphrase != "" {
		key, err := secret.DeriveKey(kc.Passphrase)
		if err != nil {
			return nil, fmt.Errorf("derive key: %w", err)
		}
		slog.Info("link: key derived from passphrase")
		return secret.NewHolder(&key), nil
	}

	if kc.File == "" {
		slog.Warn("link: no key configured")
		return secret.NewHolder(nil), nil
	}

	if generate {
		key, err := secret.LoadOrGenerate(kc.File)
		if err != nil {
			return nil, fmt.Errorf("load key: %w", err)
		}
		slog.Info("link: key loaded", "file", kc.File)
		return secret.NewHolder(&key), nil
	}

	key, err := secret.LoadFromFile(kc.File)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("link: key file not found", "file", kc.File)
			return secret.NewHolder(nil), nil
		}
		return nil, fmt.Errorf("load key: %w", err)
	}
	slog.Info("link: key loaded", "file", kc.File)
	return secret.NewHolder(&key), nil
}
