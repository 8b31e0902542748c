// Package appdir управляет директорией приложения с XDG-совместимыми путями.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const appName = "manchester"

// EnvDir переопределяет директорию приложения (тесты, несколько узлов на одной машине).
const EnvDir = "MANCHESTER_DIR"

// Dir возвращает путь к директории приложения.
// Linux: ~/.config/manchester
// macOS: ~/Library/Application Support/manchester
// Windows: %AppData%\manchester
func Dir() string {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigPath возвращает путь к файлу конфигурации.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// CertsDir возвращает путь к директории сертификатов.
func CertsDir() string {
	return filepath.Join(Dir(), "certs")
}

// KeysDir возвращает путь к директории ключей шифрования.
func KeysDir() string {
	return filepath.Join(Dir(), "keys")
}

// LogsDir возвращает путь к директории логов.
func LogsDir() string {
	return filepath.Join(Dir(), "logs")
}

// CertPath возвращает путь к TLS сертификату.
func CertPath() string {
	return filepath.Join(CertsDir(), "server.crt")
}

// CertKeyPath возвращает путь к приватному ключу TLS сертификата.
func CertKeyPath() string {
	return filepath.Join(CertsDir(), "server.key")
}

// LinkKeyPath возвращает путь к общему AES ключу канала.
func LinkKeyPath() string {
	return filepath.Join(KeysDir(), "link.key")
}

// LogFilePath возвращает путь к файлу логов.
func LogFilePath() string {
	return filepath.Join(LogsDir(), "manchester.log")
}

// Init инициализирует директорию приложения.
// Создаёт поддиректории, дефолтный конфиг и самоподписанные сертификаты.
// Ключ канала здесь не создаётся: его генерирует keygen или receive.
func Init() error {
	dirs := []string{Dir(), CertsDir(), KeysDir(), LogsDir()}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	if err := ensureDefaultConfig(); err != nil {
		return fmt.Errorf("ensure default config: %w", err)
	}

	if err := ensureCerts(); err != nil {
		return fmt.Errorf("ensure certificates: %w", err)
	}

	return nil
}

func ensureDefaultConfig() error {
	configPath := ConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	return writeDefaultConfig(configPath)
}

// ensureCerts генерирует сертификаты если хотя бы одного файла нет.
func ensureCerts() error {
	certPath := CertPath()
	keyPath := CertKeyPath()

	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)

	if certErr == nil && keyErr == nil {
		return nil
	}

	return generateSelfSignedCert(certPath, keyPath)
}
