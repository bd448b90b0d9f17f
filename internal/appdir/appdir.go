// Package appdir управляет директорией zonauth с XDG-совместимыми путями.
//
// Сервер зоны (zonauthd) хранит в ней config.yaml, TLS пару и логи.
// Клиент (zonauth) хранит environment.yaml и обфусцированный пароль.
package appdir

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

const appName = "zonauth"

const (
	// certValidity срок самоподписанного сертификата сервера зоны.
	certValidity = 365 * 24 * time.Hour
	// certRenewBefore сертификат перевыпускается, если истекает раньше.
	certRenewBefore = 30 * 24 * time.Hour
)

// Dir возвращает путь к директории приложения.
// Linux: ~/.config/zonauth
// macOS: ~/Library/Application Support/zonauth
// Windows: %AppData%\zonauth
func Dir() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// ConfigPath возвращает путь к конфигурации сервера зоны.
func ConfigPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// CertsDir возвращает путь к директории сертификатов.
func CertsDir() string {
	return filepath.Join(Dir(), "certs")
}

// LogsDir возвращает путь к директории логов.
func LogsDir() string {
	return filepath.Join(Dir(), "logs")
}

func CertPath() string {
	return filepath.Join(CertsDir(), "server.crt")
}

func KeyPath() string {
	return filepath.Join(CertsDir(), "server.key")
}

func LogFilePath() string {
	return filepath.Join(LogsDir(), "zonauthd.log")
}

// EnvironmentPath возвращает путь к клиентскому окружению.
func EnvironmentPath() string {
	return filepath.Join(Dir(), "environment.yaml")
}

// AuthFilePath возвращает путь к обфусцированному файлу пароля.
func AuthFilePath() string {
	return filepath.Join(Dir(), "auth")
}

// ServerLayout файлы сервера зоны после InitServer.
type ServerLayout struct {
	Config string
	Cert   string
	Key    string
	Logs   string

	// ConfigCreated конфиг записан этим вызовом, в нём новый server_id.
	ConfigCreated bool
	// CertIssued TLS пара выпущена этим вызовом.
	CertIssued bool
}

// InitServer готовит директорию сервера зоны.
//
// Порядок:
//  1. Директории (0700: в конфиге лежат пароли и server_id)
//  2. config.yaml со случайным server_id, если его нет
//  3. TLS пара, если её нет, она не читается или скоро истекает
func InitServer() (*ServerLayout, error) {
	layout := &ServerLayout{
		Config: ConfigPath(),
		Cert:   CertPath(),
		Key:    KeyPath(),
		Logs:   LogsDir(),
	}

	// 1. Директории
	for _, dir := range []string{Dir(), CertsDir(), LogsDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	// 2. Конфиг
	if _, err := os.Stat(layout.Config); os.IsNotExist(err) {
		if err := writeDefaultConfig(layout.Config); err != nil {
			return nil, fmt.Errorf("ensure default config: %w", err)
		}
		layout.ConfigCreated = true
	} else if err != nil {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	// 3. Сертификат
	if !certUsable(layout.Cert, layout.Key, time.Now().Add(certRenewBefore)) {
		if err := WriteSelfSignedCert(layout.Cert, layout.Key, certValidity, certHosts()...); err != nil {
			return nil, fmt.Errorf("ensure certificates: %w", err)
		}
		layout.CertIssued = true
	}

	return layout, nil
}

// certUsable сообщает, что пара читается и действует до validUntil.
func certUsable(certPath, keyPath string, validUntil time.Time) bool {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return false
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return false
	}
	return cert.NotAfter.After(validUntil)
}

// certHosts SAN для сертификата: имя машины, чтобы клиенты других
// хостов могли проверить сервер зоны, и loopback адреса.
func certHosts() []string {
	hosts := []string{"localhost", "127.0.0.1", "::1"}
	if name, err := os.Hostname(); err == nil && name != "" && name != "localhost" {
		hosts = append(hosts, name)
	}
	return hosts
}
