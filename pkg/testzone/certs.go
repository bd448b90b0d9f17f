package testzone

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/udisondev/zonauth/internal/appdir"
)

// Certs содержит пути к сгенерированным TLS сертификатам.
type Certs struct {
	// CertFile путь к файлу сертификата (PEM). Он же CA для клиентов.
	CertFile string
	// KeyFile путь к файлу приватного ключа (PEM).
	KeyFile string
	// CACert содержимое CA сертификата.
	CACert []byte

	dir string
}

// GenerateCerts генерирует самоподписанный сертификат для 127.0.0.1 и
// localhost во временной директории.
func GenerateCerts() (*Certs, error) {
	dir, err := os.MkdirTemp("", "zonauth-test-certs-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	c := &Certs{
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
		dir:      dir,
	}

	if err := appdir.WriteSelfSignedCert(c.CertFile, c.KeyFile, 24*time.Hour, "localhost", "127.0.0.1"); err != nil {
		_ = c.Cleanup()
		return nil, err
	}

	c.CACert, err = os.ReadFile(c.CertFile)
	if err != nil {
		_ = c.Cleanup()
		return nil, fmt.Errorf("read cert file: %w", err)
	}

	return c, nil
}

// Cleanup удаляет временные файлы сертификатов.
func (c *Certs) Cleanup() error {
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}
