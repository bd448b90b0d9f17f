package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/zonauth/internal/appdir"
)

// ClientConfig окружение клиента: к какому серверу и от чьего имени подключаться.
type ClientConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	User       string `yaml:"user"`
	Zone       string `yaml:"zone"`
	ClientUser string `yaml:"client_user"`
	ClientZone string `yaml:"client_zone"`
	Scheme     string `yaml:"scheme"`

	CAFile             string `yaml:"ca_file"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`

	Timeout time.Duration `yaml:"timeout"`

	// AuthFile путь к файлу пароля (пустой = XDG по умолчанию).
	AuthFile string `yaml:"auth_file"`
}

// Addr возвращает адрес сервера в формате host:port.
func (c ClientConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DefaultClient возвращает клиентское окружение по умолчанию.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		Host:    "localhost",
		Port:    1247,
		Scheme:  "native",
		Timeout: 30 * time.Second,
	}
}

// Validate проверяет клиентское окружение.
func (c *ClientConfig) Validate() error {
	var errs []error
	if c.Host == "" {
		errs = append(errs, fmt.Errorf("host is required"))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port: %d", c.Port))
	}
	if c.User == "" {
		errs = append(errs, fmt.Errorf("user is required"))
	}
	if c.Zone == "" {
		errs = append(errs, fmt.Errorf("zone is required"))
	}
	if c.Scheme == "" {
		errs = append(errs, fmt.Errorf("scheme is required"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errors.Join(errs...)
}

// LoadClient загружает клиентское окружение.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
func LoadClient(path string) (*ClientConfig, error) {
	cfg := DefaultClient()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read environment file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse environment: %w", err)
		}
	}

	if cfg.AuthFile == "" {
		cfg.AuthFile = appdir.AuthFilePath()
	}

	return cfg, nil
}

// SaveClient записывает клиентское окружение.
func SaveClient(path string, cfg *ClientConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal environment: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write environment file: %w", err)
	}
	return nil
}
