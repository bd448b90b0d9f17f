package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/zonauth/internal/appdir"
)

// Load загружает конфигурацию сервера зоны из файла.
//
// Порядок:
//  1. Default() как основа, поверх неё YAML (неизвестные ключи запрещены)
//  2. Пути TLS и логов: пустые из директории приложения, относительные от файла конфига
//  3. Удалённые зоны без nats_urls получают адреса из nats.urls
//  4. Validate
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	resolvePaths(cfg, filepath.Dir(path))
	inheritFederationURLs(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config of zone %q: %w", cfg.Zone.Name, err)
	}

	return cfg, nil
}

// LoadFromAppDir загружает конфигурацию из XDG директории приложения.
func LoadFromAppDir() (*Config, error) {
	return Load(appdir.ConfigPath())
}

func resolvePaths(cfg *Config, baseDir string) {
	cfg.TLS.CertFile = resolvePath(cfg.TLS.CertFile, appdir.CertPath(), baseDir)
	cfg.TLS.KeyFile = resolvePath(cfg.TLS.KeyFile, appdir.KeyPath(), baseDir)
	cfg.Log.File = resolvePath(cfg.Log.File, appdir.LogFilePath(), baseDir)
}

func resolvePath(path, fallback, baseDir string) string {
	switch {
	case path == "":
		return fallback
	case filepath.IsAbs(path):
		return path
	default:
		return filepath.Join(baseDir, path)
	}
}

// inheritFederationURLs направляет проверки удалённых зон через общий NATS,
// если у зоны нет собственных адресов.
func inheritFederationURLs(cfg *Config) {
	for i := range cfg.Federation {
		if len(cfg.Federation[i].NATSURLs) == 0 {
			cfg.Federation[i].NATSURLs = slices.Clone(cfg.NATS.URLs)
		}
	}
}
