// Package config реализует загрузку конфигурации сервера зоны и клиентского окружения.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/udisondev/zonauth/pkg/broker"
	"github.com/udisondev/zonauth/pkg/catalog"
)

// Config конфигурация сервера зоны.
type Config struct {
	Server     ServerConfig       `yaml:"server"`
	Zone       ZoneConfig         `yaml:"zone"`
	Federation []RemoteZoneConfig `yaml:"federation"`
	Users      []UserConfig       `yaml:"users"`
	TLS        TLSConfig          `yaml:"tls"`
	NATS       NATSConfig         `yaml:"nats"`
	Limits     LimitsConfig       `yaml:"limits"`
	Log        LogConfig          `yaml:"log"`
	Metrics    MetricsConfig      `yaml:"metrics"`

	// Ready закрывается когда сервер полностью готов к приёму соединений.
	// Опциональное поле, используется для тестов.
	Ready chan struct{} `yaml:"-"`
}

// ServerConfig конфигурация TCP сервера.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr возвращает адрес сервера в формате host:port.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ZoneConfig локальная зона.
type ZoneConfig struct {
	Name string `yaml:"name"`
	// ServerID секрет зоны, которым сервер подтверждает себя другим зонам.
	ServerID string `yaml:"server_id"`
}

// RemoteZoneConfig доверенная удалённая зона.
type RemoteZoneConfig struct {
	Name     string   `yaml:"name"`
	ServerID string   `yaml:"server_id"`
	NATSURLs []string `yaml:"nats_urls"`
}

// UserConfig пользователь локального каталога.
type UserConfig struct {
	Name     string `yaml:"name"`
	Zone     string `yaml:"zone"`
	Password string `yaml:"password"`
	Type     string `yaml:"type"` // admin | user
}

// TLSConfig конфигурация TLS.
type TLSConfig struct {
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"`
}

// NATSConfig конфигурация NATS. Без urls сервер не обслуживает проверки для других зон.
type NATSConfig struct {
	URLs          []string      `yaml:"urls"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

// LimitsConfig конфигурация лимитов.
type LimitsConfig struct {
	MaxConnections  int           `yaml:"max_connections"`
	MaxMessageSize  int           `yaml:"max_message_size"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	AuthTimeout     time.Duration `yaml:"auth_timeout"`
	ChallengeTTL    time.Duration `yaml:"challenge_ttl"`
	// DelegateTimeout ограничивает проверку в удалённой зоне.
	DelegateTimeout time.Duration `yaml:"delegate_timeout"`
}

// LogConfig конфигурация логирования.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"` // путь к файлу логов (пустой = stdout)
}

// MetricsConfig конфигурация Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Validate проверяет корректность конфигурации.
func (c *Config) Validate() error {
	var errs []error

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port: %d", c.Server.Port))
	}

	// Zone
	if _, err := broker.SubjectForZone(c.Zone.Name); err != nil {
		errs = append(errs, fmt.Errorf("zone.name: %w", err))
	}
	if c.Zone.ServerID == "" {
		errs = append(errs, fmt.Errorf("zone.server_id is required"))
	}

	// Federation
	seen := map[string]bool{c.Zone.Name: true}
	for i, z := range c.Federation {
		if _, err := broker.SubjectForZone(z.Name); err != nil {
			errs = append(errs, fmt.Errorf("federation[%d] zone %q: %w", i, z.Name, err))
			continue
		}
		if seen[z.Name] {
			errs = append(errs, fmt.Errorf("federation zone %q: duplicate zone", z.Name))
		}
		seen[z.Name] = true
		if len(z.NATSURLs) == 0 {
			errs = append(errs, fmt.Errorf("federation zone %q: nats_urls is required", z.Name))
		}
	}

	// Users
	users := make(map[string]bool, len(c.Users))
	for i, u := range c.Users {
		if u.Name == "" {
			errs = append(errs, fmt.Errorf("users[%d].name is required", i))
			continue
		}
		switch catalog.UserType(u.Type) {
		case "", catalog.UserTypeAdmin, catalog.UserTypeUser:
		default:
			errs = append(errs, fmt.Errorf("users[%d].type: unknown type %q", i, u.Type))
		}
		key := u.Name + "#" + u.Zone
		if users[key] {
			errs = append(errs, fmt.Errorf("users[%d]: duplicate user %q", i, u.Name))
		}
		users[key] = true
	}

	// TLS
	if c.TLS.CertFile == "" {
		errs = append(errs, fmt.Errorf("tls.cert_file is required"))
	} else if _, err := os.Stat(c.TLS.CertFile); err != nil {
		errs = append(errs, fmt.Errorf("tls.cert_file: %w", err))
	}
	if c.TLS.KeyFile == "" {
		errs = append(errs, fmt.Errorf("tls.key_file is required"))
	} else if _, err := os.Stat(c.TLS.KeyFile); err != nil {
		errs = append(errs, fmt.Errorf("tls.key_file: %w", err))
	}

	// Limits
	if c.Limits.MaxConnections < 1 {
		errs = append(errs, fmt.Errorf("limits.max_connections must be positive"))
	}
	if c.Limits.MaxMessageSize < 1 {
		errs = append(errs, fmt.Errorf("limits.max_message_size must be positive"))
	}
	if c.Limits.AuthTimeout <= 0 {
		errs = append(errs, fmt.Errorf("limits.auth_timeout must be positive"))
	}
	if c.Limits.ChallengeTTL <= 0 {
		errs = append(errs, fmt.Errorf("limits.challenge_ttl must be positive"))
	}
	if c.Limits.DelegateTimeout <= 0 {
		errs = append(errs, fmt.Errorf("limits.delegate_timeout must be positive"))
	}

	// Metrics
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, fmt.Errorf("metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// Catalog возвращает содержимое статического каталога.
func (c *Config) Catalog() catalog.StaticConfig {
	cfg := catalog.StaticConfig{
		LocalZone:   c.Zone.Name,
		LocalSecret: c.Zone.ServerID,
		Zones:       make([]catalog.Zone, 0, len(c.Federation)),
		Users:       make([]catalog.UserRecord, 0, len(c.Users)),
	}
	for _, z := range c.Federation {
		cfg.Zones = append(cfg.Zones, catalog.Zone{Name: z.Name, Secret: z.ServerID, URLs: z.NATSURLs})
	}
	for _, u := range c.Users {
		cfg.Users = append(cfg.Users, catalog.UserRecord{
			Name:     u.Name,
			Zone:     u.Zone,
			Password: u.Password,
			Type:     catalog.UserType(u.Type),
		})
	}
	return cfg
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 1247,
		},
		Zone: ZoneConfig{
			Name: "tempZone",
		},
		TLS: TLSConfig{
			MinVersion: "1.3",
		},
		NATS: NATSConfig{
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Limits: LimitsConfig{
			MaxConnections:  10000,
			MaxMessageSize:  65536,
			RateLimitPerSec: 20,
			RateLimitBurst:  10,
			AuthTimeout:     10 * time.Second,
			ChallengeTTL:    60 * time.Second,
			DelegateTimeout: 5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9247",
		},
	}
}
