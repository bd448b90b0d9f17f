package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/udisondev/zonauth/pkg/broker"
	"github.com/udisondev/zonauth/pkg/catalog"
)

func validConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()
	cert := filepath.Join(dir, "server.crt")
	key := filepath.Join(dir, "server.key")
	for _, p := range []string{cert, key} {
		if err := os.WriteFile(p, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	cfg := Default()
	cfg.Zone.ServerID = "sidA"
	cfg.TLS.CertFile = cert
	cfg.TLS.KeyFile = key
	return cfg
}

func TestValidateDefaults(t *testing.T) {
	if err := validConfig(t).Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"server_id", func(c *Config) { c.Zone.ServerID = "" }, "zone.server_id"},
		{"zone_name", func(c *Config) { c.Zone.Name = "bad.zone" }, "zone.name"},
		{"federation_urls", func(c *Config) {
			c.Federation = []RemoteZoneConfig{{Name: "zoneB", ServerID: "sidB"}}
		}, "nats_urls"},
		{"federation_duplicate", func(c *Config) {
			c.Federation = []RemoteZoneConfig{{Name: c.Zone.Name, NATSURLs: []string{"nats://x"}}}
		}, "duplicate zone"},
		{"user_type", func(c *Config) {
			c.Users = []UserConfig{{Name: "alice", Type: "root"}}
		}, "unknown type"},
		{"user_duplicate", func(c *Config) {
			c.Users = []UserConfig{{Name: "alice"}, {Name: "alice"}}
		}, "duplicate user"},
		{"challenge_ttl", func(c *Config) { c.Limits.ChallengeTTL = 0 }, "challenge_ttl"},
		{"metrics_addr", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Addr = "" }, "metrics.addr"},
		{"cert_missing", func(c *Config) { c.TLS.CertFile = "/nonexistent/cert" }, "tls.cert_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateZoneNameKind(t *testing.T) {
	cfg := validConfig(t)
	cfg.Zone.Name = "zone>"
	if err := cfg.Validate(); !errors.Is(err, broker.ErrInvalidZone) {
		t.Errorf("expected ErrInvalidZone, got %v", err)
	}
}

func TestLoad(t *testing.T) {
	base := validConfig(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 2247
zone:
  name: zoneA
  server_id: sidA
federation:
  - name: zoneB
    server_id: sidB
    nats_urls: ["nats://b:4222"]
users:
  - name: alice
    password: secret123
  - name: rods
    password: rods
    type: admin
tls:
  cert_file: ` + base.TLS.CertFile + `
  key_file: ` + base.TLS.KeyFile + `
limits:
  challenge_ttl: 30s
log:
  file: /tmp/zonauthd.log
`
	if err := os.WriteFile(path, []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 2247 || cfg.Zone.Name != "zoneA" {
		t.Errorf("unexpected server/zone: %+v %+v", cfg.Server, cfg.Zone)
	}
	if cfg.Limits.ChallengeTTL.Seconds() != 30 {
		t.Errorf("challenge_ttl = %v", cfg.Limits.ChallengeTTL)
	}
	// Незаданные поля берутся из Default
	if cfg.Limits.MaxConnections != Default().Limits.MaxConnections {
		t.Errorf("max_connections = %d", cfg.Limits.MaxConnections)
	}

	cat := cfg.Catalog()
	if cat.LocalZone != "zoneA" || cat.LocalSecret != "sidA" {
		t.Errorf("catalog zone: %+v", cat)
	}
	if len(cat.Zones) != 1 || cat.Zones[0].Secret != "sidB" || cat.Zones[0].URLs[0] != "nats://b:4222" {
		t.Errorf("catalog zones: %+v", cat.Zones)
	}
	if len(cat.Users) != 2 || cat.Users[1].Type != catalog.UserTypeAdmin {
		t.Errorf("catalog users: %+v", cat.Users)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [oops"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected read error")
	}
}

func writeConfig(t *testing.T, dir, yml string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(yml), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFederationInheritsNATS(t *testing.T) {
	base := validConfig(t)
	path := writeConfig(t, t.TempDir(), `
zone:
  name: zoneA
  server_id: sidA
nats:
  urls: ["nats://shared:4222"]
federation:
  - name: zoneB
    server_id: sidB
  - name: zoneC
    server_id: sidC
    nats_urls: ["nats://c:4222"]
tls:
  cert_file: `+base.TLS.CertFile+`
  key_file: `+base.TLS.KeyFile+`
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := cfg.Federation[0].NATSURLs; len(got) != 1 || got[0] != "nats://shared:4222" {
		t.Errorf("zoneB urls = %v", got)
	}
	if got := cfg.Federation[1].NATSURLs; len(got) != 1 || got[0] != "nats://c:4222" {
		t.Errorf("zoneC urls = %v", got)
	}

	// Общий список не разделяется между зонами
	cfg.Federation[0].NATSURLs[0] = "nats://changed:4222"
	if cfg.NATS.URLs[0] != "nats://shared:4222" {
		t.Errorf("nats.urls changed through federation: %v", cfg.NATS.URLs)
	}
}

func TestLoadFederationErrorNamesZone(t *testing.T) {
	base := validConfig(t)
	path := writeConfig(t, t.TempDir(), `
zone:
  name: zoneA
  server_id: sidA
nats:
  urls: []
federation:
  - name: zoneB
    server_id: sidB
tls:
  cert_file: `+base.TLS.CertFile+`
  key_file: `+base.TLS.KeyFile+`
`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for zone without nats urls")
	}
	for _, want := range []string{`zone "zoneA"`, `federation zone "zoneB"`, "nats_urls"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not contain %q", err, want)
		}
	}
}

func TestLoadRelativeTLSPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"server.crt", "server.key"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}
	path := writeConfig(t, dir, `
zone:
  name: zoneA
  server_id: sidA
tls:
  cert_file: server.crt
  key_file: server.key
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.TLS.CertFile != filepath.Join(dir, "server.crt") || cfg.TLS.KeyFile != filepath.Join(dir, "server.key") {
		t.Errorf("tls paths not resolved against config dir: %+v", cfg.TLS)
	}
}

func TestLoadUnknownField(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
zone:
  name: zoneA
  server_secret: sidA
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "server_secret") {
		t.Errorf("expected unknown field error, got %v", err)
	}
}

func TestClientConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "environment.yaml")

	cfg, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load missing: %v", err)
	}
	if cfg.Scheme != "native" || cfg.AuthFile == "" {
		t.Errorf("defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error without user and zone")
	}

	cfg.User = "alice"
	cfg.Zone = "zoneA"
	cfg.AuthFile = filepath.Join(dir, "auth")
	if err := SaveClient(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := LoadClient(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
	if loaded.User != "alice" || loaded.Zone != "zoneA" || loaded.AuthFile != cfg.AuthFile {
		t.Errorf("loaded %+v", loaded)
	}
	if loaded.Addr() != "localhost:1247" {
		t.Errorf("addr = %q", loaded.Addr())
	}
}
