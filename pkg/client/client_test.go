package client

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/native"
)

func TestBuildTLSConfig(t *testing.T) {
	cfg := &connectConfig{serverName: "zone.example.org", insecureSkipVerify: true}

	tlsConfig, err := cfg.buildTLSConfig()
	if err != nil {
		t.Fatalf("buildTLSConfig: %v", err)
	}
	if tlsConfig.ServerName != "zone.example.org" {
		t.Errorf("ServerName = %q", tlsConfig.ServerName)
	}
	if !tlsConfig.InsecureSkipVerify {
		t.Error("InsecureSkipVerify not set")
	}
	if tlsConfig.RootCAs != nil {
		t.Error("RootCAs must stay nil without CA files")
	}
}

func TestBuildTLSConfigInvalidCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg := &connectConfig{}
	WithCACertFile(path)(cfg)

	if _, err := cfg.buildTLSConfig(); err == nil {
		t.Fatal("expected error for invalid PEM")
	}
}

func TestLoginRequiresProxyZone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := Login(ctx, "127.0.0.1:1", native.New(), identity.User{Name: "alice"}, identity.User{})
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestDialRefused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Login(ctx, "127.0.0.1:1", native.New(), identity.User{Name: "alice", Zone: "tempZone"}, identity.User{},
		WithDialTimeout(time.Second),
		WithInsecureSkipVerify(),
	)
	if err == nil {
		t.Fatal("expected dial error")
	}
}
