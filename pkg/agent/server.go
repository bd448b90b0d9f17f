// Package agent реализует сервер зоны: принимает TLS соединения клиентов и
// проводит агентскую сторону handshake.
//
// Протокол соединения:
//
//	client -> Hello (proxy/client identity, схема)
//	server -> Reply (OK или отказ)
//	client -> Message (next_operation = agent-...)
//	server -> Reply (ответное сообщение)
//	...
//
// Каждый запрос — одна операция схемы. Любая ошибка завершает соединение
// общим отказом, детали остаются в логе сервера.
package agent

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/broker"
	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/metrics"
	"github.com/udisondev/zonauth/pkg/native"
)

type options struct {
	metrics *metrics.Metrics
	dialer  catalog.Dialer
	schemes []auth.Scheme
}

// Option настраивает сервер.
type Option func(*options)

// WithMetrics включает метрики.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithDialer подменяет подключение к удалённым зонам.
// По умолчанию используется NATS (catalog.BrokerDialer).
func WithDialer(d catalog.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithScheme регистрирует дополнительную схему аутентификации.
func WithScheme(s auth.Scheme) Option {
	return func(o *options) {
		o.schemes = append(o.schemes, s)
	}
}

// Run создаёт TCP listener и запускает сервер с TLS.
// Аналог http.ListenAndServeTLS.
func Run(ctx context.Context, cfg *config.Config, opts ...Option) error {
	lis, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	return Serve(ctx, cfg, lis, opts...)
}

// Serve запускает сервер на переданном TCP listener.
func Serve(ctx context.Context, cfg *config.Config, lis net.Listener, opts ...Option) error {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.dialer == nil {
		o.dialer = catalog.BrokerDialer(cfg.Limits.DelegateTimeout)
	}

	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return fmt.Errorf("build TLS config: %w", err)
	}

	// 1. Каталог зоны и локальная проверка
	cat, err := catalog.NewStatic(cfg.Catalog(), o.metrics.WrapDialer(o.dialer))
	if err != nil {
		return fmt.Errorf("create catalog: %w", err)
	}
	checker := native.NewChecker(cfg.Zone.Name, cat, cat)
	cat.SetLocalChecker(checker)

	// 2. Схемы
	schemes := auth.NewRegistry(native.New(
		native.WithCatalog(cat),
		native.WithChallengeTTL(cfg.Limits.ChallengeTTL),
	))
	for _, s := range o.schemes {
		schemes.Register(s)
	}

	// 3. Проверки для других зон через NATS
	if len(cfg.NATS.URLs) > 0 {
		brk, err := broker.New(broker.Config{
			URLs:          cfg.NATS.URLs,
			ReconnectWait: cfg.NATS.ReconnectWait,
			MaxReconnects: cfg.NATS.MaxReconnects,
			Name:          "zonauth-" + cfg.Zone.Name,
		})
		if err != nil {
			return fmt.Errorf("create broker: %w", err)
		}
		defer func() {
			if err := brk.Close(); err != nil {
				slog.Error("close broker", "error", err)
			}
		}()

		responder, err := broker.NewResponder(brk, cfg.Zone.Name, cfg.Limits.DelegateTimeout, catalog.NewHandler(checker))
		if err != nil {
			return fmt.Errorf("create responder: %w", err)
		}
		defer func() {
			if err := responder.Unsubscribe(); err != nil {
				slog.Error("unsubscribe responder", "error", err)
			}
		}()
	}

	tlsLis := tls.NewListener(lis, tlsConfig)
	defer func() {
		if err := tlsLis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("close TLS listener", "error", err)
		}
	}()

	// Graceful shutdown listener
	go func() {
		<-ctx.Done()
		if err := tlsLis.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("close listener", "error", err)
		}
	}()

	// Семафор ограничивает число одновременных соединений
	sem := make(chan struct{}, cfg.Limits.MaxConnections)

	slog.Info("agent started", "addr", lis.Addr().String(), "zone", cfg.Zone.Name, "schemes", schemes.Names())
	slog.Info("agent: configuration",
		"max_connections", cfg.Limits.MaxConnections,
		"max_message_size", cfg.Limits.MaxMessageSize,
		"rate_limit_per_sec", cfg.Limits.RateLimitPerSec,
		"rate_limit_burst", cfg.Limits.RateLimitBurst,
		"auth_timeout", cfg.Limits.AuthTimeout,
		"challenge_ttl", cfg.Limits.ChallengeTTL,
		"federation", len(cfg.Federation),
	)

	// Сигнализируем что сервер готов
	if cfg.Ready != nil {
		close(cfg.Ready)
	}

	h := &handler{
		schemes: schemes,
		metrics: o.metrics,
		limits:  cfg.Limits,
	}

	// Accept loop
	for {
		conn, err := tlsLis.Accept()
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("agent shutting down")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			slog.Error("accept connection", "error", err)
			continue
		}

		select {
		case sem <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-sem }()
				h.handleConn(ctx, c)
			}(conn)
		default:
			slog.Warn("agent: connection limit reached", "remote", conn.RemoteAddr())
			o.metrics.ConnRejected("limit")
			if err := conn.Close(); err != nil {
				slog.Error("agent: close connection on limit failed", "error", err)
			}
		}
	}
}
