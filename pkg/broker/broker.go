// Package broker реализует федеративную шину между зонами поверх NATS.
package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix префикс subject'ов проверки аутентификации.
const SubjectPrefix = "zonauth.authcheck."

// QueueGroup группа подписчиков: запрос обрабатывает один сервер зоны.
const QueueGroup = "zonauth"

// ErrInvalidZone имя зоны недопустимо для subject.
var ErrInvalidZone = errors.New("invalid zone name for subject")

// Broker управляет соединением с NATS.
type Broker struct {
	conn *nats.Conn
}

// Config конфигурация NATS.
type Config struct {
	URLs          []string
	ReconnectWait time.Duration
	MaxReconnects int
	// Name имя соединения, видно в мониторинге NATS.
	Name string
}

// New создаёт долгоживущий брокер (сервер зоны).
func New(cfg Config) (*Broker, error) {
	opts := []nats.Option{
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("broker: NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("broker: NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			slog.Info("broker: NATS connection closed")
		}),
	}
	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	conn, err := connect(cfg.URLs, opts...)
	if err != nil {
		return nil, err
	}

	slog.Debug("broker: connection established", "server_id", conn.ConnectedServerId(), "url", conn.ConnectedUrl())

	return &Broker{conn: conn}, nil
}

// Dial открывает временное соединение без переподключений.
// Используется для одной делегированной проверки и закрывается сразу после неё.
func Dial(urls []string, timeout time.Duration) (*Broker, error) {
	conn, err := connect(urls,
		nats.NoReconnect(),
		nats.Timeout(timeout),
		nats.Name("zonauth-delegate"),
	)
	if err != nil {
		return nil, err
	}
	slog.Debug("broker: transient connection established", "url", conn.ConnectedUrl())
	return &Broker{conn: conn}, nil
}

func connect(urls []string, opts ...nats.Option) (*nats.Conn, error) {
	// NATS поддерживает URL через запятую
	url := nats.DefaultURL
	if len(urls) > 0 {
		url = strings.Join(urls, ",")
	}

	slog.Debug("broker: connecting", "urls", url)

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		slog.Error("broker: connect failed", "urls", url, "error", err)
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return conn, nil
}

// Conn возвращает соединение NATS.
func (b *Broker) Conn() *nats.Conn {
	return b.conn
}

// Close закрывает соединение, дожидаясь доставки.
func (b *Broker) Close() error {
	slog.Debug("broker: closing connection")
	if err := b.conn.Drain(); err != nil {
		slog.Error("broker: drain failed", "error", err)
		return err
	}
	return nil
}

// SubjectForZone возвращает subject проверки аутентификации зоны.
// Имя зоны проверяется, чтобы исключить wildcard символы (*, >, .).
func SubjectForZone(zone string) (string, error) {
	if !isValidZone(zone) {
		return "", fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return SubjectPrefix + zone, nil
}

func isValidZone(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := range len(s) {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-') {
			return false
		}
	}
	return true
}
