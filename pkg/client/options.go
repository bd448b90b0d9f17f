package client

import (
	"crypto/tls"
	"crypto/x509"
	"net"
	"time"
)

// Константы по умолчанию.
const (
	DefaultDialTimeout    = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxMessageSize = 65536
)

type connectConfig struct {
	tlsConfig *tls.Config

	// TLS builder fields
	rootCAs            *x509.CertPool
	caCertPaths        []string
	serverName         string
	insecureSkipVerify bool

	localAddr      *net.TCPAddr
	dialTimeout    time.Duration
	requestTimeout time.Duration
	maxMessageSize int
}

// ConnectOption конфигурирует соединение.
type ConnectOption func(*connectConfig)

// WithTLSConfig устанавливает TLS конфигурацию.
func WithTLSConfig(cfg *tls.Config) ConnectOption {
	return func(c *connectConfig) {
		c.tlsConfig = cfg
	}
}

// WithDialTimeout устанавливает таймаут подключения.
func WithDialTimeout(d time.Duration) ConnectOption {
	return func(c *connectConfig) {
		c.dialTimeout = d
	}
}

// WithRequestTimeout ограничивает ожидание ответа, если в контексте нет дедлайна.
func WithRequestTimeout(d time.Duration) ConnectOption {
	return func(c *connectConfig) {
		c.requestTimeout = d
	}
}

// WithMaxMessageSize ограничивает размер ответа сервера.
func WithMaxMessageSize(n int) ConnectOption {
	return func(c *connectConfig) {
		c.maxMessageSize = n
	}
}

// WithRootCAs устанавливает пул CA сертификатов для проверки сервера.
func WithRootCAs(pool *x509.CertPool) ConnectOption {
	return func(c *connectConfig) {
		c.rootCAs = pool
	}
}

// WithCACertFile добавляет CA сертификат из PEM-файла.
// Можно вызывать несколько раз для добавления нескольких CA.
func WithCACertFile(path string) ConnectOption {
	return func(c *connectConfig) {
		c.caCertPaths = append(c.caCertPaths, path)
	}
}

// WithServerName устанавливает ServerName для SNI и проверки сертификата.
func WithServerName(name string) ConnectOption {
	return func(c *connectConfig) {
		c.serverName = name
	}
}

// WithInsecureSkipVerify отключает проверку сертификата сервера.
// Использовать только для разработки и тестирования.
func WithInsecureSkipVerify() ConnectOption {
	return func(c *connectConfig) {
		c.insecureSkipVerify = true
	}
}

// WithLocalAddr устанавливает локальный адрес для исходящих соединений.
func WithLocalAddr(addr *net.TCPAddr) ConnectOption {
	return func(c *connectConfig) {
		c.localAddr = addr
	}
}
