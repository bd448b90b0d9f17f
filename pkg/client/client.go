// Package client подключается к серверу зоны и проходит клиентскую сторону
// handshake.
package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// buildTLSConfig создаёт TLS конфигурацию на основе опций.
func (cfg *connectConfig) buildTLSConfig() (*tls.Config, error) {
	// Если указан полный TLS config, используем его как есть
	if cfg.tlsConfig != nil {
		return cfg.tlsConfig, nil
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS13,
	}

	// Загрузка CA из файлов
	if len(cfg.caCertPaths) > 0 {
		pool := x509.NewCertPool()
		for _, path := range cfg.caCertPaths {
			caCert, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read CA cert %s: %w", path, err)
			}
			if !pool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("parse CA cert %s: invalid PEM", path)
			}
		}
		tlsConfig.RootCAs = pool
	} else if cfg.rootCAs != nil {
		tlsConfig.RootCAs = cfg.rootCAs
	}

	if cfg.serverName != "" {
		tlsConfig.ServerName = cfg.serverName
	}

	if cfg.insecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	return tlsConfig, nil
}

// Conn соединение с агентом. Реализует auth.Requester.
// Запросы выполняются последовательно.
type Conn struct {
	conn   *tls.Conn
	reader *bufio.Reader
	cfg    *connectConfig

	mu sync.Mutex
}

var _ auth.Requester = (*Conn)(nil)

// Dial подключается к серверу и отправляет Hello.
//
// Параметры:
//   - addr: адрес сервера (host:port)
//   - hello: identity proxy/клиента и имя схемы
//   - opts: опции подключения
func Dial(ctx context.Context, addr string, hello *protocol.Hello, opts ...ConnectOption) (*Conn, error) {
	// 1. Дефолтные значения
	cfg := &connectConfig{
		dialTimeout:    DefaultDialTimeout,
		requestTimeout: DefaultRequestTimeout,
		maxMessageSize: DefaultMaxMessageSize,
	}

	// 2. Применяем опции
	for _, opt := range opts {
		opt(cfg)
	}

	// 3. Настраиваем TLS
	tlsConfig, err := cfg.buildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("build TLS config: %w", err)
	}

	// 4. Подключаемся
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{
			Timeout:   cfg.dialTimeout,
			LocalAddr: cfg.localAddr,
		},
		Config: tlsConfig,
	}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	c := &Conn{
		conn:   nc.(*tls.Conn),
		reader: bufio.NewReader(nc),
		cfg:    cfg,
	}

	// 5. Hello
	if _, err := c.roundTrip(ctx, func() error { return hello.Encode(c.conn) }); err != nil {
		_ = c.conn.Close() // ошибка Close() не важна, возвращаем ошибку hello
		return nil, fmt.Errorf("hello: %w", err)
	}

	return c, nil
}

// Request отправляет сообщение агенту и возвращает его ответ.
// Отказ агента возвращается как protocol.ErrAuthRejected.
func (c *Conn) Request(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	return c.roundTrip(ctx, func() error { return protocol.WriteMessage(c.conn, msg) })
}

func (c *Conn) roundTrip(ctx context.Context, send func() error) (protocol.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.cfg.requestTimeout)
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	defer func() {
		_ = c.conn.SetDeadline(time.Time{})
	}()

	// Отмена контекста прерывает ожидание ответа
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := send(); err != nil {
		return nil, c.wrapErr(ctx, fmt.Errorf("send request: %w", err))
	}

	reply, err := protocol.DecodeReply(c.reader, c.cfg.maxMessageSize)
	if err != nil {
		return nil, c.wrapErr(ctx, fmt.Errorf("read reply: %w", err))
	}

	if reply.Status != protocol.StatusOK {
		if reply.ErrorMsg == "" || reply.ErrorMsg == protocol.ErrAuthRejected.Error() {
			return nil, protocol.ErrAuthRejected
		}
		return nil, fmt.Errorf("%w: %s", protocol.ErrAuthRejected, reply.ErrorMsg)
	}
	if reply.Message == nil {
		reply.Message = protocol.Message{}
	}
	return reply.Message, nil
}

func (c *Conn) wrapErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	if errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %w", protocol.ErrConnectionClosed, err)
	}
	return err
}

// Close закрывает соединение.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Login подключается к серверу и проходит handshake схемы.
// Пустой client означает, что клиент совпадает с proxy.
// При ошибке соединение закрывается.
func Login(ctx context.Context, addr string, scheme auth.Scheme, proxy, client identity.User, opts ...ConnectOption) (*Conn, *auth.Session, error) {
	if err := proxy.Validate(); err != nil {
		return nil, nil, err
	}

	conn, err := Dial(ctx, addr, &protocol.Hello{
		ProxyUser:  proxy.Name,
		ProxyZone:  proxy.Zone,
		ClientUser: client.Name,
		ClientZone: client.Zone,
		Scheme:     scheme.Name(),
	}, opts...)
	if err != nil {
		return nil, nil, err
	}

	sess := auth.NewClientSession(conn, proxy, client)
	if _, err := auth.Authenticate(ctx, scheme, sess); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("authenticate: %w", err)
	}

	return conn, sess, nil
}
