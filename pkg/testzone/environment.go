package testzone

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/udisondev/zonauth/pkg/agent"
	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/client"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/credential"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/native"
)

// Environment тестовое окружение: NATS и набор зон.
type Environment struct {
	// NATSUrl URL для подключения к NATS. Пустой без NATS.
	NATSUrl string
	// CACert CA сертификат для TLS клиентов.
	CACert []byte

	opts  *options
	nats  *federationBroker
	certs *Certs

	mu    sync.Mutex
	zones []*Zone
}

// Option опция конфигурации окружения.
type Option func(*options)

type options struct {
	withoutNATS     bool
	maxConnections  int
	rateLimitPerSec float64
	rateLimitBurst  int
	authTimeout     time.Duration
	challengeTTL    time.Duration
	agentOpts       []agent.Option
}

func defaultOptions() *options {
	return &options{
		maxConnections:  100,
		rateLimitPerSec: 1000,
		rateLimitBurst:  100,
		authTimeout:     10 * time.Second,
		challengeTTL:    60 * time.Second,
	}
}

// WithoutNATS запускает окружение без брокера. Зоны не смогут
// проверять пользователей друг друга.
func WithoutNATS() Option {
	return func(o *options) { o.withoutNATS = true }
}

// WithMaxConnections устанавливает максимальное количество соединений зоны.
func WithMaxConnections(n int) Option {
	return func(o *options) { o.maxConnections = n }
}

// WithRateLimit устанавливает лимиты для rate limiter.
func WithRateLimit(perSec float64, burst int) Option {
	return func(o *options) {
		o.rateLimitPerSec = perSec
		o.rateLimitBurst = burst
	}
}

// WithAuthTimeout устанавливает таймаут аутентификации.
func WithAuthTimeout(d time.Duration) Option {
	return func(o *options) { o.authTimeout = d }
}

// WithChallengeTTL устанавливает TTL для challenge.
func WithChallengeTTL(d time.Duration) Option {
	return func(o *options) { o.challengeTTL = d }
}

// WithAgentOptions передаёт опции каждому серверу зоны.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(o *options) { o.agentOpts = append(o.agentOpts, opts...) }
}

// Start запускает окружение: NATS контейнер и TLS сертификаты.
// Зоны добавляются через StartZone.
func Start(ctx context.Context, opts ...Option) (*Environment, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	env := &Environment{opts: o}

	// 1. Запускаем NATS
	if !o.withoutNATS {
		nats, err := startFederationBroker(ctx)
		if err != nil {
			return nil, fmt.Errorf("start NATS: %w", err)
		}
		env.nats = nats
		env.NATSUrl = nats.url
	}

	// 2. Генерируем TLS сертификаты
	certs, err := GenerateCerts()
	if err != nil {
		_ = env.nats.Terminate(ctx)
		return nil, fmt.Errorf("generate certs: %w", err)
	}
	env.certs = certs
	env.CACert = certs.CACert

	return env, nil
}

// Peer доверенная удалённая зона.
type Peer struct {
	Name     string
	ServerID string
}

// ZoneSpec описывает запускаемую зону.
type ZoneSpec struct {
	Name     string
	ServerID string
	Users    []config.UserConfig
	Peers    []Peer
}

// Zone запущенный сервер зоны.
type Zone struct {
	Name string
	// Addr адрес сервера (host:port).
	Addr string

	caFile    string
	cancel    context.CancelFunc
	serverErr chan error
}

// StartZone запускает сервер зоны и ждёт его готовности.
func (e *Environment) StartZone(ctx context.Context, spec ZoneSpec) (*Zone, error) {
	// 1. Listener на случайном порту
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("create listener: %w", err)
	}
	tcpAddr := lis.Addr().(*net.TCPAddr)

	// 2. Конфигурация зоны
	ready := make(chan struct{})
	cfg := config.Default()
	cfg.Server = config.ServerConfig{Host: tcpAddr.IP.String(), Port: tcpAddr.Port}
	cfg.Zone = config.ZoneConfig{Name: spec.Name, ServerID: spec.ServerID}
	cfg.Users = spec.Users
	cfg.TLS = config.TLSConfig{CertFile: e.certs.CertFile, KeyFile: e.certs.KeyFile}
	cfg.Limits.MaxConnections = e.opts.maxConnections
	cfg.Limits.RateLimitPerSec = e.opts.rateLimitPerSec
	cfg.Limits.RateLimitBurst = e.opts.rateLimitBurst
	cfg.Limits.AuthTimeout = e.opts.authTimeout
	cfg.Limits.ChallengeTTL = e.opts.challengeTTL
	cfg.Ready = ready
	if e.NATSUrl != "" {
		cfg.NATS.URLs = []string{e.NATSUrl}
		cfg.NATS.MaxReconnects = 5
		cfg.NATS.ReconnectWait = time.Second
	}
	for _, p := range spec.Peers {
		cfg.Federation = append(cfg.Federation, config.RemoteZoneConfig{
			Name:     p.Name,
			ServerID: p.ServerID,
			NATSURLs: cfg.NATS.URLs,
		})
	}
	if err := cfg.Validate(); err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("zone %s config: %w", spec.Name, err)
	}

	// 3. Запускаем сервер в горутине
	serverCtx, cancel := context.WithCancel(context.Background())
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- agent.Serve(serverCtx, cfg, lis, e.opts.agentOpts...)
	}()

	// 4. Ждём готовности
	select {
	case <-ready:
	case err := <-serverErr:
		cancel()
		return nil, fmt.Errorf("zone %s failed to start: %w", spec.Name, err)
	case <-ctx.Done():
		cancel()
		return nil, ctx.Err()
	case <-time.After(30 * time.Second):
		cancel()
		return nil, fmt.Errorf("zone %s start timeout", spec.Name)
	}

	// 5. Ждём подписки зоны на проверки из других зон
	if e.nats != nil {
		if err := e.nats.waitZoneServed(ctx, spec.Name); err != nil {
			cancel()
			<-serverErr
			return nil, err
		}
	}

	z := &Zone{
		Name:      spec.Name,
		Addr:      lis.Addr().String(),
		caFile:    e.certs.CertFile,
		cancel:    cancel,
		serverErr: serverErr,
	}

	e.mu.Lock()
	e.zones = append(e.zones, z)
	e.mu.Unlock()

	return z, nil
}

// Login подключается к зоне и проходит native handshake с паролем proxy.
// Пустой client означает, что клиент совпадает с proxy.
func (z *Zone) Login(ctx context.Context, proxy, clientUser identity.User, password string) (*client.Conn, *auth.Session, error) {
	scheme := native.New(native.WithSecrets(credential.Fixed(password)))
	return z.LoginWith(ctx, scheme, proxy, clientUser)
}

// LoginWith подключается к зоне и проходит handshake переданной схемы.
func (z *Zone) LoginWith(ctx context.Context, scheme auth.Scheme, proxy, clientUser identity.User) (*client.Conn, *auth.Session, error) {
	return client.Login(ctx, z.Addr, scheme, proxy, clientUser,
		client.WithCACertFile(z.caFile),
		client.WithServerName("localhost"),
		client.WithDialTimeout(10*time.Second),
	)
}

// Stop останавливает сервер зоны.
func (z *Zone) Stop() error {
	z.cancel()
	select {
	case err := <-z.serverErr:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("zone %s stop timeout", z.Name)
	}
}

// Close останавливает зоны и освобождает ресурсы окружения.
func (e *Environment) Close(ctx context.Context) error {
	var errs []error

	e.mu.Lock()
	zones := e.zones
	e.zones = nil
	e.mu.Unlock()

	for _, z := range zones {
		if err := z.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop zone %s: %w", z.Name, err))
		}
	}

	if e.certs != nil {
		if err := e.certs.Cleanup(); err != nil {
			errs = append(errs, fmt.Errorf("cleanup certs: %w", err))
		}
	}

	if err := e.nats.Terminate(ctx); err != nil {
		errs = append(errs, fmt.Errorf("terminate NATS: %w", err))
	}

	return errors.Join(errs...)
}
