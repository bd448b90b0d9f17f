// Package native реализует схему аутентификации challenge-response с общим
// секретом.
//
// Клиент получает challenge от агента, хеширует его вместе с паролем и
// отправляет digest. Агент передаёт проверку каталогу зоны пользователя:
// локальному или, для пользователя другой зоны, серверу этой зоны. Ответ
// удалённого сервера проверяется по общему server_id зоны.
package native

import (
	"context"
	"time"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// Name имя схемы.
const Name = "native"

// SecretSource выдаёт секрет пользователя для вычисления digest.
// Вызывающая сторона очищает возвращённый срез после использования.
type SecretSource interface {
	Secret(ctx context.Context, user identity.User) ([]byte, error)
}

// Scheme native схема. Клиентской стороне нужен SecretSource,
// агентской — Catalog.
type Scheme struct {
	secrets      SecretSource
	catalog      catalog.Catalog
	challengeTTL time.Duration
	now          func() time.Time
}

// Option настраивает Scheme.
type Option func(*Scheme)

// WithSecrets задаёт источник паролей для клиентской стороны.
func WithSecrets(src SecretSource) Option {
	return func(s *Scheme) {
		s.secrets = src
	}
}

// WithCatalog задаёт каталог для агентской стороны.
func WithCatalog(c catalog.Catalog) Option {
	return func(s *Scheme) {
		s.catalog = c
	}
}

// WithChallengeTTL задаёт время жизни challenge. 0 отключает проверку.
func WithChallengeTTL(ttl time.Duration) Option {
	return func(s *Scheme) {
		s.challengeTTL = ttl
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Scheme) {
		s.now = now
	}
}

// New создаёт native схему.
func New(opts ...Option) *Scheme {
	s := &Scheme{
		challengeTTL: time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name возвращает имя схемы.
func (s *Scheme) Name() string {
	return Name
}

// Operations возвращает таблицу операций роли.
func (s *Scheme) Operations(role auth.Role) auth.OperationTable {
	switch role {
	case auth.RoleClient:
		return auth.OperationTable{
			protocol.OpClientStart:      s.clientStart,
			protocol.OpClientRequest:    s.clientRequest,
			protocol.OpEstablishContext: s.establishContext,
			protocol.OpClientResponse:   s.clientResponse,
		}
	case auth.RoleAgent:
		return auth.OperationTable{
			protocol.OpAgentStart:    s.agentStart,
			protocol.OpAgentRequest:  s.agentRequest,
			protocol.OpAgentResponse: s.agentResponse,
			protocol.OpAgentVerify:   s.agentVerify,
		}
	default:
		return nil
	}
}
