package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// Requester отправляет сообщение peer'у и ждёт ответ.
// Таймауты и отмена — ответственность транспорта.
type Requester interface {
	Request(ctx context.Context, msg protocol.Message) (protocol.Message, error)
}

// Principal identity с вычисленным уровнем привилегий.
type Principal struct {
	identity.User
	Level protocol.PrivLevel
}

// Session состояние одного соединения (connection context).
// Принадлежит соединению и передаётся в операции по указателю.
type Session struct {
	id   uuid.UUID
	role Role
	peer Requester

	mu        sync.Mutex
	proxy     Principal
	client    Principal
	scheme    string
	challenge protocol.Challenge
	issuedAt  time.Time
	hasChal   bool
	loggedIn  bool
	committed bool
	signature string
}

// NewClientSession создаёт клиентскую сессию.
// Если client пустой, клиент совпадает с proxy.
func NewClientSession(peer Requester, proxy, client identity.User) *Session {
	if client.Name == "" {
		client = proxy
	}
	return &Session{
		id:     uuid.New(),
		role:   RoleClient,
		peer:   peer,
		proxy:  Principal{User: proxy},
		client: Principal{User: client},
	}
}

// NewAgentSession создаёт серверную сессию по данным стартового пакета.
func NewAgentSession(proxy, client identity.User) *Session {
	if client.Name == "" {
		client = proxy
	}
	return &Session{
		id:     uuid.New(),
		role:   RoleAgent,
		proxy:  Principal{User: proxy},
		client: Principal{User: client},
	}
}

// ID возвращает идентификатор сессии.
func (s *Session) ID() uuid.UUID { return s.id }

// Role возвращает роль стороны.
func (s *Session) Role() Role { return s.role }

// Peer возвращает транспорт к peer'у (только клиент).
func (s *Session) Peer() Requester { return s.peer }

// Proxy возвращает proxy identity.
func (s *Session) Proxy() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proxy
}

// Client возвращает client identity.
func (s *Session) Client() Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// SetClientZone заполняет зону клиента, если она пустая.
func (s *Session) SetClientZone(zone string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client.Zone == "" {
		s.client.Zone = zone
	}
}

// Scheme возвращает имя согласованной схемы.
func (s *Session) Scheme() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scheme
}

// SetScheme запоминает имя согласованной схемы.
func (s *Session) SetScheme(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheme = name
}

// StoreChallenge перезаписывает challenge сессии.
func (s *Session) StoreChallenge(c protocol.Challenge, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenge = c
	s.issuedAt = at
	s.hasChal = true
}

// TakeChallenge возвращает challenge и очищает слот: challenge одноразовый.
func (s *Session) TakeChallenge() (protocol.Challenge, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, at, ok := s.challenge, s.issuedAt, s.hasChal
	s.challenge = protocol.Challenge{}
	s.issuedAt = time.Time{}
	s.hasChal = false
	return c, at, ok
}

// Commit записывает уровни привилегий после успешной проверки.
// Вызывается только agent-response и только после всех проверок.
func (s *Session) Commit(proxyLevel, clientLevel protocol.PrivLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proxy.Level = proxyLevel
	s.client.Level = clientLevel
	s.committed = true
}

// Authenticated сообщает, что identity подтверждена агентом.
func (s *Session) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// SetLoggedIn отмечает клиентское соединение как залогиненное.
func (s *Session) SetLoggedIn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = true
}

// LoggedIn сообщает, завершён ли handshake на стороне клиента.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

// SetSignature сохраняет сигнатуру сессии (производную challenge).
func (s *Session) SetSignature(sig string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signature = sig
}

// Signature возвращает сигнатуру сессии.
func (s *Session) Signature() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.signature
}
