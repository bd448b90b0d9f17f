// Package catalog описывает внешние коллабораторы ядра аутентификации:
// каталог зон и пользователей, проверку digest и хост, обслуживающий зону.
//
// Static минимальная реализация из конфигурации, достаточная для запуска
// демона: таблица пользователей, секреты зон и маршруты до удалённых зон.
package catalog

import (
	"context"
	"errors"
	"io"

	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

var (
	// ErrUserNotFound пользователь отсутствует в каталоге.
	ErrUserNotFound = errors.New("user not found")

	// ErrZoneNotFound зона неизвестна каталогу.
	ErrZoneNotFound = errors.New("zone not found")

	// ErrNoChecker для зоны не настроена проверка аутентификации.
	ErrNoChecker = errors.New("no auth checker for zone")
)

// AuthCheckInput запрос проверки ответа на challenge.
type AuthCheckInput struct {
	Challenge protocol.Challenge
	Response  protocol.Digest
	// User проверяемый пользователь (proxy).
	User identity.User
	// Client пользователь, от имени которого работает proxy.
	Client identity.User
}

// AuthCheckOutput результат проверки.
type AuthCheckOutput struct {
	PrivLevel       protocol.PrivLevel
	ClientPrivLevel protocol.PrivLevel
	// ServerResponse digest challenge + секрет зоны проверяющего сервера.
	// nil означает, что поле не передано; пустой срез — передано пустым.
	ServerResponse []byte
}

// AuthChecker проверяет digest пользователя.
type AuthChecker interface {
	CheckAuth(ctx context.Context, in AuthCheckInput) (*AuthCheckOutput, error)
}

// AuthCheckerFunc адаптирует функцию к AuthChecker.
type AuthCheckerFunc func(ctx context.Context, in AuthCheckInput) (*AuthCheckOutput, error)

func (f AuthCheckerFunc) CheckAuth(ctx context.Context, in AuthCheckInput) (*AuthCheckOutput, error) {
	return f(ctx, in)
}

// ServerHost хост каталога, обслуживающий зону пользователя.
type ServerHost struct {
	Zone string
	// Local проверка выполняется в этом процессе.
	Local bool
	// RemoteCatalog каталог принадлежит другой зоне.
	RemoteCatalog bool
	Checker       AuthChecker

	closer io.Closer
}

// NewServerHost создаёт описание хоста. closer может быть nil.
func NewServerHost(zone string, local, remoteCatalog bool, checker AuthChecker, closer io.Closer) *ServerHost {
	return &ServerHost{
		Zone:          zone,
		Local:         local,
		RemoteCatalog: remoteCatalog,
		Checker:       checker,
		closer:        closer,
	}
}

// Close освобождает соединение с удалённым хостом.
// Соединение нужно на одну проверку и не переиспользуется.
func (h *ServerHost) Close() error {
	if h.closer == nil {
		return nil
	}
	c := h.closer
	h.closer = nil
	return c.Close()
}

// Catalog каталог зон.
type Catalog interface {
	// LocalZone возвращает имя зоны этого сервера.
	LocalZone() string

	// ZoneSecret возвращает server_id зоны. Пустое значение эквивалентно отсутствию.
	ZoneSecret(zone string) (string, bool)

	// ResolveZoneHost находит хост каталога для зоны без логина на нём.
	ResolveZoneHost(ctx context.Context, zone string) (*ServerHost, error)
}

// UserType тип учётной записи.
type UserType string

const (
	UserTypeAdmin UserType = "admin"
	UserTypeUser  UserType = "user"
)

// UserRecord запись пользователя каталога.
type UserRecord struct {
	Name     string
	Zone     string
	Password string
	Type     UserType
}

// Privileged сообщает, что пользователь администратор.
func (r UserRecord) Privileged() bool {
	return r.Type == UserTypeAdmin
}

// UserStore поиск пользователей.
type UserStore interface {
	LookupUser(u identity.User) (UserRecord, error)
}
