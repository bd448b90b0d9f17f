package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/udisondev/zonauth/pkg/identity"
)

// Zone удалённая зона федерации.
type Zone struct {
	Name string
	// Secret общий server_id с этой зоной.
	Secret string
	// URLs адреса NATS, через которые доступен сервер зоны.
	URLs []string
}

// Dialer открывает соединение с сервером удалённой зоны.
type Dialer func(ctx context.Context, zone Zone) (AuthChecker, io.Closer, error)

// StaticConfig содержимое статического каталога.
type StaticConfig struct {
	LocalZone   string
	LocalSecret string
	Zones       []Zone
	Users       []UserRecord
}

// Static каталог из конфигурации.
// Безопасен для конкурентного использования.
type Static struct {
	localZone   string
	localSecret string
	zones       map[string]Zone
	users       map[identity.User]UserRecord

	mu      sync.RWMutex
	checker AuthChecker
	dial    Dialer
}

// NewStatic создаёт каталог. Пользователи без зоны относятся к локальной зоне.
func NewStatic(cfg StaticConfig, dial Dialer) (*Static, error) {
	if cfg.LocalZone == "" {
		return nil, fmt.Errorf("%w: local zone name is empty", ErrZoneNotFound)
	}

	s := &Static{
		localZone:   cfg.LocalZone,
		localSecret: cfg.LocalSecret,
		zones:       make(map[string]Zone, len(cfg.Zones)),
		users:       make(map[identity.User]UserRecord, len(cfg.Users)),
		dial:        dial,
	}

	for _, z := range cfg.Zones {
		if z.Name == cfg.LocalZone {
			return nil, fmt.Errorf("zone %s: remote zone has the local zone name", z.Name)
		}
		s.zones[z.Name] = z
	}

	for _, u := range cfg.Users {
		if u.Zone == "" {
			u.Zone = cfg.LocalZone
		}
		if u.Type == "" {
			u.Type = UserTypeUser
		}
		s.users[identity.User{Name: u.Name, Zone: u.Zone}] = u
	}

	return s, nil
}

// SetLocalChecker устанавливает проверку для локальной зоны.
func (s *Static) SetLocalChecker(c AuthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checker = c
}

// LocalZone возвращает имя локальной зоны.
func (s *Static) LocalZone() string {
	return s.localZone
}

// ZoneSecret возвращает server_id зоны.
func (s *Static) ZoneSecret(zone string) (string, bool) {
	if zone == s.localZone {
		return s.localSecret, s.localSecret != ""
	}
	z, ok := s.zones[zone]
	if !ok || z.Secret == "" {
		return "", false
	}
	return z.Secret, true
}

// ResolveZoneHost возвращает хост каталога зоны.
// Для удалённой зоны открывается новое соединение, которое закрывает ServerHost.Close.
func (s *Static) ResolveZoneHost(ctx context.Context, zone string) (*ServerHost, error) {
	if zone == "" || zone == s.localZone {
		s.mu.RLock()
		checker := s.checker
		s.mu.RUnlock()
		if checker == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoChecker, s.localZone)
		}
		return NewServerHost(s.localZone, true, false, checker, nil), nil
	}

	z, ok := s.zones[zone]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrZoneNotFound, zone)
	}
	if s.dial == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoChecker, zone)
	}

	checker, closer, err := s.dial(ctx, z)
	if err != nil {
		return nil, err
	}

	slog.Debug("catalog: remote zone resolved", "zone", zone)
	return NewServerHost(zone, false, true, checker, closer), nil
}

// LookupUser находит пользователя по имени и зоне.
func (s *Static) LookupUser(u identity.User) (UserRecord, error) {
	if u.Zone == "" {
		u.Zone = s.localZone
	}
	rec, ok := s.users[u]
	if !ok {
		return UserRecord{}, fmt.Errorf("%w: %s", ErrUserNotFound, u)
	}
	return rec, nil
}
