// Package identity описывает identity пользователя в пределах зон.
package identity

import (
	"fmt"
	"strings"

	"github.com/udisondev/zonauth/pkg/protocol"
)

// Separator разделяет имя пользователя и зону: "alice#zoneA".
const Separator = "#"

// User пользователь и его домашняя зона.
type User struct {
	Name string
	Zone string
}

// Parse разбирает "name" или "name#zone".
func Parse(s string) (User, error) {
	name, zone, _ := strings.Cut(s, Separator)
	if name == "" {
		return User{}, fmt.Errorf("%w: empty user name in %q", protocol.ErrInvalidInput, s)
	}
	if strings.Contains(zone, Separator) {
		return User{}, fmt.Errorf("%w: malformed user %q", protocol.ErrInvalidInput, s)
	}
	return User{Name: name, Zone: zone}, nil
}

// String возвращает "name#zone" (или "name" без зоны).
func (u User) String() string {
	if u.Zone == "" {
		return u.Name
	}
	return u.Name + Separator + u.Zone
}

// IsAnonymous сообщает, что это well-known anonymous пользователь.
func (u User) IsAnonymous() bool {
	return u.Name == protocol.AnonymousUser
}

// SamePrincipal сравнивает пользователей по имени.
// Зона не учитывается: так proxy и client сравниваются в протоколе.
func (u User) SamePrincipal(o User) bool {
	return u.Name == o.Name
}

// Validate проверяет, что имя и зона заданы и не слишком длинные.
func (u User) Validate() error {
	if u.Name == "" {
		return fmt.Errorf("%w: user name is required", protocol.ErrInvalidInput)
	}
	if u.Zone == "" {
		return fmt.Errorf("%w: zone name is required", protocol.ErrInvalidInput)
	}
	if len(u.Name) > protocol.MaxNameLen || len(u.Zone) > protocol.MaxNameLen {
		return fmt.Errorf("%w: name too long", protocol.ErrInvalidInput)
	}
	return nil
}
