package protocol

import (
	"fmt"
	"strconv"
)

// PrivLevel уровень привилегий identity.
// Числовые значения передаются по сети и не должны меняться.
type PrivLevel int

const (
	NoUserAuth         PrivLevel = 0
	RemoteUserAuth     PrivLevel = 1
	LocalUserAuth      PrivLevel = 2
	RemotePrivUserAuth PrivLevel = 3
	LocalPrivUserAuth  PrivLevel = 5
)

func (l PrivLevel) String() string {
	switch l {
	case NoUserAuth:
		return "none"
	case RemoteUserAuth:
		return "remote-user"
	case LocalUserAuth:
		return "local-user"
	case RemotePrivUserAuth:
		return "remote-privileged-user"
	case LocalPrivUserAuth:
		return "local-privileged-user"
	default:
		return "unknown(" + strconv.Itoa(int(l)) + ")"
	}
}

// Valid сообщает, что значение входит в перечисление.
func (l PrivLevel) Valid() bool {
	switch l {
	case NoUserAuth, RemoteUserAuth, LocalUserAuth, RemotePrivUserAuth, LocalPrivUserAuth:
		return true
	}
	return false
}

// ParsePrivLevel разбирает числовое представление уровня.
func ParsePrivLevel(s string) (PrivLevel, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return NoUserAuth, fmt.Errorf("%w: priv level %q", ErrInvalidInput, s)
	}
	l := PrivLevel(n)
	if !l.Valid() {
		return NoUserAuth, fmt.Errorf("%w: priv level %d", ErrInvalidInput, n)
	}
	return l, nil
}

// FormatPrivLevel возвращает числовое представление для передачи.
func FormatPrivLevel(l PrivLevel) string {
	return strconv.Itoa(int(l))
}
