// Package auth реализует flow orchestrator, общий для всех схем
// аутентификации.
//
// Схема предоставляет таблицу операций для каждой роли, orchestrator
// вызывает операцию, имя которой указано в next_operation, пока схема не
// вернёт flow_complete. Сам orchestrator о конкретных схемах ничего не знает.
package auth

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/udisondev/zonauth/pkg/protocol"
)

// Role сторона соединения.
type Role int

const (
	RoleClient Role = iota
	RoleAgent
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleAgent:
		return "agent"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Operation один шаг handshake. Возвращает новое сообщение,
// входящее не изменяется.
type Operation func(ctx context.Context, sess *Session, req protocol.Message) (protocol.Message, error)

// OperationTable таблица операций роли: имя -> обработчик.
type OperationTable map[string]Operation

// Scheme схема аутентификации.
type Scheme interface {
	// Name возвращает имя схемы, например "native".
	Name() string

	// Operations возвращает таблицу операций для роли.
	Operations(role Role) OperationTable
}

// Registry реестр схем по имени (аналог загрузки плагинов).
// Безопасен для конкурентного использования.
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]Scheme
}

// NewRegistry создаёт реестр с указанными схемами.
func NewRegistry(schemes ...Scheme) *Registry {
	r := &Registry{schemes: make(map[string]Scheme, len(schemes))}
	for _, s := range schemes {
		r.schemes[s.Name()] = s
	}
	return r
}

// Register добавляет или заменяет схему.
func (r *Registry) Register(s Scheme) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[s.Name()] = s
}

// Lookup возвращает схему по имени.
func (r *Registry) Lookup(name string) (Scheme, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[name]
	if !ok {
		return nil, fmt.Errorf("%w: scheme %q", protocol.ErrUnsupportedOperation, name)
	}
	return s, nil
}

// Names возвращает отсортированные имена схем.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemes))
	for name := range r.schemes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
