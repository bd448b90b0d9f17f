package native

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// Checker проверяет digest по паролям локального каталога.
// Используется агентом для своей зоны и Responder'ом для запросов других зон.
type Checker struct {
	localZone string
	users     catalog.UserStore
	secrets   ZoneSecrets
}

// NewChecker создаёт проверку для зоны localZone.
func NewChecker(localZone string, users catalog.UserStore, secrets ZoneSecrets) *Checker {
	return &Checker{
		localZone: localZone,
		users:     users,
		secrets:   secrets,
	}
}

// CheckAuth сравнивает digest с вычисленным по паролю пользователя.
// ServerResponse подтверждает запросившей зоне, что ответ дан сервером,
// знающим server_id этой зоны.
func (c *Checker) CheckAuth(_ context.Context, in catalog.AuthCheckInput) (*catalog.AuthCheckOutput, error) {
	rec, err := c.users.LookupUser(in.User)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrAuthRejected, err)
	}

	want := protocol.ComputeDigest(in.Challenge[:], []byte(rec.Password))
	if !protocol.CompareDigest(want, in.Response) {
		slog.Debug("checker: digest mismatch", "user", in.User)
		return nil, fmt.Errorf("%w: digest mismatch for %s", protocol.ErrAuthRejected, in.User)
	}

	out := &catalog.AuthCheckOutput{PrivLevel: c.level(rec)}

	switch {
	case in.Client.Name == "" || in.Client.SamePrincipal(in.User):
		out.ClientPrivLevel = out.PrivLevel
	default:
		client, err := c.users.LookupUser(in.Client)
		if err != nil {
			return nil, fmt.Errorf("%w: client: %w", protocol.ErrAuthRejected, err)
		}
		out.ClientPrivLevel = c.level(client)
	}

	if sid, ok := c.secrets.ZoneSecret(c.localZone); ok {
		d := protocol.ComputeDigest(in.Challenge[:], []byte(sid))
		out.ServerResponse = d[:]
	}

	return out, nil
}

func (c *Checker) level(rec catalog.UserRecord) protocol.PrivLevel {
	local := rec.Zone == c.localZone
	switch {
	case rec.Privileged() && local:
		return protocol.LocalPrivUserAuth
	case rec.Privileged():
		return protocol.RemotePrivUserAuth
	case local:
		return protocol.LocalUserAuth
	default:
		return protocol.RemoteUserAuth
	}
}
