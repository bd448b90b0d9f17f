package native

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// agentStart native схеме нечего делать на старте.
func (s *Scheme) agentStart(context.Context, *auth.Session, protocol.Message) (protocol.Message, error) {
	return protocol.Message{}, nil
}

// agentVerify не используется native схемой.
func (s *Scheme) agentVerify(context.Context, *auth.Session, protocol.Message) (protocol.Message, error) {
	return protocol.Message{}, nil
}

// agentRequest выдаёт новый challenge и запоминает его в сессии.
// Предыдущий challenge сессии перезаписывается.
func (s *Scheme) agentRequest(_ context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	challenge, err := protocol.NewChallenge()
	if err != nil {
		return nil, err
	}

	sess.StoreChallenge(challenge, s.now())
	sess.SetScheme(Name)

	resp := req.Clone()
	delete(resp, protocol.KeyNextOperation)
	resp[protocol.KeyRequestResult] = challenge.String()
	return resp, nil
}

// agentResponse проверяет digest клиента и фиксирует уровни привилегий.
//
// Порядок:
//  1. Проверка полей, соответствие пользователя proxy сессии, декодирование digest
//  2. Извлечение challenge сессии (одноразовый, с ограниченным сроком)
//  3. Поиск каталога зоны пользователя и проверка digest
//  4. Для удалённого каталога: проверка ответа сервера зоны
//  5. Вычисление уровней привилегий и проверка прав proxy
//  6. Фиксация identity в сессии
//
// Любая ошибка оставляет identity сессии незафиксированной.
func (s *Scheme) agentResponse(ctx context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: no catalog configured", protocol.ErrInvalidInput)
	}

	// 1. Поля и digest
	if err := req.Require(protocol.KeyDigest, protocol.KeyZoneName, protocol.KeyUserName); err != nil {
		return nil, err
	}
	zone := req[protocol.KeyZoneName]
	user := identity.User{Name: req[protocol.KeyUserName], Zone: zone}

	// Проверяется тот proxy, которого объявил hello: пустая зона proxy
	// означает локальную
	localZone := s.catalog.LocalZone()
	proxy := sess.Proxy().User
	proxyZone := proxy.Zone
	if proxyZone == "" {
		proxyZone = localZone
	}
	if user.Name != proxy.Name || user.Zone != proxyZone {
		return nil, fmt.Errorf("%w: response for %s on session of %s", protocol.ErrAuthRejected, user, proxy)
	}
	proxy.Zone = proxyZone

	response, err := protocol.DecodeDigest(req[protocol.KeyDigest])
	if err != nil {
		return nil, err
	}

	// 2. Challenge
	challenge, issuedAt, ok := sess.TakeChallenge()
	if !ok {
		return nil, fmt.Errorf("%w: no challenge issued for session", protocol.ErrInvalidInput)
	}
	if s.challengeTTL > 0 && s.now().Sub(issuedAt) > s.challengeTTL {
		return nil, protocol.ErrChallengeExpired
	}

	// 3. Каталог зоны пользователя
	host, err := s.catalog.ResolveZoneHost(ctx, zone)
	if err != nil {
		return nil, fmt.Errorf("resolve zone host: %w", err)
	}
	defer func() {
		if err := host.Close(); err != nil {
			slog.Debug("native: close zone host", "zone", host.Zone, "error", err)
		}
	}()

	out, err := host.Checker.CheckAuth(ctx, catalog.AuthCheckInput{
		Challenge: challenge,
		Response:  response,
		User:      user,
		Client:    sess.Client().User,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", protocol.ErrAuthRejected, err)
	}
	if out == nil {
		return nil, protocol.ErrAuthRejected
	}

	// 4. Ответ удалённого сервера
	if !host.Local {
		if err := verifyServerResponse(s.catalog, challenge, zone, out.ServerResponse); err != nil {
			slog.Info("native: cannot authenticate remote server", "zone", zone, "error", err)
			return nil, err
		}
	}

	// 5. Привилегии
	client := sess.Client().User
	if client.Zone == "" {
		client.Zone = localZone
	}

	proxyLevel, clientLevel := resolvePrivileges(host.RemoteCatalog, localZone, proxy, client, out.PrivLevel, out.ClientPrivLevel)
	if err := checkProxyPrivilege(proxy, client, proxyLevel); err != nil {
		return nil, err
	}

	// 6. Фиксация
	sess.SetClientZone(localZone)
	sess.Commit(proxyLevel, clientLevel)

	slog.Debug("native: identity committed",
		"session", sess.ID(),
		"user", user,
		"proxy", proxy.Name,
		"client", client.Name,
		"proxy_level", proxyLevel,
		"client_level", clientLevel,
	)

	return req.WithNext(protocol.FlowComplete), nil
}
