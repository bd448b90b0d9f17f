package native

import (
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// resolvePrivileges переводит уровни, полученные от каталога зоны пользователя,
// в уровни этой зоны.
//
// Локальный пользователь чужого каталога не является локальным здесь и наоборот.
// Если proxy и client один пользователь, уровень клиента равен уровню proxy.
func resolvePrivileges(remoteCatalog bool, localZone string, proxy, client identity.User, privLevel, clientLevel protocol.PrivLevel) (protocol.PrivLevel, protocol.PrivLevel) {
	same := proxy.SamePrincipal(client)

	if !remoteCatalog {
		if same {
			clientLevel = privLevel
		}
		return privLevel, clientLevel
	}

	// proxy: хост выбран по зоне proxy, уровень понижается до удалённого
	switch privLevel {
	case protocol.LocalPrivUserAuth:
		privLevel = protocol.RemotePrivUserAuth
	case protocol.LocalUserAuth:
		privLevel = protocol.RemoteUserAuth
	}

	switch {
	case same:
		clientLevel = privLevel
	case client.Zone == localZone:
		switch clientLevel {
		case protocol.RemotePrivUserAuth:
			clientLevel = protocol.LocalPrivUserAuth
		case protocol.RemoteUserAuth:
			clientLevel = protocol.LocalUserAuth
		}
	default:
		// Клиент из чужой зоны не получает привилегий администратора
		switch clientLevel {
		case protocol.LocalPrivUserAuth, protocol.LocalUserAuth:
			clientLevel = protocol.RemoteUserAuth
		}
	}

	return privLevel, clientLevel
}

// checkProxyPrivilege запрещает proxy работать от имени другого пользователя
// без достаточных привилегий: нужен локальный администратор или удалённый
// администратор той же зоны, что и клиент.
func checkProxyPrivilege(proxy, client identity.User, proxyLevel protocol.PrivLevel) error {
	if proxy.SamePrincipal(client) {
		return nil
	}
	if proxyLevel == protocol.LocalPrivUserAuth {
		return nil
	}
	if proxyLevel == protocol.RemotePrivUserAuth && proxy.Zone == client.Zone {
		return nil
	}
	return protocol.ErrInsufficientPrivilege
}
