package testzone_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
	"github.com/udisondev/zonauth/pkg/testzone"
)

func TestEnvironment_StartWithoutNATS(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := testzone.Start(ctx, testzone.WithoutNATS())
	require.NoError(t, err, "Start должен успешно завершиться")
	require.Empty(t, env.NATSUrl)
	require.NotEmpty(t, env.CACert, "CACert должен быть заполнен")

	zone, err := env.StartZone(ctx, testzone.ZoneSpec{
		Name:     "tempZone",
		ServerID: "sid",
		Users:    []config.UserConfig{{Name: "alice", Password: "pw"}},
	})
	require.NoError(t, err)
	require.NotEmpty(t, zone.Addr)

	require.NoError(t, env.Close(ctx), "Close должен успешно завершиться")
}

func TestEnvironment_InvalidZone(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := testzone.Start(ctx, testzone.WithoutNATS())
	require.NoError(t, err)
	defer env.Close(ctx)

	_, err = env.StartZone(ctx, testzone.ZoneSpec{Name: "bad.zone", ServerID: "sid"})
	require.Error(t, err)
}

func TestEnvironment_Federation(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// 1. Запускаем окружение с NATS
	env, err := testzone.Start(ctx)
	require.NoError(t, err)
	defer env.Close(ctx)
	require.NotEmpty(t, env.NATSUrl, "NATSUrl должен быть заполнен")

	// 2. Две зоны, доверяющие друг другу
	zoneA, err := env.StartZone(ctx, testzone.ZoneSpec{
		Name:     "zoneA",
		ServerID: "sidA",
		Users:    []config.UserConfig{{Name: "alice", Password: "alicepw"}},
		Peers:    []testzone.Peer{{Name: "zoneB", ServerID: "sidB"}},
	})
	require.NoError(t, err)

	_, err = env.StartZone(ctx, testzone.ZoneSpec{
		Name:     "zoneB",
		ServerID: "sidB",
		Users:    []config.UserConfig{{Name: "bob", Password: "bobpw"}},
		Peers:    []testzone.Peer{{Name: "zoneA", ServerID: "sidA"}},
	})
	require.NoError(t, err)

	// 3. bob из zoneB входит в zoneA
	bob := identity.User{Name: "bob", Zone: "zoneB"}
	conn, sess, err := zoneA.Login(ctx, bob, identity.User{}, "bobpw")
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, sess.LoggedIn())

	// 4. Неверный пароль удалённого пользователя
	_, _, err = zoneA.Login(ctx, bob, identity.User{}, "wrong")
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
}
