package agent_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/zonauth/pkg/agent"
	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/client"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/credential"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/metrics"
	"github.com/udisondev/zonauth/pkg/native"
	"github.com/udisondev/zonauth/pkg/protocol"
	"github.com/udisondev/zonauth/pkg/testzone"
)

var alice = identity.User{Name: "alice", Zone: "tempZone"}

func startZone(t *testing.T, opts ...testzone.Option) *testzone.Zone {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	env, err := testzone.Start(ctx, append([]testzone.Option{testzone.WithoutNATS()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, env.Close(context.Background()))
	})

	zone, err := env.StartZone(ctx, testzone.ZoneSpec{
		Name:     "tempZone",
		ServerID: "sid-temp",
		Users: []config.UserConfig{
			{Name: "alice", Password: "secret123"},
			{Name: "bob", Password: "bobpw"},
			{Name: "rods", Password: "rodspw", Type: "admin"},
		},
	})
	require.NoError(t, err)
	return zone
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestServe_Login(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, sess, err := zone.Login(ctx, alice, identity.User{}, "secret123")
	require.NoError(t, err)
	defer conn.Close()

	require.True(t, sess.LoggedIn())
	require.Len(t, sess.Signature(), 32)
}

func TestServe_ProxyForClient(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rods := identity.User{Name: "rods", Zone: "tempZone"}

	// Привилегированный proxy может действовать от имени другого пользователя
	conn, sess, err := zone.Login(ctx, rods, alice, "rodspw")
	require.NoError(t, err)
	defer conn.Close()
	require.True(t, sess.LoggedIn())

	// Обычный пользователь не может
	_, _, err = zone.Login(ctx, alice, rods, "secret123")
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
}

func TestServe_WrongPasswordIsGenericRejection(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := zone.Login(ctx, alice, identity.User{}, "wrong")
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.NotContains(t, err.Error(), "digest")
	require.NotContains(t, err.Error(), "alice")
}

func TestServe_UnknownUserIsGenericRejection(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := zone.Login(ctx, identity.User{Name: "mallory", Zone: "tempZone"}, identity.User{}, "x")
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.NotContains(t, err.Error(), "mallory")
}

func TestServe_ResponseMustMatchHello(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Соединение открыто для bob, а handshake проходит с паролем alice
	conn, err := client.Dial(ctx, zone.Addr, &protocol.Hello{
		ProxyUser: "bob",
		ProxyZone: "tempZone",
		Scheme:    native.Name,
	}, client.WithInsecureSkipVerify())
	require.NoError(t, err)
	defer conn.Close()

	sess := auth.NewClientSession(conn, alice, identity.User{})
	_, err = auth.Authenticate(ctx, native.New(native.WithSecrets(credential.Fixed("secret123"))), sess)
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.False(t, sess.LoggedIn())
}

func TestServe_UnknownScheme(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := client.Dial(ctx, zone.Addr, &protocol.Hello{
		ProxyUser: "alice",
		ProxyZone: "tempZone",
		Scheme:    "krb",
	}, client.WithInsecureSkipVerify())
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.Contains(t, err.Error(), "krb")
}

func TestServe_UnknownOperation(t *testing.T) {
	zone := startZone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := client.Dial(ctx, zone.Addr, &protocol.Hello{
		ProxyUser: "alice",
		ProxyZone: "tempZone",
		Scheme:    "native",
	}, client.WithInsecureSkipVerify())
	require.NoError(t, err)
	defer conn.Close()

	// Агент не выполняет клиентские операции
	_, err = conn.Request(ctx, protocol.NewMessage(protocol.OpClientStart))
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.Contains(t, err.Error(), protocol.OpClientStart)
}

func TestServe_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	zone := startZone(t, testzone.WithAgentOptions(agent.WithMetrics(metrics.New(reg))))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _, err := zone.Login(ctx, alice, identity.User{}, "wrong")
	require.ErrorIs(t, err, protocol.ErrAuthRejected)
	require.Equal(t, 1.0, counterValue(t, reg, "zonauth_handshakes_total", "result", metrics.ResultRejected))

	conn, _, err := zone.Login(ctx, alice, identity.User{}, "secret123")
	require.NoError(t, err)
	defer conn.Close()

	// Успех фиксируется после отправки ответа клиенту
	require.Eventually(t, func() bool {
		return counterValue(t, reg, "zonauth_handshakes_total", "result", metrics.ResultOK) == 1
	}, 2*time.Second, 10*time.Millisecond)
}
