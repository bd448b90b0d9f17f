package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

type passwords struct {
	byUser map[string]string
	calls  int
}

func (p *passwords) Secret(_ context.Context, u identity.User) ([]byte, error) {
	p.calls++
	pw, ok := p.byUser[u.Name]
	if !ok {
		return nil, errors.New("no password")
	}
	return []byte(pw), nil
}

// loopback доставляет запросы клиента прямо в агентскую таблицу.
type loopback struct {
	table auth.OperationTable
	sess  *auth.Session
}

func (l *loopback) Request(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
	return auth.Dispatch(ctx, l.table, l.sess, msg)
}

var (
	alice = identity.User{Name: "alice", Zone: "zoneA"}
	bob   = identity.User{Name: "bob", Zone: "zoneA"}
	admin = identity.User{Name: "admin", Zone: "zoneA"}
	rods  = identity.User{Name: "rods", Zone: "zoneA"}
	anon  = identity.User{Name: protocol.AnonymousUser, Zone: "zoneA"}
)

func newZone(t *testing.T, cfg catalog.StaticConfig, dial catalog.Dialer) *catalog.Static {
	t.Helper()
	s, err := catalog.NewStatic(cfg, dial)
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	s.SetLocalChecker(NewChecker(cfg.LocalZone, s, s))
	return s
}

func zoneA(t *testing.T, remote []catalog.Zone, dial catalog.Dialer) *catalog.Static {
	return newZone(t, catalog.StaticConfig{
		LocalZone:   "zoneA",
		LocalSecret: "sidA",
		Zones:       remote,
		Users: []catalog.UserRecord{
			{Name: "alice", Password: "secret123"},
			{Name: "bob", Password: "bobpw"},
			{Name: "admin", Password: "adminpw"},
			{Name: "rods", Password: "rodspw", Type: catalog.UserTypeAdmin},
			{Name: protocol.AnonymousUser},
		},
	}, dial)
}

func defaultPasswords() *passwords {
	return &passwords{byUser: map[string]string{
		"alice": "secret123",
		"bob":   "bobpw",
		"admin": "adminpw",
		"rods":  "rodspw",
	}}
}

func handshake(t *testing.T, cat catalog.Catalog, secrets SecretSource, proxy, client identity.User) (protocol.Message, *auth.Session, *auth.Session, error) {
	t.Helper()

	agentSess := auth.NewAgentSession(proxy, client)
	peer := &loopback{
		table: New(WithCatalog(cat)).Operations(auth.RoleAgent),
		sess:  agentSess,
	}
	clientSess := auth.NewClientSession(peer, proxy, client)

	resp, err := auth.Authenticate(context.Background(), New(WithSecrets(secrets)), clientSess)
	return resp, clientSess, agentSess, err
}

func TestHandshakeSameZone(t *testing.T) {
	resp, clientSess, agentSess, err := handshake(t, zoneA(t, nil, nil), defaultPasswords(), alice, identity.User{})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}

	if !resp.IsComplete() {
		t.Errorf("next_operation = %q, want %q", resp.NextOperation(), protocol.FlowComplete)
	}
	if !clientSess.LoggedIn() {
		t.Error("client session should be logged in")
	}
	if len(clientSess.Signature()) != 32 {
		t.Errorf("signature = %q", clientSess.Signature())
	}
	if !agentSess.Authenticated() {
		t.Fatal("agent session should be authenticated")
	}
	if got := agentSess.Client().Level; got != protocol.LocalUserAuth {
		t.Errorf("client level = %v, want %v", got, protocol.LocalUserAuth)
	}
	if got := agentSess.Proxy().Level; got != protocol.LocalUserAuth {
		t.Errorf("proxy level = %v, want %v", got, protocol.LocalUserAuth)
	}
	if agentSess.Scheme() != Name {
		t.Errorf("scheme = %q", agentSess.Scheme())
	}
}

func TestHandshakeWrongPassword(t *testing.T) {
	secrets := &passwords{byUser: map[string]string{"alice": "wrong"}}

	_, clientSess, agentSess, err := handshake(t, zoneA(t, nil, nil), secrets, alice, identity.User{})
	if !errors.Is(err, protocol.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if clientSess.LoggedIn() {
		t.Error("client session must not be logged in")
	}
	if agentSess.Authenticated() {
		t.Error("agent session must not be authenticated")
	}
}

func TestHandshakeAnonymousNeverPrompts(t *testing.T) {
	secrets := defaultPasswords()

	resp, _, agentSess, err := handshake(t, zoneA(t, nil, nil), secrets, anon, identity.User{})
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if secrets.calls != 0 {
		t.Errorf("secret source called %d times", secrets.calls)
	}
	if !resp.IsComplete() || !agentSess.Authenticated() {
		t.Error("anonymous handshake should complete")
	}
}

func TestEstablishContextAnonymousDigest(t *testing.T) {
	s := New()
	sess := auth.NewClientSession(nil, anon, identity.User{})

	c, err := protocol.NewChallenge()
	if err != nil {
		t.Fatal(err)
	}
	resp, err := s.establishContext(context.Background(), sess, protocol.Message{
		protocol.KeyUserName:      anon.Name,
		protocol.KeyZoneName:      anon.Zone,
		protocol.KeyRequestResult: c.String(),
	})
	if err != nil {
		t.Fatalf("establish-context: %v", err)
	}

	want := protocol.EncodeDigest(protocol.ComputeDigest(c[:], nil))
	if resp[protocol.KeyDigest] != want {
		t.Errorf("digest = %q, want %q", resp[protocol.KeyDigest], want)
	}
	if resp.NextOperation() != protocol.OpClientResponse {
		t.Errorf("next_operation = %q", resp.NextOperation())
	}
}

func TestEstablishContextMissingFields(t *testing.T) {
	s := New(WithSecrets(defaultPasswords()))
	sess := auth.NewClientSession(nil, alice, identity.User{})

	_, err := s.establishContext(context.Background(), sess, protocol.Message{protocol.KeyUserName: "alice"})

	var mf *protocol.MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if len(mf.Keys) != 2 {
		t.Errorf("missing keys = %v", mf.Keys)
	}
}

func TestClientRequestWithoutPeer(t *testing.T) {
	s := New()
	sess := auth.NewClientSession(nil, alice, identity.User{})

	_, err := s.clientRequest(context.Background(), sess, protocol.NewMessage(protocol.OpClientRequest))
	if !errors.Is(err, protocol.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

// agentLeg выполняет agent-request и возвращает правильный digest для пароля.
func agentLeg(t *testing.T, table auth.OperationTable, sess *auth.Session, user identity.User, password string) string {
	t.Helper()

	req := protocol.NewMessage(protocol.OpAgentRequest)
	req[protocol.KeyUserName] = user.Name
	req[protocol.KeyZoneName] = user.Zone

	resp, err := auth.Dispatch(context.Background(), table, sess, req)
	if err != nil {
		t.Fatalf("agent-request: %v", err)
	}
	if _, ok := resp[protocol.KeyNextOperation]; ok {
		t.Error("agent-request reply must not carry next_operation")
	}
	if len(resp[protocol.KeyRequestResult]) != protocol.ChallengeLen {
		t.Fatalf("challenge length = %d", len(resp[protocol.KeyRequestResult]))
	}

	c := protocol.ChallengeFromString(resp[protocol.KeyRequestResult])
	return protocol.EncodeDigest(protocol.ComputeDigest(c[:], []byte(password)))
}

func responseMsg(user identity.User, digest string) protocol.Message {
	m := protocol.NewMessage(protocol.OpAgentResponse)
	m[protocol.KeyUserName] = user.Name
	m[protocol.KeyZoneName] = user.Zone
	m[protocol.KeyDigest] = digest
	return m
}

func TestAgentResponseTruncatedDigest(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	digest := agentLeg(t, table, sess, alice, "secret123")

	_, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest[:len(digest)-4]))
	if !errors.Is(err, protocol.ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
	if sess.Authenticated() {
		t.Error("identity must not be committed")
	}
	if sess.Client().Level != protocol.NoUserAuth || sess.Proxy().Level != protocol.NoUserAuth {
		t.Error("privilege levels must stay unset")
	}
}

func TestAgentResponseForAnotherUser(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(bob, bob)

	// Пароль alice верный, но сессия открыта для bob
	digest := agentLeg(t, table, sess, alice, "secret123")

	_, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest))
	if !errors.Is(err, protocol.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if sess.Authenticated() {
		t.Error("identity must not be committed")
	}
	if sess.Proxy().Level != protocol.NoUserAuth || sess.Client().Level != protocol.NoUserAuth {
		t.Error("privilege levels must stay unset")
	}
}

func TestAgentResponseForAnotherZone(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	other := identity.User{Name: "alice", Zone: "zoneB"}
	digest := agentLeg(t, table, sess, other, "secret123")

	_, err := auth.Dispatch(context.Background(), table, sess, responseMsg(other, digest))
	if !errors.Is(err, protocol.ErrAuthRejected) {
		t.Fatalf("expected ErrAuthRejected, got %v", err)
	}
	if sess.Authenticated() {
		t.Error("identity must not be committed")
	}
}

func TestAgentResponseProxyWithoutZone(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(identity.User{Name: "alice"}, identity.User{})

	digest := agentLeg(t, table, sess, alice, "secret123")

	if _, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest)); err != nil {
		t.Fatalf("agent-response: %v", err)
	}
	if !sess.Authenticated() {
		t.Error("proxy without zone belongs to the local zone")
	}
}

func TestAgentResponseWithoutChallenge(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	var d protocol.Digest
	_, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, protocol.EncodeDigest(d)))
	if !errors.Is(err, protocol.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAgentResponseChallengeSingleUse(t *testing.T) {
	table := New(WithCatalog(zoneA(t, nil, nil))).Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	digest := agentLeg(t, table, sess, alice, "secret123")

	resp, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest))
	if err != nil {
		t.Fatalf("first response: %v", err)
	}
	if !resp.IsComplete() {
		t.Errorf("next_operation = %q", resp.NextOperation())
	}

	_, err = auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest))
	if !errors.Is(err, protocol.ErrInvalidInput) {
		t.Errorf("replayed response: expected ErrInvalidInput, got %v", err)
	}
}

func TestAgentResponseChallengeExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := New(
		WithCatalog(zoneA(t, nil, nil)),
		WithChallengeTTL(time.Minute),
		WithClock(func() time.Time { return now }),
	)
	table := s.Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	digest := agentLeg(t, table, sess, alice, "secret123")
	now = now.Add(2 * time.Minute)

	_, err := auth.Dispatch(context.Background(), table, sess, responseMsg(alice, digest))
	if !errors.Is(err, protocol.ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
	if !errors.Is(err, protocol.ErrAuthRejected) {
		t.Error("expired challenge should be an authentication rejection")
	}
	if sess.Authenticated() {
		t.Error("identity must not be committed")
	}
}

func TestAgentStartAndVerifyReturnEmpty(t *testing.T) {
	table := New().Operations(auth.RoleAgent)
	sess := auth.NewAgentSession(alice, identity.User{})

	for _, op := range []string{protocol.OpAgentStart, protocol.OpAgentVerify} {
		resp, err := auth.Dispatch(context.Background(), table, sess, protocol.NewMessage(op))
		if err != nil {
			t.Fatalf("%s: %v", op, err)
		}
		if len(resp) != 0 {
			t.Errorf("%s: expected empty message, got %v", op, resp)
		}
	}
}

func TestProxyWithoutPrivilege(t *testing.T) {
	_, clientSess, agentSess, err := handshake(t, zoneA(t, nil, nil), defaultPasswords(), admin, bob)
	if !errors.Is(err, protocol.ErrInsufficientPrivilege) {
		t.Fatalf("expected ErrInsufficientPrivilege, got %v", err)
	}
	if clientSess.LoggedIn() || agentSess.Authenticated() {
		t.Error("failed handshake must not commit identity")
	}
}

func TestProxyWithLocalAdmin(t *testing.T) {
	_, _, agentSess, err := handshake(t, zoneA(t, nil, nil), defaultPasswords(), rods, bob)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if got := agentSess.Proxy().Level; got != protocol.LocalPrivUserAuth {
		t.Errorf("proxy level = %v", got)
	}
	if got := agentSess.Client().Level; got != protocol.LocalUserAuth {
		t.Errorf("client level = %v", got)
	}
}

func TestNoSchemeWithoutRole(t *testing.T) {
	if table := New().Operations(auth.Role(42)); table != nil {
		t.Errorf("unexpected table for unknown role: %v", table)
	}
}
