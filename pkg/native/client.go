package native

import (
	"context"
	"fmt"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// clientStart заполняет identity proxy пользователя.
func (s *Scheme) clientStart(_ context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	proxy := sess.Proxy()

	resp := req.WithNext(protocol.OpClientRequest)
	resp[protocol.KeyUserName] = proxy.Name
	resp[protocol.KeyZoneName] = proxy.Zone
	return resp, nil
}

// clientRequest запрашивает challenge у агента.
func (s *Scheme) clientRequest(ctx context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	resp, err := forward(ctx, sess, req.WithNext(protocol.OpAgentRequest))
	if err != nil {
		return nil, err
	}
	return resp.WithNext(protocol.OpEstablishContext), nil
}

// establishContext вычисляет digest ответа на challenge.
func (s *Scheme) establishContext(ctx context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	if err := req.Require(protocol.KeyUserName, protocol.KeyZoneName, protocol.KeyRequestResult); err != nil {
		return nil, err
	}

	challenge := protocol.ChallengeFromString(req[protocol.KeyRequestResult])
	sess.SetSignature(protocol.SessionSignature(challenge))

	user := identity.User{Name: req[protocol.KeyUserName], Zone: req[protocol.KeyZoneName]}

	// Anonymous не имеет пароля: область секрета остаётся нулевой
	var secret []byte
	if !user.IsAnonymous() {
		if s.secrets == nil {
			return nil, fmt.Errorf("%w: no secret source configured", protocol.ErrInvalidInput)
		}
		var err error
		secret, err = s.secrets.Secret(ctx, user)
		if err != nil {
			return nil, fmt.Errorf("obtain secret: %w", err)
		}
	}

	digest := protocol.ComputeDigest(challenge[:], secret)
	clear(secret)

	resp := req.WithNext(protocol.OpClientResponse)
	resp[protocol.KeyDigest] = protocol.EncodeDigest(digest)
	return resp, nil
}

// clientResponse отправляет digest агенту и завершает flow.
func (s *Scheme) clientResponse(ctx context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	if err := req.Require(protocol.KeyDigest, protocol.KeyUserName, protocol.KeyZoneName); err != nil {
		return nil, err
	}

	resp, err := forward(ctx, sess, req.WithNext(protocol.OpAgentResponse))
	if err != nil {
		return nil, err
	}

	sess.SetLoggedIn()
	return resp.WithNext(protocol.FlowComplete), nil
}

func forward(ctx context.Context, sess *auth.Session, req protocol.Message) (protocol.Message, error) {
	peer := sess.Peer()
	if peer == nil {
		return nil, fmt.Errorf("%w: session has no peer", protocol.ErrInvalidInput)
	}
	resp, err := peer.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = protocol.Message{}
	}
	return resp, nil
}
