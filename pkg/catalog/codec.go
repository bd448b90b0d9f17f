package catalog

import (
	"encoding/base64"
	"fmt"

	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// Ключи сообщений проверки аутентификации между зонами.
const (
	keyChallenge       = "challenge"
	keyResponse        = "response"
	keyUserName        = "user_name"
	keyZoneName        = "zone_name"
	keyClientUser      = "client_user"
	keyClientZone      = "client_zone"
	keyPrivLevel       = "priv_level"
	keyClientPrivLevel = "client_priv_level"
	keyServerResponse  = "server_response"
)

// EncodeCheckInput переводит запрос проверки в сообщение.
func EncodeCheckInput(in AuthCheckInput) protocol.Message {
	return protocol.Message{
		keyChallenge:  in.Challenge.String(),
		keyResponse:   protocol.EncodeDigest(in.Response),
		keyUserName:   in.User.Name,
		keyZoneName:   in.User.Zone,
		keyClientUser: in.Client.Name,
		keyClientZone: in.Client.Zone,
	}
}

// DecodeCheckInput разбирает запрос проверки.
func DecodeCheckInput(msg protocol.Message) (AuthCheckInput, error) {
	if err := msg.Require(keyChallenge, keyResponse, keyUserName, keyZoneName); err != nil {
		return AuthCheckInput{}, err
	}
	if len(msg[keyChallenge]) != protocol.ChallengeLen {
		return AuthCheckInput{}, fmt.Errorf("%w: challenge length %d", protocol.ErrInvalidInput, len(msg[keyChallenge]))
	}

	resp, err := protocol.DecodeDigest(msg[keyResponse])
	if err != nil {
		return AuthCheckInput{}, err
	}

	return AuthCheckInput{
		Challenge: protocol.ChallengeFromString(msg[keyChallenge]),
		Response:  resp,
		User:      identity.User{Name: msg[keyUserName], Zone: msg[keyZoneName]},
		Client:    identity.User{Name: msg[keyClientUser], Zone: msg[keyClientZone]},
	}, nil
}

// EncodeCheckOutput переводит результат проверки в сообщение.
// Ключ server_response отсутствует, если ServerResponse == nil.
func EncodeCheckOutput(out *AuthCheckOutput) protocol.Message {
	msg := protocol.Message{
		keyPrivLevel:       protocol.FormatPrivLevel(out.PrivLevel),
		keyClientPrivLevel: protocol.FormatPrivLevel(out.ClientPrivLevel),
	}
	if out.ServerResponse != nil {
		msg[keyServerResponse] = base64.StdEncoding.EncodeToString(out.ServerResponse)
	}
	return msg
}

// DecodeCheckOutput разбирает результат проверки.
func DecodeCheckOutput(msg protocol.Message) (*AuthCheckOutput, error) {
	if err := msg.Require(keyPrivLevel, keyClientPrivLevel); err != nil {
		return nil, err
	}

	priv, err := protocol.ParsePrivLevel(msg[keyPrivLevel])
	if err != nil {
		return nil, err
	}
	clientPriv, err := protocol.ParsePrivLevel(msg[keyClientPrivLevel])
	if err != nil {
		return nil, err
	}

	out := &AuthCheckOutput{PrivLevel: priv, ClientPrivLevel: clientPriv}

	if s, ok := msg[keyServerResponse]; ok {
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: server response: %v", protocol.ErrEncoding, err)
		}
		if b == nil {
			b = []byte{}
		}
		out.ServerResponse = b
	}

	return out, nil
}
