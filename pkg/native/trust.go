package native

import (
	"github.com/udisondev/zonauth/pkg/protocol"
)

// ZoneSecrets источник server_id зон.
type ZoneSecrets interface {
	ZoneSecret(zone string) (string, bool)
}

// verifyServerResponse проверяет, что удалённый сервер зоны знает общий
// server_id: его ответ должен совпасть с digest challenge + server_id.
func verifyServerResponse(secrets ZoneSecrets, challenge protocol.Challenge, zone string, serverResponse []byte) error {
	if serverResponse == nil {
		return protocol.ErrRemoteAuthNotProvided
	}
	if len(serverResponse) == 0 || serverResponse[0] == 0 {
		return protocol.ErrRemoteAuthEmpty
	}

	sid, ok := secrets.ZoneSecret(zone)
	if !ok || sid == "" {
		return protocol.ErrTrustSecretMissing
	}

	want := protocol.ComputeDigest(challenge[:], []byte(sid))

	var got protocol.Digest
	n := copy(got[:], serverResponse)
	if n != protocol.ResponseLen || !protocol.CompareDigest(got, want) {
		return protocol.ErrTrustMismatch
	}
	return nil
}
