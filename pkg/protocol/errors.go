package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingField в сообщении нет обязательного ключа.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidInput пустой или некорректный параметр вне сообщения.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedOperation неизвестное имя операции или схемы.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrEncoding ошибка base64 кодирования/декодирования digest.
	ErrEncoding = errors.New("encoding failure")

	// ErrTrustNotEstablished удалённый сервер не прислал server response.
	ErrTrustNotEstablished = errors.New("remote server not authenticated")

	// ErrRemoteAuthNotProvided поле server response отсутствует.
	ErrRemoteAuthNotProvided = fmt.Errorf("%w: server response not provided", ErrTrustNotEstablished)

	// ErrRemoteAuthEmpty поле server response пустое.
	ErrRemoteAuthEmpty = fmt.Errorf("%w: server response is empty", ErrTrustNotEstablished)

	// ErrTrustSecretMissing для зоны не настроен server_id.
	ErrTrustSecretMissing = errors.New("zone server id not defined")

	// ErrTrustMismatch server response не совпал с вычисленным digest.
	ErrTrustMismatch = errors.New("remote server response incorrect")

	// ErrAuthRejected проверка identity не прошла.
	ErrAuthRejected = errors.New("authentication failed")

	// ErrChallengeExpired challenge истёк (replay attack protection).
	ErrChallengeExpired = fmt.Errorf("%w: challenge expired", ErrAuthRejected)

	// ErrInsufficientPrivilege proxy пользователь не может действовать от имени клиента.
	ErrInsufficientPrivilege = errors.New("insufficient privilege for proxy user")

	// ErrConnectionClosed соединение закрыто.
	ErrConnectionClosed = errors.New("connection closed")
)

// MissingFieldError перечисляет отсутствующие ключи.
type MissingFieldError struct {
	Keys []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingField, strings.Join(e.Keys, ", "))
}

func (e *MissingFieldError) Unwrap() error {
	return ErrMissingField
}
