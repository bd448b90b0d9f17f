// Package protocol определяет wire protocol и digest engine для zonauth.
package protocol

// Размеры полей native схемы.
// Менять нельзя: peers, собранные независимо, должны совпадать побайтно.
const (
	ChallengeLen   = 64
	MaxPasswordLen = 50
	ResponseLen    = 16

	// HashInputLen размер буфера для хеширования: challenge + секрет.
	HashInputLen = ChallengeLen + MaxPasswordLen
)

// Имена операций flow. Строки являются частью протокола.
const (
	OpClientStart      = "client-start"
	OpClientRequest    = "client-request"
	OpEstablishContext = "establish-context"
	OpClientResponse   = "client-response"

	OpAgentStart    = "agent-start"
	OpAgentRequest  = "agent-request"
	OpAgentResponse = "agent-response"
	OpAgentVerify   = "agent-verify"

	// FlowComplete терминальное значение next_operation.
	FlowComplete = "flow_complete"
)

// Ключи сообщений.
const (
	KeyNextOperation = "next_operation"
	KeyScheme        = "scheme"
	KeyUserName      = "user_name"
	KeyZoneName      = "zone_name"
	KeyRequestResult = "request_result"
	KeyDigest        = "digest"
)

// AnonymousUser well-known пользователь без пароля.
const AnonymousUser = "anonymous"

// Статусы ответа агента
const (
	StatusOK       byte = 0x00
	StatusRejected byte = 0x01
)

// Максимальные размеры
const (
	MaxMessageSize = 65536 // 64KB
	MaxNameLen     = 64
	MaxErrorMsgLen = 1024
)
