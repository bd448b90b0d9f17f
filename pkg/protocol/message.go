package protocol

import "maps"

// Message одно сообщение handshake: открытый набор строковых ключей.
// Отправленное сообщение не изменяется: каждый шаг работает с Clone.
type Message map[string]string

// NewMessage создаёт сообщение с указанной следующей операцией.
func NewMessage(next string) Message {
	return Message{KeyNextOperation: next}
}

// Clone возвращает независимую копию сообщения.
func (m Message) Clone() Message {
	out := make(Message, len(m)+2)
	maps.Copy(out, m)
	return out
}

// NextOperation возвращает имя следующей операции.
func (m Message) NextOperation() string {
	return m[KeyNextOperation]
}

// WithNext возвращает копию с новой next_operation.
func (m Message) WithNext(op string) Message {
	out := m.Clone()
	out[KeyNextOperation] = op
	return out
}

// IsComplete сообщает, что flow завершён.
func (m Message) IsComplete() bool {
	return m.NextOperation() == FlowComplete
}

// Require проверяет наличие ключей. Пустое значение считается присутствующим.
func (m Message) Require(keys ...string) error {
	var missing []string
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingFieldError{Keys: missing}
	}
	return nil
}
