package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/zonauth/pkg/protocol"
)

// MaxSteps ограничивает число шагов одного flow.
const MaxSteps = 16

// Dispatch выполняет одну операцию: ищет next_operation сообщения в таблице
// и вызывает обработчик.
func Dispatch(ctx context.Context, table OperationTable, sess *Session, msg protocol.Message) (protocol.Message, error) {
	name := msg.NextOperation()
	op, ok := table[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", protocol.ErrUnsupportedOperation, name)
	}

	slog.Debug("auth: dispatch", "session", sess.ID(), "role", sess.Role(), "operation", name)

	resp, err := op(ctx, sess, msg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if resp == nil {
		resp = protocol.Message{}
	}
	return resp, nil
}

// Run вызывает операции схемы, пока обработчик не вернёт flow_complete.
// Передачу сообщения peer'у выполняют сами обработчики через Session.Peer.
func Run(ctx context.Context, scheme Scheme, sess *Session, msg protocol.Message) (protocol.Message, error) {
	table := scheme.Operations(sess.Role())
	if len(table) == 0 {
		return nil, fmt.Errorf("%w: scheme %q has no %s operations", protocol.ErrUnsupportedOperation, scheme.Name(), sess.Role())
	}

	for step := 0; step < MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := Dispatch(ctx, table, sess, msg)
		if err != nil {
			return nil, err
		}
		if resp.IsComplete() {
			return resp, nil
		}
		msg = resp
	}

	return nil, fmt.Errorf("%w: flow did not complete in %d steps", protocol.ErrUnsupportedOperation, MaxSteps)
}

// Authenticate проходит клиентскую часть handshake, начиная с client-start.
func Authenticate(ctx context.Context, scheme Scheme, sess *Session) (protocol.Message, error) {
	if sess.Role() != RoleClient {
		return nil, fmt.Errorf("%w: authenticate requires a client session", protocol.ErrInvalidInput)
	}

	start := protocol.NewMessage(protocol.OpClientStart)
	start[protocol.KeyScheme] = scheme.Name()

	resp, err := Run(ctx, scheme, sess, start)
	if err != nil {
		slog.Debug("auth: handshake failed", "session", sess.ID(), "scheme", scheme.Name(), "error", err)
		return nil, err
	}

	slog.Debug("auth: handshake complete", "session", sess.ID(), "scheme", scheme.Name())
	return resp, nil
}
