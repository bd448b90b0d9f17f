package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/udisondev/zonauth/pkg/protocol"
)

// Handler обрабатывает запрос и возвращает ответное сообщение.
type Handler func(ctx context.Context, msg protocol.Message) (protocol.Message, error)

// Responder обслуживает запросы проверки аутентификации для зоны.
type Responder struct {
	sub     *nats.Subscription
	timeout time.Duration
}

// NewResponder подписывается на subject зоны.
// Ошибка обработчика отправляется запрашивающей стороне как общий отказ.
func NewResponder(b *Broker, zone string, timeout time.Duration, handler Handler) (*Responder, error) {
	subject, err := SubjectForZone(zone)
	if err != nil {
		return nil, err
	}
	slog.Debug("responder: creating", "subject", subject)

	r := &Responder{timeout: timeout}

	sub, err := b.conn.QueueSubscribe(subject, QueueGroup, func(m *nats.Msg) {
		r.handle(m, handler)
	})
	if err != nil {
		slog.Error("responder: subscribe failed", "subject", subject, "error", err)
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}
	r.sub = sub

	slog.Info("responder: subscribed", "subject", subject)
	return r, nil
}

func (r *Responder) handle(m *nats.Msg, handler Handler) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	reply := &protocol.Reply{Status: protocol.StatusOK}

	msg, err := protocol.UnmarshalMessage(m.Data)
	if err == nil {
		reply.Message, err = handler(ctx, msg)
	}
	if err != nil {
		slog.Warn("responder: request rejected", "subject", m.Subject, "error", err)
		reply = &protocol.Reply{Status: protocol.StatusRejected, ErrorMsg: protocol.ErrAuthRejected.Error()}
	}

	data, err := protocol.MarshalReply(reply)
	if err != nil {
		slog.Error("responder: marshal reply failed", "subject", m.Subject, "error", err)
		return
	}
	if err := m.Respond(data); err != nil {
		slog.Error("responder: respond failed", "subject", m.Subject, "error", err)
	}
}

// Unsubscribe отписывается от топика.
func (r *Responder) Unsubscribe() error {
	subject := r.sub.Subject
	slog.Debug("responder: unsubscribing", "subject", subject)
	if err := r.sub.Unsubscribe(); err != nil {
		slog.Error("responder: unsubscribe failed", "subject", subject, "error", err)
		return err
	}
	return nil
}
