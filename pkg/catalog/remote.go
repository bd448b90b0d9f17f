package catalog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/udisondev/zonauth/pkg/broker"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// RemoteChecker делегирует проверку серверу другой зоны через NATS.
type RemoteChecker struct {
	zone   string
	broker *broker.Broker
}

// NewRemoteChecker создаёт checker поверх открытого соединения.
func NewRemoteChecker(zone string, b *broker.Broker) *RemoteChecker {
	return &RemoteChecker{zone: zone, broker: b}
}

// CheckAuth отправляет запрос зоне и ждёт результат.
func (c *RemoteChecker) CheckAuth(ctx context.Context, in AuthCheckInput) (*AuthCheckOutput, error) {
	reply, err := c.broker.Request(ctx, c.zone, EncodeCheckInput(in))
	if err != nil {
		return nil, err
	}
	if reply.Status != protocol.StatusOK {
		slog.Debug("catalog: remote check rejected", "zone", c.zone, "error", reply.ErrorMsg)
		return nil, fmt.Errorf("%w: zone %s: %s", protocol.ErrAuthRejected, c.zone, reply.ErrorMsg)
	}
	return DecodeCheckOutput(reply.Message)
}

// Close закрывает соединение с зоной.
func (c *RemoteChecker) Close() error {
	return c.broker.Close()
}

// BrokerDialer возвращает Dialer, открывающий временное NATS соединение с зоной.
func BrokerDialer(timeout time.Duration) Dialer {
	return func(_ context.Context, zone Zone) (AuthChecker, io.Closer, error) {
		b, err := broker.Dial(zone.URLs, timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("dial zone %s: %w", zone.Name, err)
		}
		rc := NewRemoteChecker(zone.Name, b)
		return rc, rc, nil
	}
}

// NewHandler оборачивает AuthChecker в обработчик broker.Responder.
func NewHandler(checker AuthChecker) broker.Handler {
	return func(ctx context.Context, msg protocol.Message) (protocol.Message, error) {
		in, err := DecodeCheckInput(msg)
		if err != nil {
			return nil, fmt.Errorf("decode auth check: %w", err)
		}
		out, err := checker.CheckAuth(ctx, in)
		if err != nil {
			return nil, err
		}
		return EncodeCheckOutput(out), nil
	}
}
