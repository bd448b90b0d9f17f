package broker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/udisondev/zonauth/pkg/protocol"
)

// Request отправляет сообщение зоне и ждёт Reply.
func (b *Broker) Request(ctx context.Context, zone string, msg protocol.Message) (*protocol.Reply, error) {
	subject, err := SubjectForZone(zone)
	if err != nil {
		return nil, err
	}

	data, err := protocol.MarshalMessage(msg)
	if err != nil {
		return nil, err
	}

	slog.Debug("requester: sending", "subject", subject, "size", len(data))

	resp, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		slog.Error("requester: failed", "subject", subject, "error", err)
		return nil, fmt.Errorf("request %s: %w", subject, err)
	}

	reply, err := protocol.UnmarshalReply(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("decode reply from %s: %w", subject, err)
	}
	return reply, nil
}
