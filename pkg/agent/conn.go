package agent

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/time/rate"

	"github.com/udisondev/zonauth/pkg/auth"
	"github.com/udisondev/zonauth/pkg/config"
	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/metrics"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// rejectMessage единственная причина отказа, которую видит клиент.
var rejectMessage = protocol.ErrAuthRejected.Error()

type handler struct {
	schemes *auth.Registry
	metrics *metrics.Metrics
	limits  config.LimitsConfig
}

// handleConn обслуживает одно соединение.
func (h *handler) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	started := time.Now()

	h.metrics.ConnOpened()
	defer h.metrics.ConnClosed()

	defer func() {
		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			slog.Error("close connection", "error", err, "remote", remote)
		}
	}()

	slog.Debug("new connection", "remote", remote)

	// Включаем TCP_NODELAY: handshake состоит из коротких round trip'ов
	if tlsConn, ok := conn.(*tls.Conn); ok {
		if tcpConn, ok := tlsConn.NetConn().(*net.TCPConn); ok {
			_ = tcpConn.SetNoDelay(true)
		}
	}

	// Весь handshake ограничен auth_timeout
	ctx, cancel := context.WithTimeout(ctx, h.limits.AuthTimeout)
	defer cancel()
	if err := conn.SetDeadline(time.Now().Add(h.limits.AuthTimeout)); err != nil {
		slog.Error("agent: set deadline failed", "error", err, "remote", remote)
		return
	}

	// 1. Hello
	sess, table, err := h.hello(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			slog.Warn("agent: hello rejected", "error", err, "remote", remote)
		}
		h.metrics.ConnRejected("hello")
		h.reject(conn, err, remote)
		return
	}

	log := slog.With("session", sess.ID(), "remote", remote, "proxy", sess.Proxy().User, "client", sess.Client().User)
	log.Debug("agent: hello accepted", "scheme", sess.Scheme())

	limiter := rate.NewLimiter(rate.Limit(h.limits.RateLimitPerSec), h.limits.RateLimitBurst)

	// 2. Операции схемы: один запрос — одна операция
	for {
		msg, err := protocol.ReadMessage(conn, h.limits.MaxMessageSize)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				log.Debug("agent: client disconnected")
			} else {
				log.Warn("agent: read request failed", "error", err)
			}
			if !sess.Authenticated() {
				h.metrics.RecordHandshake(err, time.Since(started))
			}
			return
		}

		// Rate limiting: проверяем после чтения запроса
		if !limiter.Allow() {
			log.Warn("agent: rate limit exceeded, disconnecting client")
			h.metrics.ConnRejected("rate")
			h.reject(conn, protocol.ErrAuthRejected, remote)
			return
		}

		op := msg.NextOperation()
		resp, err := auth.Dispatch(ctx, table, sess, msg)
		h.metrics.RecordOperation(op, err)
		if err != nil {
			log.Warn("agent: authentication failed", "operation", op, "error", err)
			h.metrics.RecordHandshake(err, time.Since(started))
			h.reject(conn, err, remote)
			return
		}

		reply := &protocol.Reply{Status: protocol.StatusOK, Message: resp}
		if err := reply.Encode(conn); err != nil {
			log.Warn("agent: write reply failed", "error", err)
			return
		}

		if op == protocol.OpAgentResponse && sess.Authenticated() {
			log.Info("client authenticated",
				"proxy_level", sess.Proxy().Level,
				"client_level", sess.Client().Level,
			)
			h.metrics.RecordHandshake(nil, time.Since(started))
		}
	}
}

// hello читает стартовый пакет, находит схему и создаёт сессию.
func (h *handler) hello(conn net.Conn) (*auth.Session, auth.OperationTable, error) {
	hello, err := protocol.DecodeHello(conn, h.limits.MaxMessageSize)
	if err != nil {
		return nil, nil, err
	}

	scheme, err := h.schemes.Lookup(hello.Scheme)
	if err != nil {
		return nil, nil, err
	}
	table := scheme.Operations(auth.RoleAgent)
	if len(table) == 0 {
		return nil, nil, fmt.Errorf("%w: scheme %q has no agent operations", protocol.ErrUnsupportedOperation, hello.Scheme)
	}

	sess := auth.NewAgentSession(
		identity.User{Name: hello.ProxyUser, Zone: hello.ProxyZone},
		identity.User{Name: hello.ClientUser, Zone: hello.ClientZone},
	)
	sess.SetScheme(scheme.Name())

	ack := &protocol.Reply{Status: protocol.StatusOK}
	if err := ack.Encode(conn); err != nil {
		return nil, nil, fmt.Errorf("write hello reply: %w", err)
	}
	return sess, table, nil
}

// reject отправляет клиенту отказ. Причина раскрывается только для ошибок
// формата запроса; ошибки проверки identity сводятся к общему отказу.
func (h *handler) reject(conn net.Conn, cause error, remote string) {
	if errors.Is(cause, io.EOF) || errors.Is(cause, net.ErrClosed) {
		return
	}

	msg := rejectMessage
	if metrics.Result(cause) == metrics.ResultInvalid {
		msg = cause.Error()
	}
	if len(msg) > protocol.MaxErrorMsgLen {
		msg = msg[:protocol.MaxErrorMsgLen]
	}

	reply := &protocol.Reply{Status: protocol.StatusRejected, ErrorMsg: msg}
	if err := reply.Encode(conn); err != nil {
		slog.Debug("agent: write rejection failed", "error", err, "remote", remote)
	}
}
