package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Эхо терминала — общий ресурс процесса.
var terminalMu sync.Mutex

// Prompter запрашивает секрет у оператора.
type Prompter interface {
	ReadSecret(ctx context.Context, label string) ([]byte, error)
}

// EchoGuard запоминает состояние терминала и восстанавливает его.
type EchoGuard struct {
	fd    int
	state *term.State
}

// NewEchoGuard сохраняет текущее состояние терминала fd.
func NewEchoGuard(fd int) (*EchoGuard, error) {
	state, err := term.GetState(fd)
	if err != nil {
		return nil, fmt.Errorf("get terminal state: %w", err)
	}
	return &EchoGuard{fd: fd, state: state}, nil
}

// Restore возвращает терминал в сохранённое состояние. Повторный вызов ничего не делает.
func (g *EchoGuard) Restore() error {
	if g == nil || g.state == nil {
		return nil
	}
	state := g.state
	g.state = nil
	if err := term.Restore(g.fd, state); err != nil {
		return fmt.Errorf("restore terminal state: %w", err)
	}
	return nil
}

// TerminalPrompter читает секрет с терминала без эхо.
// Если вход не терминал, читается одна строка как есть.
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter создаёт prompter. nil аргументы заменяются на stdin/stderr.
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stderr
	}
	return &TerminalPrompter{in: in, out: out}
}

// ReadSecret выводит label и читает одну строку.
func (p *TerminalPrompter) ReadSecret(ctx context.Context, label string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	terminalMu.Lock()
	defer terminalMu.Unlock()

	fmt.Fprint(p.out, label)

	fd := int(p.in.Fd())
	if !term.IsTerminal(fd) {
		return readLine(p.in)
	}

	// Восстанавливаем эхо при любом выходе, включая панику
	guard, err := NewEchoGuard(fd)
	if err != nil {
		slog.Warn("credential: cannot save terminal state", "error", err)
	}
	defer func() {
		if err := guard.Restore(); err != nil {
			fmt.Fprintln(p.out, "Error reinstating echo mode.")
		}
	}()

	secret, err := term.ReadPassword(fd)
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return secret, nil
}

func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return []byte(strings.TrimRight(line, "\r\n")), nil
}
