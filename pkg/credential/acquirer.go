package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/zonauth/pkg/identity"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// PromptLabel приглашение ввода пароля.
const PromptLabel = "Enter your current password:"

// Acquirer находит пароль пользователя: anonymous не имеет пароля,
// иначе используется сохранённый файл, а при его отсутствии prompt.
type Acquirer struct {
	store    *Store
	prompter Prompter
}

// NewAcquirer создаёт Acquirer. Любой аргумент может быть nil.
func NewAcquirer(store *Store, prompter Prompter) *Acquirer {
	return &Acquirer{store: store, prompter: prompter}
}

// Obtain возвращает сохранённый секрет или needsPrompt = true.
func (a *Acquirer) Obtain(user identity.User) (secret []byte, needsPrompt bool, err error) {
	if user.IsAnonymous() {
		return nil, false, nil
	}
	if a.store == nil {
		return nil, true, nil
	}

	secret, err = a.store.Load()
	if errors.Is(err, ErrNoCredential) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return secret, false, nil
}

// Secret возвращает секрет, при необходимости запрашивая его у оператора.
// Секрет обрезается до protocol.MaxPasswordLen байт.
func (a *Acquirer) Secret(ctx context.Context, user identity.User) ([]byte, error) {
	secret, needsPrompt, err := a.Obtain(user)
	if err != nil {
		return nil, err
	}

	if needsPrompt {
		if a.prompter == nil {
			return nil, fmt.Errorf("%w for %s", ErrNoCredential, user)
		}
		secret, err = a.prompter.ReadSecret(ctx, PromptLabel)
		if err != nil {
			return nil, err
		}
	}

	if len(secret) > protocol.MaxPasswordLen {
		clear(secret[protocol.MaxPasswordLen:])
		secret = secret[:protocol.MaxPasswordLen]
	}
	return secret, nil
}

// Fixed источник с заранее известным паролем, для сервисов и тестов.
type Fixed string

// Secret возвращает копию пароля.
func (f Fixed) Secret(context.Context, identity.User) ([]byte, error) {
	return []byte(f), nil
}
