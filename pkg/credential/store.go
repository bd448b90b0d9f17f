// Package credential получает пароль пользователя для native схемы:
// из обфусцированного файла или с терминала с отключённым эхо.
package credential

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	// FilePermissions файл пароля доступен только владельцу.
	FilePermissions = 0600
	// DirPermissions права директории файла пароля.
	DirPermissions = 0700

	fileVersion byte = 1
	keyInfo          = "zonauth-auth-file-v1"
)

var (
	// ErrNoCredential сохранённого пароля нет.
	ErrNoCredential = errors.New("no stored credential")

	// ErrCorrupt файл пароля повреждён или создан другим пользователем/хостом.
	ErrCorrupt = errors.New("credential file is corrupt")
)

// Store хранит пароль в обфусцированном виде.
//
// Ключ выводится из uid и имени хоста, поэтому файл бесполезен
// на другой машине. Это обфускация, а не защита от владельца аккаунта.
type Store struct {
	path string
}

// NewStore создаёт хранилище в указанном файле.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path возвращает путь к файлу.
func (s *Store) Path() string {
	return s.path
}

// Save сохраняет пароль.
func (s *Store) Save(password []byte) error {
	aead, err := newAEAD()
	if err != nil {
		return err
	}

	// Формат файла: [1 версия][24 nonce][ciphertext]
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	buf := make([]byte, 0, 1+len(nonce)+len(password)+aead.Overhead())
	buf = append(buf, fileVersion)
	buf = append(buf, nonce...)
	buf = aead.Seal(buf, nonce, password, nil)

	if err := os.MkdirAll(filepath.Dir(s.path), DirPermissions); err != nil {
		return fmt.Errorf("create credential directory: %w", err)
	}
	if err := os.WriteFile(s.path, buf, FilePermissions); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	// WriteFile не меняет права существующего файла
	if err := os.Chmod(s.path, FilePermissions); err != nil {
		return fmt.Errorf("chmod credential file: %w", err)
	}
	return nil
}

// Load читает пароль. Вызывающая сторона очищает результат.
func (s *Store) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoCredential
		}
		return nil, fmt.Errorf("read credential file: %w", err)
	}

	aead, err := newAEAD()
	if err != nil {
		return nil, err
	}

	if len(data) < 1+aead.NonceSize()+aead.Overhead() || data[0] != fileVersion {
		return nil, ErrCorrupt
	}
	nonce := data[1 : 1+aead.NonceSize()]

	password, err := aead.Open(nil, nonce, data[1+aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return password, nil
}

// Remove удаляет файл. Отсутствие файла не ошибка.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credential file: %w", err)
	}
	return nil
}

func newAEAD() (cipher.AEAD, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("get hostname: %w", err)
	}

	secret := []byte(strconv.Itoa(os.Getuid()))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, []byte(host), []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	defer clear(key)

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create AEAD: %w", err)
	}
	return aead, nil
}
