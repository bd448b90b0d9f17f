package protocol

import (
	"bytes"
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// Challenge challenge сервера фиксированной длины.
type Challenge [ChallengeLen]byte

// Digest сырой 16-байтовый digest.
type Digest [ResponseLen]byte

// EncodedDigestLen длина digest в транспортном (base64) виде.
var EncodedDigestLen = base64.StdEncoding.EncodedLen(ResponseLen)

// NewChallenge генерирует challenge: hex от 32 случайных байт.
// Hex делает значение безопасным для строкового поля сообщения.
func NewChallenge() (Challenge, error) {
	var c Challenge
	var raw [ChallengeLen / 2]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return c, fmt.Errorf("generate challenge: %w", err)
	}
	hex.Encode(c[:], raw[:])
	return c, nil
}

// ChallengeFromString обрезает или дополняет нулями строку до ChallengeLen.
func ChallengeFromString(s string) Challenge {
	var c Challenge
	copy(c[:], s)
	return c
}

// String возвращает challenge как строку без хвостовых нулей.
func (c Challenge) String() string {
	if i := bytes.IndexByte(c[:], 0); i >= 0 {
		return string(c[:i])
	}
	return string(c[:])
}

// BuildHashInput собирает буфер для хеширования.
// Структура буфера:
//
//	[0:64]    - challenge
//	[64:114]  - секрет (пароль или server_id зоны)
//
// Каждый сегмент копируется до первого нулевого байта и обрезается по своей
// длине, остаток заполнен нулями.
func BuildHashInput(challenge, secret []byte) [HashInputLen]byte {
	var buf [HashInputLen]byte
	copyUntilZero(buf[:ChallengeLen], challenge)
	copyUntilZero(buf[ChallengeLen:], secret)
	return buf
}

func copyUntilZero(dst, src []byte) {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	copy(dst, src)
}

// Hash вычисляет MD5 по первым HashInputLen байтам буфера.
// Буфер должен иметь размер >= HashInputLen.
func Hash(buf []byte) Digest {
	_ = buf[HashInputLen-1] // bounds check
	return md5.Sum(buf[:HashInputLen])
}

// Scrub увеличивает на единицу каждый нулевой байт digest.
// Оба peer'а обязаны делать это одинаково, иначе digest не совпадёт.
func Scrub(d Digest) Digest {
	for i := range d {
		if d[i] == 0 {
			d[i]++
		}
	}
	return d
}

// ComputeDigest = Scrub(Hash(BuildHashInput(challenge, secret))).
func ComputeDigest(challenge, secret []byte) Digest {
	buf := BuildHashInput(challenge, secret)
	d := Scrub(Hash(buf[:]))
	clear(buf[:])
	return d
}

// EncodeDigest кодирует digest в base64 для передачи.
func EncodeDigest(d Digest) string {
	return base64.StdEncoding.EncodeToString(d[:])
}

// DecodeDigest декодирует base64 digest.
// Размер после декодирования должен быть ровно ResponseLen.
func DecodeDigest(s string) (Digest, error) {
	var d Digest
	if len(s) != EncodedDigestLen {
		return d, fmt.Errorf("%w: digest length %d, want %d", ErrEncoding, len(s), EncodedDigestLen)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("%w: decode digest: %v", ErrEncoding, err)
	}
	if len(raw) != ResponseLen {
		return d, fmt.Errorf("%w: decoded %d bytes, want %d", ErrEncoding, len(raw), ResponseLen)
	}
	copy(d[:], raw)
	return d, nil
}

// CompareDigest сравнивает digest побайтно по всей длине.
// Нулевой байт внутри не завершает сравнение.
func CompareDigest(a, b Digest) bool {
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// SessionSignature возвращает представление части challenge для
// сигнатуры сессии (hex первых 16 байт).
func SessionSignature(c Challenge) string {
	return hex.EncodeToString(c[:16])
}
