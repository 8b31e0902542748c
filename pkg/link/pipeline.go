// Package link связывает шифрование, линейный код и транспорт в сквозной канал:
// отправитель запечатывает текст в конверт, приёмник вскрывает его и
// передаёт результат в sink'и.
package link

import (
	"errors"
	"fmt"

	"github.com/udisondev/manchester/pkg/linecode"
	"github.com/udisondev/manchester/pkg/protocol"
	"github.com/udisondev/manchester/pkg/secret"
)

// ErrKeyRequired — ключ канала ещё не задан.
var ErrKeyRequired = secret.ErrNoKey

// ErrSelfCheck — закодированная последовательность не прошла самопроверку.
var ErrSelfCheck = errors.New("manchester self-check failed")

// Pipeline выполняет преобразования текста в конверт и обратно.
// Ключ читается из holder на каждый вызов, поэтому его можно менять на лету.
type Pipeline struct {
	keys  *secret.Holder
	codec *linecode.Codec
}

// NewPipeline создаёт конвейер. codec == nil — конвенция по умолчанию.
func NewPipeline(keys *secret.Holder, codec *linecode.Codec) *Pipeline {
	if codec == nil {
		codec = linecode.New(linecode.DefaultConvention)
	}
	return &Pipeline{keys: keys, codec: codec}
}

// Keys возвращает holder ключа.
func (p *Pipeline) Keys() *secret.Holder {
	return p.keys
}

// Codec возвращает линейный кодек.
func (p *Pipeline) Codec() *linecode.Codec {
	return p.codec
}

// Seal шифрует текст и строит конверт:
// encrypt → binary → Manchester → самопроверка.
func (p *Pipeline) Seal(text string) (protocol.Envelope, error) {
	key, ok := p.keys.Get()
	if !ok {
		return protocol.Envelope{}, ErrKeyRequired
	}

	blob, err := secret.Encrypt(text, key[:])
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("encrypt: %w", err)
	}

	bin, err := linecode.TextToBinary(blob)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("to binary: %w", err)
	}

	seq, err := p.codec.Encode(bin)
	if err != nil {
		return protocol.Envelope{}, fmt.Errorf("encode: %w", err)
	}

	if report := p.codec.Validate(bin, seq); !report.Valid {
		return protocol.Envelope{}, fmt.Errorf("%w: %d bit errors", ErrSelfCheck, len(report.Errors))
	}

	return protocol.NewEnvelope(text, blob, bin, seq), nil
}

// Open декодирует конверт и расшифровывает его текущим ключом.
// Декодирование выполняется всегда; если ключа нет или расшифровка
// не удалась, Delivery содержит все представления и Err, но не Plaintext.
func (p *Pipeline) Open(env protocol.Envelope) (protocol.Delivery, error) {
	decoded := p.codec.Decode(env.Manchester)

	d := protocol.Delivery{
		Envelope:      env,
		DecodedBinary: decoded.Binary,
		BinaryMatches: decoded.Binary == env.Binary,
		Violations:    decoded.Violations,
		Report:        p.codec.Validate(env.Binary, env.Manchester),
	}

	key, ok := p.keys.Get()
	if !ok {
		d.Err = ErrKeyRequired
		return d, d.Err
	}

	plaintext, err := secret.Decrypt(env.Encrypted, key[:])
	if err != nil {
		d.Err = fmt.Errorf("decrypt: %w", err)
		return d, d.Err
	}
	d.Plaintext = plaintext

	return d, nil
}
