package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/udisondev/manchester/pkg/linecode"
)

// Envelope — конверт сообщения: исходный текст, шифротекст, его бинарное
// представление и манчестерская последовательность.
// После создания не изменяется.
type Envelope struct {
	Text       string            `json:"text"`
	Encrypted  string            `json:"encrypted"`
	Binary     string            `json:"binary"`
	Manchester linecode.Sequence `json:"manchester"`
}

// NewEnvelope собирает конверт, копируя последовательность.
func NewEnvelope(text, encrypted, binary string, manchester linecode.Sequence) Envelope {
	return Envelope{
		Text:       text,
		Encrypted:  encrypted,
		Binary:     binary,
		Manchester: append(linecode.Sequence(nil), manchester...),
	}
}

// Marshal сериализует конверт в JSON.
func (e Envelope) Marshal() ([]byte, error) {
	if e.Manchester == nil {
		// На проводе всегда массив, не null.
		e.Manchester = linecode.Sequence{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// UnmarshalEnvelope разбирает конверт.
// Неизвестные поля игнорируются, отсутствующие остаются пустыми.
// Всё, что не является JSON-объектом нужной формы, — ErrMalformedEnvelope.
func UnmarshalEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a JSON object", ErrMalformedEnvelope)
	}

	var e Envelope
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return e, nil
}
