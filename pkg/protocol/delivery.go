package protocol

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/udisondev/manchester/pkg/linecode"
)

// Delivery — результат приёма одного конверта: что пришло, как декодировалось
// и что получилось после расшифровки.
type Delivery struct {
	ConnID     string
	Remote     string
	ReceivedAt time.Time
	Envelope   Envelope

	// DecodedBinary — бинарная строка, восстановленная из Manchester.
	DecodedBinary string
	// BinaryMatches — DecodedBinary совпадает с Envelope.Binary.
	BinaryMatches bool
	Violations    []linecode.Violation
	Report        linecode.Report

	Plaintext string
	// Err — ошибка расшифровки (нет ключа, чужой ключ, повреждённые данные).
	Err error
}

// OK сообщает, что сообщение принято без нарушений и расшифровано.
func (d Delivery) OK() bool {
	return d.Err == nil && d.BinaryMatches && len(d.Violations) == 0 && d.Report.Valid
}

// DeliveryRecord — плоская запись доставки для брокера.
type DeliveryRecord struct {
	ConnID          string
	Remote          string
	ReceivedAtNanos int64
	Text            string
	Encrypted       string
	Binary          string
	Manchester      linecode.Sequence
	DecodedBinary   string
	BinaryMatches   bool
	Violations      uint64
	BitErrors       uint64
	Plaintext       string
	Error           string
}

// Номера полей записи.
const (
	fieldConnID protowire.Number = iota + 1
	fieldRemote
	fieldReceivedAt
	fieldText
	fieldEncrypted
	fieldBinary
	fieldManchester
	fieldDecodedBinary
	fieldBinaryMatches
	fieldViolations
	fieldBitErrors
	fieldPlaintext
	fieldError
)

// Record сворачивает доставку в запись.
func (d Delivery) Record() DeliveryRecord {
	r := DeliveryRecord{
		ConnID:        d.ConnID,
		Remote:        d.Remote,
		Text:          d.Envelope.Text,
		Encrypted:     d.Envelope.Encrypted,
		Binary:        d.Envelope.Binary,
		Manchester:    d.Envelope.Manchester,
		DecodedBinary: d.DecodedBinary,
		BinaryMatches: d.BinaryMatches,
		Violations:    uint64(len(d.Violations)),
		BitErrors:     uint64(len(d.Report.Errors)),
		Plaintext:     d.Plaintext,
	}
	if !d.ReceivedAt.IsZero() {
		r.ReceivedAtNanos = d.ReceivedAt.UnixNano()
	}
	if d.Err != nil {
		r.Error = d.Err.Error()
	}
	return r
}

// MarshalProto кодирует доставку в protobuf wire format.
func (d Delivery) MarshalProto() []byte {
	return d.Record().MarshalProto()
}

// MarshalProto кодирует запись в protobuf wire format.
// Пустые поля не пишутся.
func (r DeliveryRecord) MarshalProto() []byte {
	var b []byte
	b = appendString(b, fieldConnID, r.ConnID)
	b = appendString(b, fieldRemote, r.Remote)
	if r.ReceivedAtNanos != 0 {
		b = protowire.AppendTag(b, fieldReceivedAt, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.ReceivedAtNanos))
	}
	b = appendString(b, fieldText, r.Text)
	b = appendString(b, fieldEncrypted, r.Encrypted)
	b = appendString(b, fieldBinary, r.Binary)
	if len(r.Manchester) > 0 {
		var packed []byte
		for _, s := range r.Manchester {
			packed = protowire.AppendVarint(packed, protowire.EncodeZigZag(int64(s)))
		}
		b = protowire.AppendTag(b, fieldManchester, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	b = appendString(b, fieldDecodedBinary, r.DecodedBinary)
	if r.BinaryMatches {
		b = protowire.AppendTag(b, fieldBinaryMatches, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	if r.Violations != 0 {
		b = protowire.AppendTag(b, fieldViolations, protowire.VarintType)
		b = protowire.AppendVarint(b, r.Violations)
	}
	if r.BitErrors != 0 {
		b = protowire.AppendTag(b, fieldBitErrors, protowire.VarintType)
		b = protowire.AppendVarint(b, r.BitErrors)
	}
	b = appendString(b, fieldPlaintext, r.Plaintext)
	b = appendString(b, fieldError, r.Error)
	return b
}

// ReceivedAt возвращает время приёма; нулевое, если не задано.
func (r DeliveryRecord) ReceivedAt() time.Time {
	if r.ReceivedAtNanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, r.ReceivedAtNanos)
}

// UnmarshalDeliveryProto разбирает запись доставки.
// Неизвестные поля пропускаются.
func UnmarshalDeliveryProto(b []byte) (DeliveryRecord, error) {
	var r DeliveryRecord
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return DeliveryRecord{}, fmt.Errorf("%w: tag: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && num != fieldManchester:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return DeliveryRecord{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, num, protowire.ParseError(n))
			}
			b = b[n:]
			r.setString(num, v)

		case typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return DeliveryRecord{}, fmt.Errorf("%w: manchester: %v", ErrMalformedRecord, protowire.ParseError(n))
			}
			b = b[n:]
			seq, err := consumePacked(packed)
			if err != nil {
				return DeliveryRecord{}, err
			}
			r.Manchester = append(r.Manchester, seq...)

		case typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return DeliveryRecord{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, num, protowire.ParseError(n))
			}
			b = b[n:]
			r.setVarint(num, v)

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return DeliveryRecord{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRecord, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return r, nil
}

func (r *DeliveryRecord) setString(num protowire.Number, v string) {
	switch num {
	case fieldConnID:
		r.ConnID = v
	case fieldRemote:
		r.Remote = v
	case fieldText:
		r.Text = v
	case fieldEncrypted:
		r.Encrypted = v
	case fieldBinary:
		r.Binary = v
	case fieldDecodedBinary:
		r.DecodedBinary = v
	case fieldPlaintext:
		r.Plaintext = v
	case fieldError:
		r.Error = v
	}
}

func (r *DeliveryRecord) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldReceivedAt:
		r.ReceivedAtNanos = int64(v)
	case fieldBinaryMatches:
		r.BinaryMatches = protowire.DecodeBool(v)
	case fieldViolations:
		r.Violations = v
	case fieldBitErrors:
		r.BitErrors = v
	}
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func consumePacked(b []byte) (linecode.Sequence, error) {
	var seq linecode.Sequence
	for len(b) > 0 {
		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: manchester: %v", ErrMalformedRecord, protowire.ParseError(n))
		}
		b = b[n:]
		seq = append(seq, int(protowire.DecodeZigZag(v)))
	}
	return seq, nil
}
