package protocol

import "errors"

var (
	// ErrMalformedEnvelope — байты не являются JSON-объектом конверта.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrMessageTooLarge — сообщение больше допустимого размера.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrUnknownFraming — неизвестный режим обрамления.
	ErrUnknownFraming = errors.New("unknown framing")

	// ErrMalformedRecord — повреждённая запись доставки.
	ErrMalformedRecord = errors.New("malformed delivery record")
)
