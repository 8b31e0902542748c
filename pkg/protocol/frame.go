package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Framing — способ разделения сообщений в TCP потоке.
type Framing int

const (
	// FramingNone — одно чтение = одно сообщение, без разделителей.
	// Совместимо с исходным проводным форматом. Работает, только пока
	// транспорт доставляет запись одним куском: TLS records, крупные
	// TCP сегменты или склейка соседних записей ломают границы сообщений.
	FramingNone Framing = iota

	// FramingLength — 4-байтный BigEndian префикс длины перед каждым сообщением.
	FramingLength
)

// String возвращает имя режима для конфига и логов.
func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingLength:
		return "length"
	default:
		return fmt.Sprintf("framing(%d)", int(f))
	}
}

// ParseFraming разбирает имя режима. Пустая строка — FramingNone.
func ParseFraming(s string) (Framing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return FramingNone, nil
	case "length":
		return FramingLength, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFraming, s)
	}
}

// WriteFrame записывает сообщение в writer согласно режиму.
// Для FramingNone payload пишется как есть, одним вызовом Write.
func WriteFrame(w io.Writer, f Framing, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, len(payload), MaxMessageSize)
	}

	switch f {
	case FramingNone:
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
		return nil

	case FramingLength:
		buf := make([]byte, FrameHeaderSize+len(payload))
		binary.BigEndian.PutUint32(buf[:FrameHeaderSize], uint32(len(payload)))
		copy(buf[FrameHeaderSize:], payload)
		if _, err := w.Write(buf); err != nil {
			return fmt.Errorf("write frame: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("%w: %s", ErrUnknownFraming, f)
	}
}

// FrameReader читает сообщения из потока.
// Буфер переиспользуется: возвращённый срез валиден до следующего Next.
type FrameReader struct {
	r       io.Reader
	framing Framing
	buf     []byte
}

// NewFrameReader создаёт reader для указанного режима.
func NewFrameReader(r io.Reader, f Framing) *FrameReader {
	return &FrameReader{
		r:       r,
		framing: f,
		buf:     make([]byte, MaxMessageSize),
	}
}

// Next возвращает следующее сообщение.
// io.EOF означает штатное закрытие потока отправителем.
func (fr *FrameReader) Next() ([]byte, error) {
	switch fr.framing {
	case FramingNone:
		for {
			n, err := fr.r.Read(fr.buf)
			if n > 0 {
				// Данные важнее ошибки: ошибку вернём следующим вызовом.
				return fr.buf[:n], nil
			}
			if err != nil {
				return nil, err
			}
		}

	case FramingLength:
		var lenBuf [FrameHeaderSize]byte
		if _, err := io.ReadFull(fr.r, lenBuf[:]); err != nil {
			if err == io.ErrUnexpectedEOF {
				return nil, fmt.Errorf("read frame len: %w", err)
			}
			return nil, err
		}
		size := binary.BigEndian.Uint32(lenBuf[:])
		if size > MaxMessageSize {
			return nil, fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, size, MaxMessageSize)
		}
		data := fr.buf[:size]
		if _, err := io.ReadFull(fr.r, data); err != nil {
			return nil, fmt.Errorf("read frame data: %w", err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFraming, fr.framing)
	}
}
