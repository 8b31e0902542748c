package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/udisondev/manchester/pkg/linecode"
)

func TestEnvelopeMarshalUnmarshal(t *testing.T) {
	original := NewEnvelope("HI", "blob==", "0100", linecode.Sequence{1, 0, 0, 1})

	data, err := original.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	decoded, err := UnmarshalEnvelope(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if decoded.Text != original.Text || decoded.Encrypted != original.Encrypted || decoded.Binary != original.Binary {
		t.Errorf("fields: got %+v, want %+v", decoded, original)
	}
	if decoded.Manchester.String() != original.Manchester.String() {
		t.Errorf("manchester: got %v, want %v", decoded.Manchester, original.Manchester)
	}
}

func TestEnvelopeWireFields(t *testing.T) {
	data, err := Envelope{}.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}

	for _, f := range []string{FieldText, FieldEncrypted, FieldBinary, FieldManchester} {
		if _, ok := raw[f]; !ok {
			t.Errorf("field %q missing", f)
		}
	}
	if len(raw) != 4 {
		t.Errorf("expected exactly 4 fields, got %d", len(raw))
	}
	if string(raw[FieldManchester]) != "[]" {
		t.Errorf("empty manchester must be [], got %s", raw[FieldManchester])
	}
}

func TestNewEnvelopeCopiesSequence(t *testing.T) {
	seq := linecode.Sequence{1, 0}
	env := NewEnvelope("", "", "0", seq)
	seq[0] = 0

	if env.Manchester[0] != 1 {
		t.Error("envelope shares sequence with caller")
	}
}

func TestUnmarshalEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Envelope
		wantErr bool
	}{
		{
			name:  "unknown fields ignored",
			input: `{"text":"a","extra":42,"manchester":[0,1]}`,
			want:  Envelope{Text: "a", Manchester: linecode.Sequence{0, 1}},
		},
		{
			name:  "missing fields empty",
			input: `{"binary":"01"}`,
			want:  Envelope{Binary: "01"},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "null", input: "null", wantErr: true},
		{name: "array", input: "[1,2]", wantErr: true},
		{name: "garbage", input: "hello", wantErr: true},
		{name: "truncated", input: `{"text":"a"`, wantErr: true},
		{name: "wrong type", input: `{"manchester":"0101"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UnmarshalEnvelope([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEnvelope) {
					t.Fatalf("expected ErrMalformedEnvelope, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Text != tt.want.Text || got.Binary != tt.want.Binary || got.Encrypted != tt.want.Encrypted {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if got.Manchester.String() != tt.want.Manchester.String() {
				t.Errorf("manchester: got %v, want %v", got.Manchester, tt.want.Manchester)
			}
		})
	}
}

func TestParseFraming(t *testing.T) {
	tests := []struct {
		input   string
		want    Framing
		wantErr bool
	}{
		{"", FramingNone, false},
		{"none", FramingNone, false},
		{"LENGTH", FramingLength, false},
		{"lines", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseFraming(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestLengthFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	messages := [][]byte{[]byte(`{"text":"one"}`), {}, []byte(`{"text":"three"}`)}

	for _, m := range messages {
		if err := WriteFrame(&buf, FramingLength, m); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	fr := NewFrameReader(&buf, FramingLength)
	for i, want := range messages {
		got, err := fr.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d: got %q, want %q", i, got, want)
		}
	}

	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FramingLength, make([]byte, MaxMessageSize+1)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("write: expected ErrMessageTooLarge, got %v", err)
	}

	var header [FrameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], MaxMessageSize+1)
	fr := NewFrameReader(bytes.NewReader(header[:]), FramingLength)
	if _, err := fr.Next(); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("read: expected ErrMessageTooLarge, got %v", err)
	}
}

func TestFrameTruncated(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FramingLength, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data := buf.Bytes()[:buf.Len()-2]

	fr := NewFrameReader(bytes.NewReader(data), FramingLength)
	if _, err := fr.Next(); err == nil || err == io.EOF {
		t.Errorf("expected truncation error, got %v", err)
	}
}

func TestNoneFramingSingleWrite(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FramingNone, []byte("raw")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "raw" {
		t.Errorf("none framing must not add bytes, got %q", buf.String())
	}

	fr := NewFrameReader(&buf, FramingNone)
	got, err := fr.Next()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "raw" {
		t.Errorf("got %q", got)
	}
	if _, err := fr.Next(); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDeliveryProtoRoundTrip(t *testing.T) {
	d := Delivery{
		ConnID:        "c0ffee",
		Remote:        "192.168.1.10:50000",
		ReceivedAt:    time.Unix(1700000000, 42),
		Envelope:      NewEnvelope("HI", "blob==", "0100", linecode.Sequence{1, 0, 0, 1, -3}),
		DecodedBinary: "0X",
		Violations:    []linecode.Violation{{Bit: 1}},
		Plaintext:     "HI",
		Err:           errors.New("boom"),
	}

	rec, err := UnmarshalDeliveryProto(d.MarshalProto())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	want := d.Record()
	if rec.ConnID != want.ConnID || rec.Remote != want.Remote || rec.Text != want.Text ||
		rec.Encrypted != want.Encrypted || rec.Binary != want.Binary ||
		rec.DecodedBinary != want.DecodedBinary || rec.Plaintext != want.Plaintext ||
		rec.Error != "boom" || rec.Violations != 1 || rec.BinaryMatches {
		t.Errorf("got %+v, want %+v", rec, want)
	}
	if rec.Manchester.String() != want.Manchester.String() {
		t.Errorf("manchester: got %v, want %v", rec.Manchester, want.Manchester)
	}
	if !rec.ReceivedAt().Equal(d.ReceivedAt) {
		t.Errorf("received at: got %v, want %v", rec.ReceivedAt(), d.ReceivedAt)
	}
}

func TestUnmarshalDeliveryProtoMalformed(t *testing.T) {
	good := Delivery{ConnID: "abc", Plaintext: "hello"}.MarshalProto()

	if _, err := UnmarshalDeliveryProto(good[:len(good)-2]); !errors.Is(err, ErrMalformedRecord) {
		t.Errorf("expected ErrMalformedRecord, got %v", err)
	}

	rec, err := UnmarshalDeliveryProto(nil)
	if err != nil {
		t.Fatalf("empty record: %v", err)
	}
	if rec.ConnID != "" {
		t.Errorf("empty record: got %+v", rec)
	}
}
