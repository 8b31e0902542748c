// Package protocol определяет wire protocol манчестерского канала:
// UDP discovery, JSON-конверт сообщения и опциональное обрамление по длине.
package protocol

// Discovery (UDP).
const (
	// DiscoveryPort — фиксированный порт discovery.
	DiscoveryPort = 12346

	// DiscoveryMessage — магический запрос discovery.
	DiscoveryMessage = "DISCOVER_MANCHESTER"

	// MaxDatagramSize — размер буфера приёма datagram.
	MaxDatagramSize = 1024
)

// Транспорт (TCP).
const (
	// DefaultTCPPort — TCP порт приёмника по умолчанию.
	DefaultTCPPort = 12349

	// MaxMessageSize — размер буфера одного чтения (64KB).
	MaxMessageSize = 65536

	// FrameHeaderSize — размер префикса длины в режиме FramingLength.
	FrameHeaderSize = 4
)

// Имена полей конверта на проводе.
const (
	FieldText       = "text"
	FieldEncrypted  = "encrypted"
	FieldBinary     = "binary"
	FieldManchester = "manchester"
)
