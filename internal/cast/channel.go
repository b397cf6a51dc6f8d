package cast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// maxMessageSize bounds a single CastV2 frame.
const maxMessageSize = 64 * 1024

// CastMessage field numbers.
const (
	fieldProtocolVersion protowire.Number = 1
	fieldSourceID        protowire.Number = 2
	fieldDestinationID   protowire.Number = 3
	fieldNamespace       protowire.Number = 4
	fieldPayloadType     protowire.Number = 5
	fieldPayloadUTF8     protowire.Number = 6
	fieldPayloadBinary   protowire.Number = 7
)

var errFrameTooLarge = errors.New("cast frame exceeds size limit")

// message is a CastV2 CastMessage with a UTF-8 payload.
type message struct {
	SourceID      string
	DestinationID string
	Namespace     string
	Payload       string
}

func (m message) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldProtocolVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, 0) // CASTV2_1_0
	b = protowire.AppendTag(b, fieldSourceID, protowire.BytesType)
	b = protowire.AppendString(b, m.SourceID)
	b = protowire.AppendTag(b, fieldDestinationID, protowire.BytesType)
	b = protowire.AppendString(b, m.DestinationID)
	b = protowire.AppendTag(b, fieldNamespace, protowire.BytesType)
	b = protowire.AppendString(b, m.Namespace)
	b = protowire.AppendTag(b, fieldPayloadType, protowire.VarintType)
	b = protowire.AppendVarint(b, 0) // STRING
	b = protowire.AppendTag(b, fieldPayloadUTF8, protowire.BytesType)
	b = protowire.AppendString(b, m.Payload)
	return b
}

func unmarshalMessage(b []byte) (message, error) {
	var m message
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return message{}, protowire.ParseError(n)
		}
		b = b[n:]

		if typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return message{}, protowire.ParseError(n)
			}
			switch num {
			case fieldSourceID:
				m.SourceID = string(v)
			case fieldDestinationID:
				m.DestinationID = string(v)
			case fieldNamespace:
				m.Namespace = string(v)
			case fieldPayloadUTF8:
				m.Payload = string(v)
			case fieldPayloadBinary:
				// Binary payloads are not used by the namespaces we speak.
			}
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return message{}, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return m, nil
}

// writeMessage writes one length-prefixed frame.
func writeMessage(w io.Writer, m message) error {
	body := m.marshal()
	if len(body) > maxMessageSize {
		return errFrameTooLarge
	}
	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)))
	copy(frame[4:], body)
	if _, err := w.Write(frame); err != nil {
		return fmt.Errorf("failed to write cast frame: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed frame.
func readMessage(r io.Reader) (message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return message{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxMessageSize {
		return message{}, errFrameTooLarge
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return message{}, fmt.Errorf("failed to read cast frame: %w", err)
	}
	m, err := unmarshalMessage(body)
	if err != nil {
		return message{}, fmt.Errorf("failed to decode cast frame: %w", err)
	}
	return m, nil
}
