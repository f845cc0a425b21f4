package wire

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Magic starts every frame.
var Magic = [4]byte{0x55, 0x43, 0x00, 0x01}

// Framing constants.
const (
	// MagicSize is the size of the magic prefix in bytes.
	MagicSize = 4

	// LengthSize is the size of the length field in bytes.
	LengthSize = 2

	// TypeSize is the size of the type tag in bytes.
	TypeSize = 2

	// HeaderSize covers magic, length and type tag.
	HeaderSize = MagicSize + LengthSize + TypeSize

	// MaxPayloadSize is the largest payload the 16-bit length can describe.
	MaxPayloadSize = math.MaxUint16 - TypeSize

	// TokenSize is the size of the session token prefixing JM payloads.
	TokenSize = 4

	// parameterPadding separates the path terminator from the float value.
	parameterPadding = 2
)

// Codec errors. Every decode failure wraps ErrMalformed so the transport can
// drop the frame and keep the connection.
var (
	ErrMalformed      = errors.New("malformed frame")
	ErrBadMagic       = fmt.Errorf("%w: bad magic", ErrMalformed)
	ErrBadLength      = fmt.Errorf("%w: length mismatch", ErrMalformed)
	ErrUnknownType    = fmt.Errorf("%w: unknown type", ErrMalformed)
	ErrBadPayload     = fmt.Errorf("%w: bad payload", ErrMalformed)
	ErrPayloadTooLong = errors.New("payload too long")
	ErrInvalidType    = errors.New("invalid message type")
)

// Encode serializes a message into a complete frame.
func Encode(msg Message) ([]byte, error) {
	payload, err := encodePayload(msg)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(msg.Type(), payload)
}

// EncodeFrame wraps a payload with magic, length and type tag.
func EncodeFrame(t MessageType, payload []byte) ([]byte, error) {
	if len(t) != TypeSize {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, string(t))
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLong, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, HeaderSize+len(payload))
	copy(frame, Magic[:])
	binary.LittleEndian.PutUint16(frame[MagicSize:], uint16(TypeSize+len(payload)))
	copy(frame[MagicSize+LengthSize:], t)
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// FrameSize inspects a frame header and returns the total frame size in
// bytes. header must hold at least MagicSize+LengthSize bytes.
func FrameSize(header []byte) (int, error) {
	if len(header) < MagicSize+LengthSize {
		return 0, fmt.Errorf("%w: short header", ErrBadLength)
	}
	if !bytes.Equal(header[:MagicSize], Magic[:]) {
		return 0, ErrBadMagic
	}
	length := int(binary.LittleEndian.Uint16(header[MagicSize:]))
	if length < TypeSize {
		return 0, fmt.Errorf("%w: length %d below type size", ErrBadLength, length)
	}
	return MagicSize + LengthSize + length, nil
}

// Decode parses a complete frame.
func Decode(frame []byte) (Message, error) {
	if len(frame) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadLength, len(frame))
	}
	size, err := FrameSize(frame)
	if err != nil {
		return nil, err
	}
	if size != len(frame) {
		return nil, fmt.Errorf("%w: header says %d, have %d", ErrBadLength, size, len(frame))
	}

	t := MessageType(frame[MagicSize+LengthSize : HeaderSize])
	payload := frame[HeaderSize:]

	switch t {
	case TypeHello:
		return decodeHello(payload)
	case TypeJSON:
		return decodeJSON(payload)
	case TypeParameterValue:
		return decodeParameterValue(payload)
	case TypeKeepAlive:
		return KeepAlive{}, nil
	case TypeDiscoveryQuery:
		return DiscoveryQuery{Payload: clone(payload)}, nil
	case TypeDiscoveryAdvert:
		return decodeDiscoveryAdvert(payload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
}

func encodePayload(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case Hello:
		buf := make([]byte, 2, 2+len(m.Capabilities))
		binary.LittleEndian.PutUint16(buf, m.Port)
		return append(buf, m.Capabilities...), nil

	case Subscribe:
		body := struct {
			ID string `json:"id"`
			Subscribe
		}{JSONIDSubscribe, m}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode subscribe: %w", err)
		}
		return withToken(m.Token, data), nil

	case SubscriptionReply:
		fields := make(map[string]any, len(m.Fields)+1)
		for k, v := range m.Fields {
			fields[k] = v
		}
		fields["id"] = JSONIDSubscriptionReply
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("encode subscription reply: %w", err)
		}
		return withToken(m.Token, data), nil

	case JSONMessage:
		return withToken(m.Token, m.Body), nil

	case ParameterValue:
		buf := make([]byte, 0, len(m.Path)+1+parameterPadding+4)
		buf = append(buf, m.Path...)
		buf = append(buf, 0, 0, 0)
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(m.Value))
		return buf, nil

	case KeepAlive:
		return nil, nil

	case DiscoveryQuery:
		return m.Payload, nil

	case DiscoveryAdvert:
		buf := make([]byte, 2, 2+len(m.Model)+len(m.Firmware)+len(m.Serial)+3)
		binary.LittleEndian.PutUint16(buf, m.Port)
		for _, s := range []string{m.Model, m.Firmware, m.Serial} {
			buf = append(buf, s...)
			buf = append(buf, 0)
		}
		return buf, nil

	case RawMessage:
		return m.Payload, nil

	default:
		return nil, fmt.Errorf("%w: %T", ErrInvalidType, msg)
	}
}

func withToken(token uint32, body []byte) []byte {
	buf := make([]byte, TokenSize, TokenSize+len(body))
	binary.LittleEndian.PutUint32(buf, token)
	return append(buf, body...)
}

func decodeHello(p []byte) (Message, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: hello needs 2 bytes, have %d", ErrBadPayload, len(p))
	}
	return Hello{
		Port:         binary.LittleEndian.Uint16(p),
		Capabilities: clone(p[2:]),
	}, nil
}

func decodeJSON(p []byte) (Message, error) {
	if len(p) < TokenSize {
		return nil, fmt.Errorf("%w: json message without token", ErrBadPayload)
	}
	token := binary.LittleEndian.Uint32(p)
	body := p[TokenSize:]

	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	switch head.ID {
	case JSONIDSubscribe:
		var s Subscribe
		if err := json.Unmarshal(body, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		s.Token = token
		return s, nil
	case JSONIDSubscriptionReply:
		fields := make(map[string]any)
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		delete(fields, "id")
		return SubscriptionReply{Token: token, Fields: fields}, nil
	default:
		return JSONMessage{Token: token, ID: head.ID, Body: clone(body)}, nil
	}
}

func decodeParameterValue(p []byte) (Message, error) {
	end := bytes.IndexByte(p, 0)
	if end <= 0 {
		return nil, fmt.Errorf("%w: parameter path not terminated", ErrBadPayload)
	}
	valueAt := end + 1 + parameterPadding
	if len(p) < valueAt+4 {
		return nil, fmt.Errorf("%w: parameter value truncated", ErrBadPayload)
	}
	bits := binary.LittleEndian.Uint32(p[valueAt:])
	return ParameterValue{
		Path:  string(p[:end]),
		Value: math.Float32frombits(bits),
	}, nil
}

func decodeDiscoveryAdvert(p []byte) (Message, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: advert needs port", ErrBadPayload)
	}
	fields := bytes.SplitN(p[2:], []byte{0}, 4)
	get := func(i int) string {
		if i < len(fields) {
			return string(fields[i])
		}
		return ""
	}
	adv := DiscoveryAdvert{
		Port:     binary.LittleEndian.Uint16(p),
		Model:    get(0),
		Firmware: get(1),
		Serial:   get(2),
	}
	if adv.Model == "" {
		return nil, fmt.Errorf("%w: advert without model", ErrBadPayload)
	}
	return adv, nil
}

func clone(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
