package protocol

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Wire layout: [Magic:1][Version:1][Type:1][Flags:1][PayloadLen:2 LE]
// [Timestamp:4 LE ms][Payload:N JSON][CRC16:2 LE]. The checksum covers
// header+payload. One transport message carries exactly one frame.
const (
	Magic   = 0x4F // 'O' for OpenClaw
	Version = 0x01

	HeaderSize   = 10
	ChecksumSize = 2

	// MaxPayloadSize is the largest JSON payload the 16-bit length field
	// can describe.
	MaxPayloadSize = 0xFFFF
)

var (
	ErrShortFrame      = errors.New("protocol: buffer shorter than frame header")
	ErrBadMagic        = errors.New("protocol: bad magic byte")
	ErrBadVersion      = errors.New("protocol: unsupported protocol version")
	ErrTruncated       = errors.New("protocol: declared payload exceeds buffer")
	ErrChecksum        = errors.New("protocol: checksum mismatch")
	ErrPayloadTooLarge = errors.New("protocol: payload exceeds 16-bit length field")
)

// Type identifies the kind of a frame.
type Type uint8

// Type codes match the Cardputer firmware's message table: connection
// management in 0x0X, data in 0x1X, control in 0x2X, codec info in 0x3X.
const (
	TypeAuth         Type = 0x01
	TypeAuthResponse Type = 0x02
	TypePing         Type = 0x03
	TypePong         Type = 0x04

	TypeText          Type = 0x10
	TypeAudio         Type = 0x11
	TypeResponse      Type = 0x12
	TypeResponseFinal Type = 0x13

	TypeStatus  Type = 0x20
	TypeCommand Type = 0x21
	TypeError   Type = 0x22

	TypeAudioConfig Type = 0x30

	TypeUnknown Type = 0xFF
)

var typeNames = map[Type]string{
	TypeAuth:          "auth",
	TypeAuthResponse:  "auth_response",
	TypePing:          "ping",
	TypePong:          "pong",
	TypeText:          "text",
	TypeAudio:         "audio",
	TypeResponse:      "response",
	TypeResponseFinal: "response_final",
	TypeStatus:        "status",
	TypeCommand:       "command",
	TypeError:         "error",
	TypeAudioConfig:   "audio_config",
	TypeUnknown:       "unknown",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(t))
}

func (t Type) known() bool {
	_, ok := typeNames[t]
	return ok && t != TypeUnknown
}

// RawPayloadKey carries the base64 of a payload that did not parse as a
// JSON object, so decoding never fails on payload content alone.
const RawPayloadKey = "raw"

// Frame is one decoded protocol message. Timestamp is milliseconds
// wrapped to 32 bits; it is an opaque echo value, not an absolute clock.
type Frame struct {
	Type      Type
	Payload   map[string]interface{}
	Timestamp uint32
}

// NewFrame builds a frame of the given type stamped with the current time.
func NewFrame(t Type, payload map[string]interface{}) Frame {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return Frame{
		Type:      t,
		Payload:   payload,
		Timestamp: NowMillis(),
	}
}

// NowMillis returns the current Unix time in milliseconds, wrapped to the
// 32 bits the wire format carries.
func NowMillis() uint32 {
	return uint32(time.Now().UnixMilli())
}

// Encode serializes a frame to header+payload+checksum.
func Encode(f Frame) ([]byte, error) {
	payload := f.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal payload: %w", err)
	}
	if len(body) > MaxPayloadSize {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, HeaderSize+len(body)+ChecksumSize)
	buf[0] = Magic
	buf[1] = Version
	buf[2] = byte(f.Type)
	buf[3] = 0 // flags, reserved
	binary.LittleEndian.PutUint16(buf[4:6], uint16(len(body)))
	binary.LittleEndian.PutUint32(buf[6:10], f.Timestamp)
	copy(buf[HeaderSize:], body)

	crc := Checksum(buf[:HeaderSize+len(body)])
	binary.LittleEndian.PutUint16(buf[HeaderSize+len(body):], crc)
	return buf, nil
}

// Decode parses one frame from buf. The frame is rejected on short input,
// magic/version mismatch, truncated payload, or checksum mismatch; an
// unrecognized type code or a non-JSON payload is not an error.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < HeaderSize {
		return Frame{}, ErrShortFrame
	}
	if buf[0] != Magic {
		return Frame{}, ErrBadMagic
	}
	if buf[1] != Version {
		return Frame{}, ErrBadVersion
	}

	payloadLen := int(binary.LittleEndian.Uint16(buf[4:6]))
	if len(buf) < HeaderSize+payloadLen+ChecksumSize {
		return Frame{}, ErrTruncated
	}

	end := HeaderSize + payloadLen
	want := binary.LittleEndian.Uint16(buf[end : end+ChecksumSize])
	if got := Checksum(buf[:end]); got != want {
		return Frame{}, fmt.Errorf("%w: got 0x%04x, want 0x%04x", ErrChecksum, got, want)
	}

	f := Frame{
		Type:      Type(buf[2]),
		Timestamp: binary.LittleEndian.Uint32(buf[6:10]),
	}
	if !f.Type.known() {
		f.Type = TypeUnknown
	}

	body := buf[HeaderSize:end]
	f.Payload = decodePayload(body)
	return f, nil
}

func decodePayload(body []byte) map[string]interface{} {
	if len(body) == 0 {
		return map[string]interface{}{}
	}
	if utf8.Valid(body) {
		var payload map[string]interface{}
		if err := json.Unmarshal(body, &payload); err == nil && payload != nil {
			return payload
		}
	}
	return map[string]interface{}{
		RawPayloadKey: base64.StdEncoding.EncodeToString(body),
	}
}
