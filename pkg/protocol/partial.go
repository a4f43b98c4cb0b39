package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
)

// armedHeaderLength is the size of the encrypted private header.
const armedHeaderLength = PrivateHeaderLength + crypto.Overhead

// Decode parses magic number and public header of frame. The result is an ArmedMessage or an
// UnarmedMessage depending on the armed flag; its payload aliases frame.
func Decode(frame []byte) (PartialReadMessage, error) {
	if len(frame) < MagicNumberLength {
		return nil, truncated("magic number", MagicNumberLength, len(frame))
	}
	if int32(binary.BigEndian.Uint32(frame)) != MagicNumber {
		return nil, ErrInvalidMagic
	}

	r := newReader(frame[MagicNumberLength:])
	h, err := readPublicHeader(r)
	if err != nil {
		return nil, err
	}
	payload := r.rest()
	if h.Armed {
		return ArmedMessage{PublicHeader: h, Bytes: payload}, nil
	}
	return UnarmedMessage{PublicHeader: h, Bytes: payload}, nil
}

// DecodeFull parses frame into a typed message. Armed frames are disarmed with session first.
func DecodeFull(frame []byte, aead crypto.AEAD, session crypto.SessionPair) (FullReadMessage, error) {
	m, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	switch msg := m.(type) {
	case ArmedMessage:
		return msg.Disarm(aead, session)
	case UnarmedMessage:
		return msg.Read()
	default:
		panic(fmt.Sprintf("protocol: unhandled partial message %T", m))
	}
}

// ===== UNARMED =====

// UnarmedMessage holds a public header and the plaintext private header and body, not yet parsed.
type UnarmedMessage struct {
	PublicHeader
	Bytes []byte
}

// Payload returns private header and body.
func (m UnarmedMessage) Payload() []byte {
	return m.Bytes
}

func (UnarmedMessage) isPartial() {}

// AppendFrame appends the encoded message to b.
func (m UnarmedMessage) AppendFrame(b []byte) []byte {
	return appendFrame(b, m.PublicHeader, m.Bytes)
}

// IncrementHopCount returns a copy with hop count advanced by one. The copy shares Bytes.
func (m UnarmedMessage) IncrementHopCount() (UnarmedMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// Read parses private header and body into a typed message. The typed message takes over Bytes.
func (m UnarmedMessage) Read() (FullReadMessage, error) {
	h := m.PublicHeader
	h.Armed = false
	return readFull(h, m.Bytes)
}

// Arm encrypts private header and the first armedLength body bytes. The private header is
// authenticated together with the public header (minus hop count); body bytes beyond armedLength
// are carried in clear.
//
// The message nonce must not have been used with session.Tx for other content before.
func (m UnarmedMessage) Arm(aead crypto.AEAD, session crypto.SessionPair) (ArmedMessage, error) {
	r := newReader(m.Bytes)
	armedLength, err := peekArmedLength(r)
	if err != nil {
		return ArmedMessage{}, err
	}

	h := m.PublicHeader
	h.Armed = true

	out := make([]byte, 0, len(m.Bytes)+2*crypto.Overhead)
	encHeader, err := aead.Encrypt(r.next(PrivateHeaderLength), h.AuthTag(), h.Nonce[:], session)
	if err != nil {
		return ArmedMessage{}, err
	}
	out = append(out, encHeader...)

	if armedLength > 0 {
		if r.remaining() < int(armedLength) {
			return ArmedMessage{}, truncated("armed body", int(armedLength), r.remaining())
		}
		encBody, err := aead.Encrypt(r.next(int(armedLength)), nil, h.Nonce[:], session)
		if err != nil {
			return ArmedMessage{}, err
		}
		out = append(out, encBody...)
	}
	out = append(out, r.rest()...)

	return ArmedMessage{PublicHeader: h, Bytes: out}, nil
}

// ===== ARMED =====

// ArmedMessage holds a public header and the encrypted private header and body.
type ArmedMessage struct {
	PublicHeader
	Bytes []byte
}

// Payload returns the encrypted bytes.
func (m ArmedMessage) Payload() []byte {
	return m.Bytes
}

func (ArmedMessage) isPartial() {}

// AppendFrame appends the encoded message to b.
func (m ArmedMessage) AppendFrame(b []byte) []byte {
	return appendFrame(b, m.PublicHeader, m.Bytes)
}

// IncrementHopCount returns a copy with hop count advanced by one. The hop count is not
// authenticated, so the copy still disarms.
func (m ArmedMessage) IncrementHopCount() (ArmedMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// Disarm decrypts the message and parses it into a typed message. Authentication failures are
// reported as ErrIntegrity; a body that decrypts but does not parse yields a format error.
func (m ArmedMessage) Disarm(aead crypto.AEAD, session crypto.SessionPair) (FullReadMessage, error) {
	u, err := m.disarm(aead, session)
	if err != nil {
		return nil, err
	}
	return u.Read()
}

// DisarmBytes decrypts the message without parsing the plaintext.
func (m ArmedMessage) DisarmBytes(aead crypto.AEAD, session crypto.SessionPair) (UnarmedMessage, error) {
	return m.disarm(aead, session)
}

func (m ArmedMessage) disarm(aead crypto.AEAD, session crypto.SessionPair) (UnarmedMessage, error) {
	r := newReader(m.Bytes)
	if r.remaining() < armedHeaderLength {
		return UnarmedMessage{}, truncated("armed private header", armedHeaderLength, r.remaining())
	}

	header, err := aead.Decrypt(r.next(armedHeaderLength), m.PublicHeader.AuthTag(), m.Nonce[:], session)
	if err != nil {
		return UnarmedMessage{}, integrity(err)
	}
	ph, err := DecodePrivateHeader(header)
	if err != nil {
		return UnarmedMessage{}, err
	}

	out := make([]byte, 0, len(m.Bytes))
	out = append(out, header...)
	if ph.ArmedLength > 0 {
		n := int(ph.ArmedLength) + crypto.Overhead
		if r.remaining() < n {
			return UnarmedMessage{}, truncated("armed body", n, r.remaining())
		}
		body, err := aead.Decrypt(r.next(n), nil, m.Nonce[:], session)
		if err != nil {
			return UnarmedMessage{}, integrity(err)
		}
		out = append(out, body...)
	}
	out = append(out, r.rest()...)

	h := m.PublicHeader
	h.Armed = false
	return UnarmedMessage{PublicHeader: h, Bytes: out}, nil
}

func integrity(err error) error {
	if errors.Is(err, crypto.ErrInvalidKey) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIntegrity, err)
}

// Arm serializes m and arms it with session. See UnarmedMessage.Arm. It fails with
// ErrInvalidMessageFormat if the body is too long for the armed length of the private header,
// since the excess would otherwise leave in clear.
func Arm(aead crypto.AEAD, m FullReadMessage, session crypto.SessionPair) (ArmedMessage, error) {
	u := Unarmed(m)
	if body := len(u.Bytes) - PrivateHeaderLength; body > MaxArmedLength {
		return ArmedMessage{}, fmt.Errorf("%w: %s body of %d bytes exceeds %d",
			ErrInvalidMessageFormat, m.Type(), body, MaxArmedLength)
	}
	return u.Arm(aead, session)
}
