package protocol

import (
	"encoding/binary"
	"fmt"
)

// RemoteMessage is any message that can be written to the wire.
type RemoteMessage interface {
	// Header returns the public header of the message.
	Header() PublicHeader

	// AppendFrame appends the complete frame (magic number, public header and payload) to b.
	AppendFrame(b []byte) []byte
}

// FullReadMessage is a completely parsed message. Implementations are the value types
// HelloMessage, AcknowledgementMessage, DiscoveryMessage, UniteMessage and ApplicationMessage.
type FullReadMessage interface {
	RemoteMessage

	// Type returns the message type written to the private header.
	Type() MessageType

	privateHeader() PrivateHeader
	appendBody(b []byte) []byte
}

// PartialReadMessage is a message whose public header has been parsed but whose private header
// and body are still opaque: either ArmedMessage or UnarmedMessage.
type PartialReadMessage interface {
	RemoteMessage

	// Payload returns the bytes following the public header.
	Payload() []byte

	isPartial()
}

// Encode returns the complete frame of m.
func Encode(m RemoteMessage) []byte {
	return m.AppendFrame(nil)
}

func appendFrame(b []byte, h PublicHeader, payload []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(MagicNumber))
	b = h.AppendTo(b, true)
	return append(b, payload...)
}

// appendFullFrame writes magic number, public header, private header and body.
func appendFullFrame(b []byte, m FullReadMessage) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(MagicNumber))
	b = m.Header().AppendTo(b, true)
	b = m.privateHeader().AppendTo(b)
	return m.appendBody(b)
}

// encodeUnarmedPayload returns private header followed by body.
func encodeUnarmedPayload(m FullReadMessage) []byte {
	b := m.privateHeader().AppendTo(make([]byte, 0, 64))
	return m.appendBody(b)
}

// Unarmed returns the unarmed partial form of m: its public header plus the serialized private
// header and body.
func Unarmed(m FullReadMessage) UnarmedMessage {
	return UnarmedMessage{PublicHeader: m.Header(), Bytes: encodeUnarmedPayload(m)}
}

// IncrementHopCount returns a copy of m with hop count advanced by one. All other fields are
// kept. It fails with ErrHopCountOverflow if m already carries MaxHopCount.
func IncrementHopCount(m FullReadMessage) (FullReadMessage, error) {
	switch msg := m.(type) {
	case HelloMessage:
		return msg.IncrementHopCount()
	case AcknowledgementMessage:
		return msg.IncrementHopCount()
	case DiscoveryMessage:
		return msg.IncrementHopCount()
	case UniteMessage:
		return msg.IncrementHopCount()
	case ApplicationMessage:
		return msg.IncrementHopCount()
	default:
		panic(fmt.Sprintf("protocol: unhandled message type %T", m))
	}
}

// readFull decodes private header and body of an unarmed payload into a typed message.
// The payload is owned by the returned message afterwards.
func readFull(h PublicHeader, payload []byte) (FullReadMessage, error) {
	r := newReader(payload)
	ph, err := readPrivateHeader(r)
	if err != nil {
		return nil, err
	}

	switch ph.Type {
	case TypeAcknowledgement:
		return readAcknowledgement(h, r)
	case TypeApplication:
		return readApplication(h, r)
	case TypeDiscovery:
		return readDiscovery(h, r)
	case TypeUnite:
		return readUnite(h, r)
	case TypeHello:
		return readHello(h, r)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, uint8(ph.Type))
	}
}

// IncrementHopCountInPlace advances the hop count byte of an encoded frame without decoding it.
// The authentication tag of armed frames does not cover the hop count, so forwarded frames stay
// valid.
func IncrementHopCountInPlace(frame []byte) error {
	if len(frame) < MagicNumberLength+PublicHeaderLength {
		return truncated("frame", MagicNumberLength+PublicHeaderLength, len(frame))
	}
	if int32(binary.BigEndian.Uint32(frame)) != MagicNumber {
		return ErrInvalidMagic
	}
	idx := MagicNumberLength
	hop := HopCount(frame[idx])
	if hop > MaxHopCount {
		return fmt.Errorf("%w: %d", ErrInvalidHopCount, hop)
	}
	next, err := hop.Increment()
	if err != nil {
		return err
	}
	frame[idx] = byte(next)
	return nil
}

// HopCountOf returns the hop count stored in an encoded frame.
func HopCountOf(frame []byte) (HopCount, error) {
	if len(frame) < MagicNumberLength+1 {
		return 0, truncated("frame", MagicNumberLength+1, len(frame))
	}
	return HopCount(frame[MagicNumberLength]), nil
}
