package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header sizes
const (
	// PublicHeaderLength is the encoded size of a PublicHeader (without magic number).
	PublicHeaderLength = 1 + 1 + 4 + NonceLength + PublicKeyLength + PublicKeyLength + 4

	// AuthTagLength is the size of the AEAD associated data: the public header without hop count.
	AuthTagLength = PublicHeaderLength - 1

	// PrivateHeaderLength is the encoded size of a PrivateHeader.
	PrivateHeaderLength = 1 + 2

	// MaxArmedLength is the largest body length the private header can describe.
	MaxArmedLength = 1<<16 - 1
)

// PublicHeader is the unencrypted envelope of every message.
//
// Wire layout (big-endian):
//
//	hopCount:u8 | armed:u8 | networkId:i32 | nonce:24 | recipient:32 | sender:32 | proofOfWork:i32
//
// An absent recipient is encoded as the all-zero key. The hop count is kept apart from the rest of
// the header so that forwarders can increment it without invalidating the authentication tag.
type PublicHeader struct {
	HopCount    HopCount
	Armed       bool
	NetworkID   int32
	Nonce       Nonce
	Recipient   PublicKey
	Sender      PublicKey
	ProofOfWork ProofOfWork
}

// Header returns the public header. Message variants inherit it by embedding.
func (h PublicHeader) Header() PublicHeader {
	return h
}

// HasRecipient reports whether the header names a recipient.
func (h PublicHeader) HasRecipient() bool {
	return !h.Recipient.IsZero()
}

// AppendTo appends the encoded header to b. When withHopCount is false the hop count byte is
// omitted, which yields the AEAD associated data.
func (h PublicHeader) AppendTo(b []byte, withHopCount bool) []byte {
	if withHopCount {
		b = append(b, byte(h.HopCount))
	}
	if h.Armed {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	b = binary.BigEndian.AppendUint32(b, uint32(h.NetworkID))
	b = append(b, h.Nonce[:]...)
	b = append(b, h.Recipient[:]...)
	b = append(b, h.Sender[:]...)
	b = binary.BigEndian.AppendUint32(b, uint32(h.ProofOfWork))
	return b
}

// AuthTag returns the 97 byte associated data used when arming and disarming.
func (h PublicHeader) AuthTag() []byte {
	return h.AppendTo(make([]byte, 0, AuthTagLength), false)
}

// DecodePublicHeader decodes a header from the first PublicHeaderLength bytes of b.
func DecodePublicHeader(b []byte) (PublicHeader, error) {
	return readPublicHeader(newReader(b))
}

func readPublicHeader(r *reader) (PublicHeader, error) {
	var h PublicHeader
	if r.remaining() < PublicHeaderLength {
		return h, truncated("public header", PublicHeaderLength, r.remaining())
	}

	hopCount := r.uint8()
	if hopCount > uint8(MaxHopCount) {
		return h, fmt.Errorf("%w: %d", ErrInvalidHopCount, hopCount)
	}
	h.HopCount = HopCount(hopCount)

	// any nonzero flag means armed; encoding writes 1
	h.Armed = r.uint8() != 0

	h.NetworkID = r.int32()
	copy(h.Nonce[:], r.next(NonceLength))

	recipient, err := PublicKeyFromBytes(r.next(PublicKeyLength))
	if err != nil {
		return h, err
	}
	h.Recipient = recipient

	sender, err := PublicKeyFromBytes(r.next(PublicKeyLength))
	if err != nil {
		return h, err
	}
	h.Sender = sender

	h.ProofOfWork = ProofOfWork(r.int32())
	return h, nil
}

// incremented returns a copy of h with hop count advanced by one.
func (h PublicHeader) incremented() (PublicHeader, error) {
	next, err := h.HopCount.Increment()
	if err != nil {
		return h, err
	}
	h.HopCount = next
	return h, nil
}

// ===== PRIVATE HEADER =====

// PrivateHeader precedes the body and is always encrypted in armed messages.
//
// Wire layout: type:u8 | armedLength:u16.
//
// ArmedLength is the number of body bytes that are encrypted separately when arming. Zero means
// the whole body is carried after the private header without a second encryption.
type PrivateHeader struct {
	Type        MessageType
	ArmedLength uint16
}

// AppendTo appends the encoded header to b.
func (h PrivateHeader) AppendTo(b []byte) []byte {
	b = append(b, byte(h.Type))
	return binary.BigEndian.AppendUint16(b, h.ArmedLength)
}

// DecodePrivateHeader decodes a header from the first PrivateHeaderLength bytes of b.
func DecodePrivateHeader(b []byte) (PrivateHeader, error) {
	return readPrivateHeader(newReader(b))
}

func readPrivateHeader(r *reader) (PrivateHeader, error) {
	var h PrivateHeader
	if r.remaining() < PrivateHeaderLength {
		return h, truncated("private header", PrivateHeaderLength, r.remaining())
	}
	h.Type = MessageType(r.uint8())
	if !h.Type.Valid() {
		return h, fmt.Errorf("%w: %d", ErrUnknownType, uint8(h.Type))
	}
	h.ArmedLength = r.uint16()
	return h, nil
}

// peekArmedLength reads the armed length of the private header at the cursor and restores the
// cursor afterwards.
func peekArmedLength(r *reader) (uint16, error) {
	r.markPosition()
	defer r.resetPosition()
	h, err := readPrivateHeader(r)
	if err != nil {
		return 0, err
	}
	return h.ArmedLength, nil
}
