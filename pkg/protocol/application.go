package protocol

import "fmt"

// MaxApplicationPayloadLength is the largest payload whose length fits the private header.
const MaxApplicationPayloadLength = MaxArmedLength

// ApplicationMessage carries opaque user data. The message owns Payload: constructors and the
// decoder keep the slice they are given without copying, so callers must not modify it afterwards.
type ApplicationMessage struct {
	PublicHeader
	Payload []byte
}

// NewApplicationMessage creates an unarmed application message with hop count 0 and a fresh
// nonce. Ownership of payload moves into the message.
func NewApplicationMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork,
	payload []byte) (ApplicationMessage, error) {
	if len(payload) > MaxApplicationPayloadLength {
		return ApplicationMessage{}, fmt.Errorf("%w: payload of %d bytes exceeds %d",
			ErrInvalidMessageFormat, len(payload), MaxApplicationPayloadLength)
	}
	return ApplicationMessage{
		PublicHeader: PublicHeader{
			NetworkID:   networkID,
			Nonce:       DefaultNonces.Next(),
			Recipient:   recipient,
			Sender:      sender,
			ProofOfWork: proofOfWork,
		},
		Payload: payload,
	}, nil
}

// Type returns TypeApplication.
func (m ApplicationMessage) Type() MessageType {
	return TypeApplication
}

// IncrementHopCount returns a copy with hop count advanced by one. The copy shares the payload.
func (m ApplicationMessage) IncrementHopCount() (ApplicationMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// AppendFrame appends the encoded message to b.
func (m ApplicationMessage) AppendFrame(b []byte) []byte {
	return appendFullFrame(b, m)
}

// The armed length covers the whole payload.
func (m ApplicationMessage) privateHeader() PrivateHeader {
	return PrivateHeader{Type: TypeApplication, ArmedLength: uint16(len(m.Payload))}
}

func (m ApplicationMessage) appendBody(b []byte) []byte {
	return append(b, m.Payload...)
}

func readApplication(h PublicHeader, r *reader) (ApplicationMessage, error) {
	m := ApplicationMessage{PublicHeader: h}
	if r.remaining() > 0 {
		m.Payload = r.rest()
	}
	return m, nil
}
