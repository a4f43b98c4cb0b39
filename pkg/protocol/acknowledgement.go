package protocol

import (
	"encoding/binary"
	"net/netip"
)

// AcknowledgementLength is the minimum body size of an AcknowledgementMessage.
const AcknowledgementLength = 8

// AcknowledgementMessage answers a HelloMessage. Time echoes the acknowledged hello. Endpoint is
// the sender's address as observed by the acknowledging node; it is optional on the wire and the
// zero value means absent.
type AcknowledgementMessage struct {
	PublicHeader
	Time     int64
	Endpoint netip.AddrPort
}

// NewAcknowledgementMessage creates an unarmed acknowledgement with hop count 0 and a fresh nonce.
func NewAcknowledgementMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork,
	time int64, endpoint netip.AddrPort) AcknowledgementMessage {
	return AcknowledgementMessage{
		PublicHeader: PublicHeader{
			NetworkID:   networkID,
			Nonce:       DefaultNonces.Next(),
			Recipient:   recipient,
			Sender:      sender,
			ProofOfWork: proofOfWork,
		},
		Time:     time,
		Endpoint: normalizeAddrPort(endpoint),
	}
}

// HasEndpoint reports whether the observed endpoint is present.
func (m AcknowledgementMessage) HasEndpoint() bool {
	return m.Endpoint.IsValid()
}

// Type returns TypeAcknowledgement.
func (m AcknowledgementMessage) Type() MessageType {
	return TypeAcknowledgement
}

// IncrementHopCount returns a copy with hop count advanced by one.
func (m AcknowledgementMessage) IncrementHopCount() (AcknowledgementMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// AppendFrame appends the encoded message to b.
func (m AcknowledgementMessage) AppendFrame(b []byte) []byte {
	return appendFullFrame(b, m)
}

func (m AcknowledgementMessage) bodyLength() int {
	if m.HasEndpoint() {
		return AcknowledgementLength + inetAddrLength
	}
	return AcknowledgementLength
}

func (m AcknowledgementMessage) privateHeader() PrivateHeader {
	return PrivateHeader{Type: TypeAcknowledgement, ArmedLength: uint16(m.bodyLength())}
}

func (m AcknowledgementMessage) appendBody(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(m.Time))
	if m.HasEndpoint() {
		b = appendInetAddr(b, m.Endpoint)
	}
	return b
}

func readAcknowledgement(h PublicHeader, r *reader) (AcknowledgementMessage, error) {
	if r.remaining() < AcknowledgementLength {
		return AcknowledgementMessage{}, truncated("acknowledgement message", AcknowledgementLength, r.remaining())
	}
	m := AcknowledgementMessage{PublicHeader: h}
	m.Time = r.int64()
	// the endpoint was added later; older nodes omit it
	if r.remaining() >= inetAddrLength {
		m.Endpoint = r.inetAddr()
	}
	return m, nil
}
