package protocol

import "encoding/binary"

// DiscoveryLength is the body size of a DiscoveryMessage.
const DiscoveryLength = 16

// DiscoveryMessage announces a node to a super peer. ChildrenTime > 0 asks the recipient to
// register the sender as a child for that many milliseconds.
type DiscoveryMessage struct {
	PublicHeader
	Time         int64
	ChildrenTime int64
}

// NewDiscoveryMessage creates an unarmed discovery message with hop count 0 and a fresh nonce.
func NewDiscoveryMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork,
	time, childrenTime int64) DiscoveryMessage {
	return DiscoveryMessage{
		PublicHeader: PublicHeader{
			NetworkID:   networkID,
			Nonce:       DefaultNonces.Next(),
			Recipient:   recipient,
			Sender:      sender,
			ProofOfWork: proofOfWork,
		},
		Time:         time,
		ChildrenTime: childrenTime,
	}
}

// Type returns TypeDiscovery.
func (m DiscoveryMessage) Type() MessageType {
	return TypeDiscovery
}

// IncrementHopCount returns a copy with hop count advanced by one.
func (m DiscoveryMessage) IncrementHopCount() (DiscoveryMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// AppendFrame appends the encoded message to b.
func (m DiscoveryMessage) AppendFrame(b []byte) []byte {
	return appendFullFrame(b, m)
}

func (m DiscoveryMessage) privateHeader() PrivateHeader {
	return PrivateHeader{Type: TypeDiscovery, ArmedLength: DiscoveryLength}
}

func (m DiscoveryMessage) appendBody(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(m.Time))
	return binary.BigEndian.AppendUint64(b, uint64(m.ChildrenTime))
}

func readDiscovery(h PublicHeader, r *reader) (DiscoveryMessage, error) {
	if r.remaining() < DiscoveryLength {
		return DiscoveryMessage{}, truncated("discovery message", DiscoveryLength, r.remaining())
	}
	return DiscoveryMessage{
		PublicHeader: h,
		Time:         r.int64(),
		ChildrenTime: r.int64(),
	}, nil
}
