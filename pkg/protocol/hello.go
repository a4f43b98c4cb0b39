package protocol

import (
	"crypto/ed25519"
	"encoding/binary"
	"net/netip"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
)

// Hello body sizes
const (
	// HelloUnsignedLength is the minimum body size: time and children time.
	HelloUnsignedLength = 16

	// HelloSignedLength is the body size of a signed hello without private addresses.
	HelloSignedLength = HelloUnsignedLength + crypto.SignatureLength
)

// HelloMessage keeps a path alive and, with ChildrenTime > 0, asks a super peer to register the
// sender as a child. Join requests carry an Ed25519 signature of the sender over the recipient,
// sender, time and children time.
//
// Signature and PrivateAddresses are nil when absent.
type HelloMessage struct {
	PublicHeader
	Time             int64
	ChildrenTime     int64
	Signature        []byte
	PrivateAddresses []netip.AddrPort
}

// NewHelloMessage creates an unarmed hello with hop count 0 and a fresh nonce. When childrenTime
// is positive the message is signed with secretKey, which must belong to sender.
func NewHelloMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork,
	time, childrenTime int64, secretKey ed25519.PrivateKey, privateAddresses []netip.AddrPort) (HelloMessage, error) {
	m := HelloMessage{
		PublicHeader: PublicHeader{
			NetworkID:   networkID,
			Nonce:       DefaultNonces.Next(),
			Recipient:   recipient,
			Sender:      sender,
			ProofOfWork: proofOfWork,
		},
		Time:             time,
		ChildrenTime:     childrenTime,
		PrivateAddresses: dedupAddrPorts(privateAddresses),
	}
	if childrenTime > 0 {
		sig, err := crypto.Sign(m.signedAttributes(), secretKey)
		if err != nil {
			return HelloMessage{}, err
		}
		m.Signature = sig
	}
	return m, nil
}

// NewPingMessage creates an unsigned hello that only keeps the path to recipient alive.
func NewPingMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork, time int64) HelloMessage {
	m, _ := NewHelloMessage(networkID, recipient, sender, proofOfWork, time, 0, nil, nil)
	return m
}

// IsSigned reports whether the message carries a signature.
func (m HelloMessage) IsSigned() bool {
	return len(m.Signature) > 0
}

// VerifySignature checks the signature against the sender key. Unsigned messages never verify.
// Decoding does not call this; receivers decide when a join needs to be authenticated.
func (m HelloMessage) VerifySignature() bool {
	if !m.IsSigned() {
		return false
	}
	return crypto.VerifySignature(m.Signature, m.signedAttributes(), m.Sender.Bytes())
}

// signedAttributes returns recipient, sender, time and children time. An absent recipient is
// covered as 32 zero bytes.
func (m HelloMessage) signedAttributes() []byte {
	b := make([]byte, 0, 2*PublicKeyLength+16)
	b = append(b, m.Recipient[:]...)
	b = append(b, m.Sender[:]...)
	b = binary.BigEndian.AppendUint64(b, uint64(m.Time))
	return binary.BigEndian.AppendUint64(b, uint64(m.ChildrenTime))
}

// Type returns TypeHello.
func (m HelloMessage) Type() MessageType {
	return TypeHello
}

// IncrementHopCount returns a copy with hop count advanced by one.
func (m HelloMessage) IncrementHopCount() (HelloMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// AppendFrame appends the encoded message to b.
func (m HelloMessage) AppendFrame(b []byte) []byte {
	return appendFullFrame(b, m)
}

func (m HelloMessage) bodyLength() int {
	n := HelloUnsignedLength + len(m.Signature)
	return n + len(m.PrivateAddresses)*inetAddrLength
}

func (m HelloMessage) privateHeader() PrivateHeader {
	return PrivateHeader{Type: TypeHello, ArmedLength: uint16(m.bodyLength())}
}

func (m HelloMessage) appendBody(b []byte) []byte {
	b = binary.BigEndian.AppendUint64(b, uint64(m.Time))
	b = binary.BigEndian.AppendUint64(b, uint64(m.ChildrenTime))
	b = append(b, m.Signature...)
	for _, ap := range m.PrivateAddresses {
		b = appendInetAddr(b, ap)
	}
	return b
}

func readHello(h PublicHeader, r *reader) (HelloMessage, error) {
	if r.remaining() < HelloUnsignedLength {
		return HelloMessage{}, truncated("hello message", HelloUnsignedLength, r.remaining())
	}
	m := HelloMessage{
		PublicHeader: h,
		Time:         r.int64(),
		ChildrenTime: r.int64(),
	}

	// join requests from older nodes may lack the signature
	if m.ChildrenTime > 0 && r.remaining() >= crypto.SignatureLength {
		m.Signature = append([]byte(nil), r.next(crypto.SignatureLength)...)
	}

	var addrs []netip.AddrPort
	for r.remaining() >= inetAddrLength {
		addrs = append(addrs, r.inetAddr())
	}
	m.PrivateAddresses = dedupAddrPorts(addrs)
	return m, nil
}

// dedupAddrPorts normalizes and removes duplicates while keeping the first occurrence order.
// It returns nil for an empty input.
func dedupAddrPorts(in []netip.AddrPort) []netip.AddrPort {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[netip.AddrPort]struct{}, len(in))
	out := make([]netip.AddrPort, 0, len(in))
	for _, ap := range in {
		ap = normalizeAddrPort(ap)
		if !ap.IsValid() {
			continue
		}
		if _, ok := seen[ap]; ok {
			continue
		}
		seen[ap] = struct{}{}
		out = append(out, ap)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
