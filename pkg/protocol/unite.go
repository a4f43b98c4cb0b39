package protocol

import (
	"fmt"
	"net/netip"
)

// UniteLength is the body size of a UniteMessage: public key, port and 16 byte address.
const UniteLength = PublicKeyLength + inetAddrLength

// UniteMessage is sent by a super peer to tell a node the public endpoint of another node
// (Address) so both can attempt a direct connection.
type UniteMessage struct {
	PublicHeader
	Address  PublicKey
	Endpoint netip.AddrPort
}

// NewUniteMessage creates an unarmed unite message with hop count 0 and a fresh nonce.
// It fails with ErrInvalidAddress for an invalid endpoint and ErrInvalidPort for port 0.
func NewUniteMessage(networkID int32, recipient, sender PublicKey, proofOfWork ProofOfWork,
	address PublicKey, endpoint netip.AddrPort) (UniteMessage, error) {
	h := PublicHeader{
		NetworkID:   networkID,
		Nonce:       DefaultNonces.Next(),
		Recipient:   recipient,
		Sender:      sender,
		ProofOfWork: proofOfWork,
	}
	return newUniteMessage(h, address, endpoint)
}

func newUniteMessage(h PublicHeader, address PublicKey, endpoint netip.AddrPort) (UniteMessage, error) {
	if !endpoint.Addr().IsValid() {
		return UniteMessage{}, ErrInvalidAddress
	}
	if endpoint.Port() == 0 {
		return UniteMessage{}, fmt.Errorf("%w: 0", ErrInvalidPort)
	}
	return UniteMessage{
		PublicHeader: h,
		Address:      address,
		Endpoint:     normalizeAddrPort(endpoint),
	}, nil
}

// Type returns TypeUnite.
func (m UniteMessage) Type() MessageType {
	return TypeUnite
}

// IncrementHopCount returns a copy with hop count advanced by one.
func (m UniteMessage) IncrementHopCount() (UniteMessage, error) {
	h, err := m.PublicHeader.incremented()
	if err != nil {
		return m, err
	}
	m.PublicHeader = h
	return m, nil
}

// AppendFrame appends the encoded message to b.
func (m UniteMessage) AppendFrame(b []byte) []byte {
	return appendFullFrame(b, m)
}

func (m UniteMessage) privateHeader() PrivateHeader {
	return PrivateHeader{Type: TypeUnite, ArmedLength: UniteLength}
}

func (m UniteMessage) appendBody(b []byte) []byte {
	b = append(b, m.Address[:]...)
	return appendInetAddr(b, m.Endpoint)
}

func readUnite(h PublicHeader, r *reader) (UniteMessage, error) {
	if r.remaining() < UniteLength {
		return UniteMessage{}, truncated("unite message", UniteLength, r.remaining())
	}
	address, err := PublicKeyFromBytes(r.next(PublicKeyLength))
	if err != nil {
		return UniteMessage{}, err
	}
	return newUniteMessage(h, address, r.inetAddr())
}
