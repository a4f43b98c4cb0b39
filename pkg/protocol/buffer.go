package protocol

import (
	"encoding/binary"
	"net/netip"
)

// reader is a read cursor over a length-framed buffer. Callers check remaining() before every
// fixed-size read; the read helpers assume enough bytes are left.
type reader struct {
	buf  []byte
	off  int
	mark int
}

func newReader(b []byte) *reader {
	return &reader{buf: b}
}

func (r *reader) remaining() int {
	return len(r.buf) - r.off
}

// markPosition remembers the cursor so resetPosition can restore it.
func (r *reader) markPosition() {
	r.mark = r.off
}

func (r *reader) resetPosition() {
	r.off = r.mark
}

func (r *reader) uint8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) uint16() uint16 {
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) int32() int32 {
	v := int32(binary.BigEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *reader) int64() int64 {
	v := int64(binary.BigEndian.Uint64(r.buf[r.off:]))
	r.off += 8
	return v
}

// next returns the next n bytes without copying.
func (r *reader) next(n int) []byte {
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b
}

// rest returns all remaining bytes without copying.
func (r *reader) rest() []byte {
	return r.next(r.remaining())
}

// ===== ADDRESSES =====

const (
	ipv6Length     = 16
	inetAddrLength = 2 + ipv6Length // port + IPv6(-mapped) address
)

// appendInetAddr writes port followed by the 16 byte IPv6 (or IPv4-mapped) address.
func appendInetAddr(b []byte, ap netip.AddrPort) []byte {
	b = binary.BigEndian.AppendUint16(b, ap.Port())
	a16 := ap.Addr().As16()
	return append(b, a16[:]...)
}

// inetAddr reads port followed by a 16 byte address. IPv4-mapped addresses are unmapped.
func (r *reader) inetAddr() netip.AddrPort {
	port := r.uint16()
	var a16 [ipv6Length]byte
	copy(a16[:], r.next(ipv6Length))
	return netip.AddrPortFrom(netip.AddrFrom16(a16).Unmap(), port)
}

// normalizeAddrPort unmaps IPv4-mapped addresses so values compare equal after a round trip.
func normalizeAddrPort(ap netip.AddrPort) netip.AddrPort {
	if !ap.IsValid() {
		return netip.AddrPort{}
	}
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
