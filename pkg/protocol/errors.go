package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidMessageFormat is the root of all format errors. A datagram failing with a format error
// is dropped; it is never answered.
var ErrInvalidMessageFormat = errors.New("invalid message format")

// Format errors
var (
	ErrInvalidMagic     = fmt.Errorf("%w: magic number mismatch", ErrInvalidMessageFormat)
	ErrTruncated        = fmt.Errorf("%w: not enough readable bytes", ErrInvalidMessageFormat)
	ErrUnknownType      = fmt.Errorf("%w: unknown message type", ErrInvalidMessageFormat)
	ErrInvalidPort      = fmt.Errorf("%w: invalid port", ErrInvalidMessageFormat)
	ErrInvalidAddress   = fmt.Errorf("%w: invalid address", ErrInvalidMessageFormat)
	ErrInvalidPublicKey = fmt.Errorf("%w: invalid public key", ErrInvalidMessageFormat)
	ErrInvalidHopCount  = fmt.Errorf("%w: hop count out of range", ErrInvalidMessageFormat)
)

// ErrIntegrity is returned when an armed message fails authentication. The same ciphertext will
// never authenticate, so it must not be retried.
var ErrIntegrity = errors.New("message authentication failed")

// Invariant violations
var (
	ErrHopCountOverflow = errors.New("hop count overflow")
	ErrHopCountRange    = errors.New("hop count out of range")
	ErrInvalidNonce     = errors.New("invalid nonce length")
)

func truncated(what string, want, have int) error {
	return fmt.Errorf("%w: %s requires %d readable bytes, only %d left", ErrTruncated, what, want, have)
}
