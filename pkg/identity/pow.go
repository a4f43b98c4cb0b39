package identity

import (
	"math"
	"strconv"

	"github.com/ZentaChain/overlay-node/pkg/crypto"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
)

// DefaultDifficulty is the number of leading hex zeros required for a proof of work.
const DefaultDifficulty = 6

// MaxDifficulty bounds the accepted difficulty to the hex length of a SHA-256 digest.
const MaxDifficulty = 64

// proofOfWorkDigest hashes the hex public key followed by the decimal nonce.
func proofOfWorkDigest(pk protocol.PublicKey, pow protocol.ProofOfWork) string {
	return crypto.HashHex([]byte(pk.String() + strconv.FormatInt(int64(pow), 10)))
}

// Difficulty returns the number of leading hex zeros pow achieves for pk.
func Difficulty(pk protocol.PublicKey, pow protocol.ProofOfWork) int {
	return crypto.LeadingZeros(proofOfWorkDigest(pk, pow))
}

// ValidProofOfWork reports whether pow meets difficulty for pk. A difficulty of 0 accepts any value.
func ValidProofOfWork(pk protocol.PublicKey, pow protocol.ProofOfWork, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return Difficulty(pk, pow) >= difficulty
}

// ComputeProofOfWork searches the smallest nonce, starting at math.MinInt32, that meets
// difficulty for pk. The expected work grows with 16^difficulty.
func ComputeProofOfWork(pk protocol.PublicKey, difficulty int) (protocol.ProofOfWork, error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return 0, ErrInvalidDifficulty
	}
	for nonce := int64(math.MinInt32); nonce <= math.MaxInt32; nonce++ {
		pow := protocol.ProofOfWork(nonce)
		if ValidProofOfWork(pk, pow, difficulty) {
			return pow, nil
		}
	}
	return 0, ErrProofOfWorkNotFound
}
