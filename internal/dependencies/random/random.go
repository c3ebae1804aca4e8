package random

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"

	"github.com/google/uuid"
)

// Random is the source of room ids, artifact versions, download tokens and
// game seeds
type Random interface {
	// Intn returns a value in [0, n)
	Intn(n int) int

	// String returns length characters drawn from alphabet
	String(length int, alphabet string) string

	// UUID returns a canonical version 4 UUID
	UUID() string

	// Seed returns a non-negative seed for a game instance's piece stream
	Seed() int64
}

// CryptoRandom draws from crypto/rand
type CryptoRandom struct{}

func New() *CryptoRandom {
	return &CryptoRandom{}
}

func (r *CryptoRandom) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	result, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(result.Int64())
}

func (r *CryptoRandom) String(length int, alphabet string) string {
	if length <= 0 || alphabet == "" {
		return ""
	}
	out := make([]byte, length)
	for i := range out {
		out[i] = alphabet[r.Intn(len(alphabet))]
	}
	return string(out)
}

func (r *CryptoRandom) UUID() string {
	return uuid.NewString()
}

func (r *CryptoRandom) Seed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b[:]) >> 1)
}
