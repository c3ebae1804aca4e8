package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash function names accepted in Config.HashFunc
const (
	HashBcrypt = "bcrypt"
	HashSHA256 = "sha256"
)

// Hasher derives and checks stored password digests
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// NewHasher returns the hasher named by fn
func NewHasher(fn string, bcryptCost int) (Hasher, error) {
	switch fn {
	case "", HashBcrypt:
		if bcryptCost == 0 {
			bcryptCost = bcrypt.DefaultCost
		}
		return bcryptHasher{cost: bcryptCost}, nil
	case HashSHA256:
		return sha256Hasher{}, nil
	default:
		return nil, fmt.Errorf("unknown password hash function %q", fn)
	}
}

type bcryptHasher struct {
	cost int
}

func (h bcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h bcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// sha256Hasher stores the unsalted hex digest used by older account data
type sha256Hasher struct{}

func (sha256Hasher) Hash(password string) (string, error) {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (h sha256Hasher) Compare(hash, password string) bool {
	want, _ := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(hash), []byte(want)) == 1
}
