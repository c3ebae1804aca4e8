package mocks

import (
	"fmt"
	"sync"

	"github.com/mcoot/gamelobby-go/internal/dependencies/random"
)

// MockRandom returns queued values in order. An exhausted Intn or Seed
// queue yields 0. Exhausted String and UUID queues fall back to a counter
// so generated identifiers stay unique.
type MockRandom struct {
	mu sync.Mutex

	IntnResults []int
	intnIndex   int

	StringResults []string
	stringIndex   int

	UUIDResults []string
	uuidIndex   int

	SeedResults []int64
	seedIndex   int

	fallback int
}

var _ random.Random = (*MockRandom)(nil)

func NewMockRandom() *MockRandom {
	return &MockRandom{}
}

// Intn returns the next queued result, or 0 if none remaining
func (r *MockRandom) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.intnIndex >= len(r.IntnResults) {
		return 0
	}
	result := r.IntnResults[r.intnIndex]
	r.intnIndex++
	return result
}

// String returns the next queued result
func (r *MockRandom) String(length int, alphabet string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stringIndex >= len(r.StringResults) {
		r.fallback++
		return fmt.Sprintf("%0*d", length, r.fallback)
	}
	result := r.StringResults[r.stringIndex]
	r.stringIndex++
	return result
}

// UUID returns the next queued result
func (r *MockRandom) UUID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.uuidIndex >= len(r.UUIDResults) {
		r.fallback++
		return fmt.Sprintf("00000000-0000-4000-8000-%012d", r.fallback)
	}
	result := r.UUIDResults[r.uuidIndex]
	r.uuidIndex++
	return result
}

// Seed returns the next queued seed, or 0 if none remaining
func (r *MockRandom) Seed() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seedIndex >= len(r.SeedResults) {
		return 0
	}
	result := r.SeedResults[r.seedIndex]
	r.seedIndex++
	return result
}

// QueueSeed adds values to the Seed result queue
func (r *MockRandom) QueueSeed(values ...int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SeedResults = append(r.SeedResults, values...)
}

// QueueIntn adds values to the Intn result queue
func (r *MockRandom) QueueIntn(values ...int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults = append(r.IntnResults, values...)
}

// QueueString adds values to the String result queue
func (r *MockRandom) QueueString(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StringResults = append(r.StringResults, values...)
}

// QueueUUID adds values to the UUID result queue
func (r *MockRandom) QueueUUID(values ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UUIDResults = append(r.UUIDResults, values...)
}

// Reset clears all queued results
func (r *MockRandom) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.IntnResults, r.intnIndex = nil, 0
	r.StringResults, r.stringIndex = nil, 0
	r.UUIDResults, r.uuidIndex = nil, 0
	r.SeedResults, r.seedIndex = nil, 0
	r.fallback = 0
}
