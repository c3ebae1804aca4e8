package tetris

import "math/rand"

// BagRule selects how the piece sequence is drawn
type BagRule string

const (
	// BagRestrictedFirst is a 7-bag whose very first piece is one of I, J, L or T
	BagRestrictedFirst BagRule = "7bag-restricted-first"
	// BagPlain is an unrestricted 7-bag
	BagPlain BagRule = "7bag"
)

// Valid reports whether r is a known bag rule
func (r BagRule) Valid() bool {
	return r == BagRestrictedFirst || r == BagPlain
}

var openingShapes = map[Shape]bool{ShapeI: true, ShapeJ: true, ShapeL: true, ShapeT: true}

// Randomizer deals shapes from shuffled 7-piece bags. Two randomizers built
// from the same seed and rule deal the same sequence.
type Randomizer struct {
	rng   *rand.Rand
	rule  BagRule
	bag   []Shape
	first bool
}

// NewRandomizer creates a randomizer for seed
func NewRandomizer(seed int64, rule BagRule) *Randomizer {
	if !rule.Valid() {
		rule = BagRestrictedFirst
	}
	return &Randomizer{
		rng:   rand.New(rand.NewSource(seed)),
		rule:  rule,
		first: true,
	}
}

// Next returns the next shape
func (r *Randomizer) Next() Shape {
	if len(r.bag) == 0 {
		r.refill()
	}
	s := r.bag[0]
	r.bag = r.bag[1:]
	return s
}

func (r *Randomizer) refill() {
	bag := append([]Shape(nil), Shapes...)
	r.rng.Shuffle(len(bag), func(i, j int) {
		bag[i], bag[j] = bag[j], bag[i]
	})

	if r.first && r.rule == BagRestrictedFirst && !openingShapes[bag[0]] {
		for i := 1; i < len(bag); i++ {
			if openingShapes[bag[i]] {
				bag[0], bag[i] = bag[i], bag[0]
				break
			}
		}
	}
	r.first = false
	r.bag = bag
}
