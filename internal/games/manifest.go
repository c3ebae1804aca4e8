// Package games maps marketplace artifacts onto the in-tree game engines.
// Artifacts carry parameters for an engine, never executable code.
package games

import (
	"strings"

	"github.com/mcoot/gamelobby-go/internal/games/tetris"
	"github.com/mcoot/gamelobby-go/internal/wire"
)

// EngineTetris is the registered Tetris engine
const EngineTetris = "tetris"

var engines = map[string]bool{
	EngineTetris: true,
}

// KnownEngine reports whether engine has an in-tree implementation
func KnownEngine(engine string) bool {
	return engines[engine]
}

// Gravity configures the base tick period
type Gravity struct {
	DropMs int `json:"dropMs"`
}

// Tempo shortens the tick period by StepMs every EveryLines cleared lines,
// down to MinMs. A zero EveryLines disables tempo changes.
type Tempo struct {
	EveryLines int `json:"everyLines"`
	StepMs     int `json:"stepMs"`
	MinMs      int `json:"minMs"`
}

// DropMs returns the tick period after totalLines cleared lines
func (t Tempo) DropMs(base, totalLines int) int {
	if t.EveryLines <= 0 || t.StepMs <= 0 {
		return base
	}
	ms := base - (totalLines/t.EveryLines)*t.StepMs
	if ms < t.MinMs {
		ms = t.MinMs
	}
	if ms < 1 {
		ms = 1
	}
	return ms
}

// Manifest is the engine configuration carried by an artifact
type Manifest struct {
	Engine  string         `json:"engine"`
	Gravity Gravity        `json:"gravity"`
	Tempo   Tempo          `json:"tempo"`
	BagRule tetris.BagRule `json:"bagRule"`
}

// DefaultManifest returns the configuration used for engine when an
// artifact carries no manifest
func DefaultManifest(engine string, dropMs int, bagRule tetris.BagRule) Manifest {
	return Manifest{
		Engine:  engine,
		Gravity: Gravity{DropMs: dropMs},
		Tempo:   Tempo{EveryLines: 10, StepMs: 100, MinMs: 200},
		BagRule: bagRule,
	}
}

// ParseManifest reads the manifest of artifact name. Bytes that are not a
// manifest select the engine named like the artifact with defaults; any
// field the manifest leaves out keeps its default.
func ParseManifest(name string, data []byte, defaults Manifest) Manifest {
	m := defaults
	m.Engine = strings.ToLower(name)

	var parsed Manifest
	if err := wire.Unmarshal(data, &parsed); err != nil {
		return m
	}
	if parsed.Engine != "" {
		m.Engine = parsed.Engine
	}
	if parsed.Gravity.DropMs > 0 {
		m.Gravity = parsed.Gravity
	}
	if parsed.Tempo.EveryLines > 0 {
		m.Tempo = parsed.Tempo
	}
	if parsed.BagRule.Valid() {
		m.BagRule = parsed.BagRule
	}
	return m
}
