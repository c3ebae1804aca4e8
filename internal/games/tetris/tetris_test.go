package tetris

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type EngineSuite struct {
	suite.Suite
	player *Player
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.player = NewPlayer(42, BagRestrictedFirst)
}

func (s *EngineSuite) occupied() int {
	n := 0
	for y := range s.player.board {
		for _, cell := range s.player.board[y] {
			if cell != 0 {
				n++
			}
		}
	}
	return n
}

func (s *EngineSuite) requireNoFullRows() {
	for y := 0; y < Height; y++ {
		s.Require().False(s.player.board.rowFull(y), "row %d is full", y)
	}
}

// Randomizer tests

func (s *EngineSuite) TestSameSeedSameSequence() {
	a := NewRandomizer(7, BagRestrictedFirst)
	b := NewRandomizer(7, BagRestrictedFirst)
	for i := 0; i < 50; i++ {
		s.Equal(a.Next(), b.Next())
	}
}

func (s *EngineSuite) TestEveryBagHoldsEachShapeOnce() {
	for _, rule := range []BagRule{BagRestrictedFirst, BagPlain} {
		r := NewRandomizer(99, rule)
		for bag := 0; bag < 5; bag++ {
			seen := make(map[Shape]int)
			for i := 0; i < len(Shapes); i++ {
				seen[r.Next()]++
			}
			for _, shape := range Shapes {
				s.Equal(1, seen[shape], "rule %s bag %d shape %s", rule, bag, shape)
			}
		}
	}
}

func (s *EngineSuite) TestRestrictedFirstPiece() {
	for seed := int64(0); seed < 100; seed++ {
		first := NewRandomizer(seed, BagRestrictedFirst).Next()
		s.Contains([]Shape{ShapeI, ShapeJ, ShapeL, ShapeT}, first, "seed %d", seed)
	}
}

func (s *EngineSuite) TestUnknownRuleFallsBackToRestricted() {
	s.Equal(BagRestrictedFirst, NewRandomizer(1, "weird").rule)
}

// Spawn and movement tests

func (s *EngineSuite) TestNewPlayerSpawns() {
	state := s.player.State()

	s.Require().NotNil(state.Active)
	s.Equal(3, state.Active.X)
	s.Equal(0, state.Active.Y)
	s.Equal(0, state.Active.Rotation)
	s.Len(state.Next, PreviewSize)
	s.False(state.GameOver)
	s.Zero(state.Score)
}

func (s *EngineSuite) TestPlayersWithSameSeedMatch() {
	other := NewPlayer(42, BagRestrictedFirst)
	s.Equal(s.player.State(), other.State())
}

func (s *EngineSuite) TestShiftStopsAtWall() {
	s.player.active = Piece{Shape: ShapeT, Rotation: 0, X: 3, Y: 5}

	for i := 0; i < 3; i++ {
		s.True(s.player.Apply(ActionLeft))
	}
	s.False(s.player.Apply(ActionLeft))
	s.Equal(0, s.player.active.X)

	for i := 0; i < 7; i++ {
		s.True(s.player.Apply(ActionRight))
	}
	s.False(s.player.Apply(ActionRight))
	s.Equal(7, s.player.active.X)
}

func (s *EngineSuite) TestRotationUsesWallKick() {
	s.player.active = Piece{Shape: ShapeT, Rotation: 1, X: -1, Y: 5}

	s.True(s.player.Apply(ActionCW))

	s.Equal(Piece{Shape: ShapeT, Rotation: 2, X: 0, Y: 5}, s.player.active)
}

func (s *EngineSuite) TestRotationCCWWraps() {
	s.player.active = Piece{Shape: ShapeJ, Rotation: 0, X: 3, Y: 5}

	s.True(s.player.Apply(ActionCCW))
	s.Equal(3, s.player.active.Rotation)
}

func (s *EngineSuite) TestBlockedRotationIsNoop() {
	s.player.active = Piece{Shape: ShapeI, Rotation: 0, X: 3, Y: 18}

	s.False(s.player.Apply(ActionCW))
	s.Equal(Piece{Shape: ShapeI, Rotation: 0, X: 3, Y: 18}, s.player.active)
}

func (s *EngineSuite) TestUnknownActionIsNoop() {
	before := s.player.State()
	s.False(s.player.Apply("JUMP"))
	s.Equal(before, s.player.State())
}

// Drop, lock and scoring tests

func (s *EngineSuite) TestSoftDropLocksAtFloor() {
	s.player.active = Piece{Shape: ShapeO, Rotation: 0, X: 3, Y: 18}

	s.True(s.player.Apply(ActionSoftDrop))

	s.Equal(uint8(1), s.player.board[19][4])
	s.Equal(uint8(1), s.player.board[18][5])
	s.Equal(4, s.occupied())
	s.Equal(0, s.player.active.Y)
	s.Zero(s.player.Score())
}

func (s *EngineSuite) TestTickMovesDown() {
	y := s.player.active.Y
	s.True(s.player.Tick())
	s.Equal(y+1, s.player.active.Y)
}

func (s *EngineSuite) TestHardDropClearsLine() {
	for _, x := range []int{0, 1, 2, 7, 8, 9} {
		s.player.board[19][x] = 1
	}
	s.player.board[18][0] = 1
	s.player.active = Piece{Shape: ShapeI, Rotation: 0, X: 3, Y: 0}

	s.True(s.player.Apply(ActionHardDrop))

	s.Equal(1, s.player.Lines())
	s.Equal(HardDropPoints*18+LinePoints, s.player.Score())
	s.Equal(uint8(1), s.player.board[19][0])
	s.Equal(1, s.occupied())
	s.requireNoFullRows()
}

func (s *EngineSuite) TestClearingSeveralRows() {
	for y := 16; y < Height; y++ {
		for x := 0; x < Width; x++ {
			if x != 4 {
				s.player.board[y][x] = 1
			}
		}
	}
	s.player.active = Piece{Shape: ShapeI, Rotation: 3, X: 3, Y: 0}

	s.True(s.player.Apply(ActionHardDrop))

	s.Equal(4, s.player.Lines())
	s.Equal(HardDropPoints*16+4*LinePoints, s.player.Score())
	s.Zero(s.occupied())
}

func (s *EngineSuite) TestStackingToTheTopEndsGame() {
	score := 0
	for i := 0; i < 200 && !s.player.GameOver(); i++ {
		s.player.Apply(ActionHardDrop)
		s.GreaterOrEqual(s.player.Score(), score)
		score = s.player.Score()
		s.requireNoFullRows()
	}

	s.Require().True(s.player.GameOver())
	s.Zero(s.player.Lines())

	before := s.player.State()
	s.False(s.player.Apply(ActionLeft))
	s.False(s.player.Tick())
	s.Equal(before, s.player.State())
	s.True(s.player.State().GameOver)
}

// Hold tests

func (s *EngineSuite) TestHoldStashesThenSwaps() {
	s.player.active = Piece{Shape: ShapeT, X: spawnX, Y: spawnY}
	s.player.queue = []Shape{ShapeI, ShapeO, ShapeS}

	s.True(s.player.Apply(ActionHold))
	s.Equal(ShapeT, s.player.hold)
	s.Equal(ShapeI, s.player.active.Shape)
	s.Equal([]Shape{ShapeO, ShapeS}, s.player.queue[:2])

	s.False(s.player.Apply(ActionHold), "second hold on the same piece")

	s.True(s.player.Apply(ActionHardDrop))
	s.Equal(ShapeO, s.player.active.Shape)

	s.True(s.player.Apply(ActionHold))
	s.Equal(ShapeO, s.player.hold)
	s.Equal(ShapeT, s.player.active.Shape)
	s.Equal(spawnY, s.player.active.Y)
}

// Sequence tests

func (s *EngineSuite) TestAcceptIsMonotonic() {
	s.True(s.player.Accept(1))
	s.False(s.player.Accept(1))
	s.True(s.player.Accept(5))
	s.False(s.player.Accept(3))
	s.Equal(int64(5), s.player.LastSeq())
}

// Encoding tests

func (s *EngineSuite) TestEmptyBoardRLE() {
	var b Board
	rows := strings.Split(EncodeRLE(&b), "|")
	s.Len(rows, Height)
	for _, row := range rows {
		s.Equal("0000000000", row)
	}
}

func (s *EngineSuite) TestRLERoundTrip() {
	var b Board
	b[19] = [Width]uint8{1, 1, 0, 1, 1, 1, 1, 1, 1, 1}
	b[0][9] = 1

	encoded := EncodeRLE(&b)
	s.True(strings.HasSuffix(encoded, "|1101111111"))

	decoded, err := DecodeRLE(encoded)
	s.Require().NoError(err)
	s.Equal(b, decoded)
}

func (s *EngineSuite) TestDecodeRLERejectsBadInput() {
	_, err := DecodeRLE("0000")
	s.Error(err)

	rows := make([]string, Height)
	for i := range rows {
		rows[i] = "000000000x"
	}
	_, err = DecodeRLE(strings.Join(rows, "|"))
	s.Error(err)
}

func (s *EngineSuite) TestGridRoundTrip() {
	s.player.board[10][3] = 1

	b, err := BoardFromGrid(s.player.board.Grid())
	s.Require().NoError(err)
	s.Equal(s.player.board, b)
}
