package tetris

// Shape names one of the seven tetrominoes
type Shape string

const (
	ShapeI Shape = "I"
	ShapeO Shape = "O"
	ShapeT Shape = "T"
	ShapeS Shape = "S"
	ShapeZ Shape = "Z"
	ShapeJ Shape = "J"
	ShapeL Shape = "L"
)

// Shapes lists every shape in bag order
var Shapes = []Shape{ShapeI, ShapeO, ShapeT, ShapeS, ShapeZ, ShapeJ, ShapeL}

type point struct {
	X, Y int
}

// rotations holds the four rotation states of each shape inside a 4x4
// box, x to the right and y downward
var rotations = map[Shape][4][4]point{
	ShapeI: {
		{{0, 1}, {1, 1}, {2, 1}, {3, 1}},
		{{2, 0}, {2, 1}, {2, 2}, {2, 3}},
		{{0, 2}, {1, 2}, {2, 2}, {3, 2}},
		{{1, 0}, {1, 1}, {1, 2}, {1, 3}},
	},
	ShapeO: {
		{{1, 0}, {2, 0}, {1, 1}, {2, 1}},
		{{1, 0}, {2, 0}, {1, 1}, {2, 1}},
		{{1, 0}, {2, 0}, {1, 1}, {2, 1}},
		{{1, 0}, {2, 0}, {1, 1}, {2, 1}},
	},
	ShapeT: {
		{{1, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {1, 1}, {2, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {1, 2}},
		{{1, 0}, {0, 1}, {1, 1}, {1, 2}},
	},
	ShapeS: {
		{{1, 0}, {2, 0}, {0, 1}, {1, 1}},
		{{1, 0}, {1, 1}, {2, 1}, {2, 2}},
		{{1, 1}, {2, 1}, {0, 2}, {1, 2}},
		{{0, 0}, {0, 1}, {1, 1}, {1, 2}},
	},
	ShapeZ: {
		{{0, 0}, {1, 0}, {1, 1}, {2, 1}},
		{{2, 0}, {1, 1}, {2, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {1, 2}, {2, 2}},
		{{1, 0}, {0, 1}, {1, 1}, {0, 2}},
	},
	ShapeJ: {
		{{0, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {2, 0}, {1, 1}, {1, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {2, 2}},
		{{1, 0}, {1, 1}, {0, 2}, {1, 2}},
	},
	ShapeL: {
		{{2, 0}, {0, 1}, {1, 1}, {2, 1}},
		{{1, 0}, {1, 1}, {1, 2}, {2, 2}},
		{{0, 1}, {1, 1}, {2, 1}, {0, 2}},
		{{0, 0}, {1, 0}, {1, 1}, {1, 2}},
	},
}

// kicks are the offsets tried in order when a rotation does not fit
var kicks = []point{{0, 0}, {-1, 0}, {1, 0}, {0, -1}}

// Piece is a shape placed on the board
type Piece struct {
	Shape    Shape `json:"shape"`
	Rotation int   `json:"rotation"`
	X        int   `json:"x"`
	Y        int   `json:"y"`
}

// Cells returns the board coordinates the piece covers
func (p Piece) Cells() []point {
	box := rotations[p.Shape][p.Rotation&3]
	cells := make([]point, len(box))
	for i, c := range box {
		cells[i] = point{X: p.X + c.X, Y: p.Y + c.Y}
	}
	return cells
}

func (p Piece) moved(dx, dy int) Piece {
	p.X += dx
	p.Y += dy
	return p
}

func (p Piece) rotated(dir int) Piece {
	p.Rotation = (p.Rotation + dir + 4) % 4
	return p
}
