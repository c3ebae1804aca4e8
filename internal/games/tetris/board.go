package tetris

import (
	"fmt"
	"strings"
)

const (
	Width  = 10
	Height = 20
)

// Board is the locked playfield. A cell is 0 when empty and non-zero when
// occupied; the active piece is never written into it.
type Board [Height][Width]uint8

// fits reports whether every cell of p is inside the field and empty
func (b *Board) fits(p Piece) bool {
	for _, c := range p.Cells() {
		if c.X < 0 || c.X >= Width || c.Y < 0 || c.Y >= Height {
			return false
		}
		if b[c.Y][c.X] != 0 {
			return false
		}
	}
	return true
}

func (b *Board) lock(p Piece) {
	for _, c := range p.Cells() {
		b[c.Y][c.X] = 1
	}
}

// clearLines removes full rows, shifting the rows above down, and returns
// how many were removed
func (b *Board) clearLines() int {
	cleared := 0
	dst := Height - 1
	for src := Height - 1; src >= 0; src-- {
		if b.rowFull(src) {
			cleared++
			continue
		}
		b[dst] = b[src]
		dst--
	}
	for ; dst >= 0; dst-- {
		b[dst] = [Width]uint8{}
	}
	return cleared
}

func (b *Board) rowFull(y int) bool {
	for x := 0; x < Width; x++ {
		if b[y][x] == 0 {
			return false
		}
	}
	return true
}

// Grid returns the board as rows of ints
func (b *Board) Grid() [][]int {
	grid := make([][]int, Height)
	for y := range b {
		row := make([]int, Width)
		for x, cell := range b[y] {
			row[x] = int(cell)
		}
		grid[y] = row
	}
	return grid
}

// EncodeRLE renders the board row-major as digit strings joined by "|"
func EncodeRLE(b *Board) string {
	var sb strings.Builder
	sb.Grow(Height * (Width + 1))
	for y := range b {
		if y > 0 {
			sb.WriteByte('|')
		}
		for _, cell := range b[y] {
			sb.WriteByte('0' + cell%10)
		}
	}
	return sb.String()
}

// DecodeRLE parses the output of EncodeRLE
func DecodeRLE(s string) (Board, error) {
	var b Board
	rows := strings.Split(s, "|")
	if len(rows) != Height {
		return b, fmt.Errorf("board has %d rows, want %d", len(rows), Height)
	}
	for y, row := range rows {
		if len(row) != Width {
			return b, fmt.Errorf("row %d has %d cells, want %d", y, len(row), Width)
		}
		for x := 0; x < Width; x++ {
			d := row[x]
			if d < '0' || d > '9' {
				return b, fmt.Errorf("row %d: invalid cell %q", y, d)
			}
			b[y][x] = d - '0'
		}
	}
	return b, nil
}

// BoardFromGrid converts a grid snapshot back into a Board
func BoardFromGrid(grid [][]int) (Board, error) {
	var b Board
	if len(grid) != Height {
		return b, fmt.Errorf("board has %d rows, want %d", len(grid), Height)
	}
	for y, row := range grid {
		if len(row) != Width {
			return b, fmt.Errorf("row %d has %d cells, want %d", y, len(row), Width)
		}
		for x, cell := range row {
			b[y][x] = uint8(cell)
		}
	}
	return b, nil
}
