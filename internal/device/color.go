package device

import "fmt"

// RGB is a single 8-bit-per-channel LED color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

func (c RGB) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Layout describes the LED matrix of a keyboard.
type Layout struct {
	Rows int
	Cols int
}

// Grid holds one color per LED, indexed [row][col].
type Grid [][]RGB

// NewGrid allocates a grid for the layout filled with c.
func NewGrid(l Layout, c RGB) Grid {
	g := make(Grid, l.Rows)
	for r := range g {
		g[r] = make([]RGB, l.Cols)
		for col := range g[r] {
			g[r][col] = c
		}
	}
	return g
}

// Validate checks that the grid matches the layout exactly.
func (g Grid) Validate(l Layout) error {
	if len(g) != l.Rows {
		return fmt.Errorf("grid has %d rows, layout needs %d", len(g), l.Rows)
	}
	for r, row := range g {
		if len(row) != l.Cols {
			return fmt.Errorf("grid row %d has %d columns, layout needs %d", r, len(row), l.Cols)
		}
	}
	return nil
}

// Clone returns a deep copy so callers can keep mutating their own grid.
func (g Grid) Clone() Grid {
	if g == nil {
		return nil
	}
	out := make(Grid, len(g))
	for r, row := range g {
		out[r] = append([]RGB(nil), row...)
	}
	return out
}

// Average returns the mean color of all cells. An empty grid averages to black.
func (g Grid) Average() RGB {
	var r, gr, b, n uint64
	for _, row := range g {
		for _, c := range row {
			r += uint64(c.R)
			gr += uint64(c.G)
			b += uint64(c.B)
			n++
		}
	}
	if n == 0 {
		return RGB{}
	}
	return RGB{R: uint8(r / n), G: uint8(gr / n), B: uint8(b / n)}
}
