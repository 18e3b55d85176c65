package board

type staticErr string

func (e staticErr) Error() string { return string(e) }

var (
	ErrOutOfBounds = staticErr("line endpoint outside the grid")
	ErrNotAdjacent = staticErr("line must join two adjacent points")
)

type edgeKey struct{ a, b Coord }

// keyOf orders the endpoints so both orientations map to one key.
func keyOf(a, b Coord) edgeKey {
	if b.Row < a.Row || (b.Row == a.Row && b.Col < a.Col) {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

func inGrid(n int, c Coord) bool {
	return c.Row >= 0 && c.Row < n && c.Col >= 0 && c.Col < n
}

// Validate checks that l is a horizontal or vertical unit edge inside an n×n grid.
func Validate(n int, l Line) error {
	if !inGrid(n, l.From) || !inGrid(n, l.To) {
		return ErrOutOfBounds
	}
	dr, dc := abs(l.From.Row-l.To.Row), abs(l.From.Col-l.To.Col)
	if dr+dc != 1 {
		return ErrNotAdjacent
	}
	return nil
}

// IsDuplicate reports whether l already exists in lines, ignoring direction.
func IsDuplicate(lines []Line, l Line) bool {
	for _, x := range lines {
		if x.SameEdge(l) {
			return true
		}
	}
	return false
}

// LegalMoves lists every undrawn edge tagged with player.
// Horizontal edges come first in row-major order, then vertical edges.
func LegalMoves(n int, lines []Line, player int) []Line {
	if n < 2 {
		return nil
	}
	drawn := indexLines(lines)
	out := make([]Line, 0, max(0, 2*n*(n-1)-len(drawn)))
	for r := 0; r < n; r++ {
		for c := 0; c+1 < n; c++ {
			a, b := Coord{r, c}, Coord{r, c + 1}
			if _, ok := drawn[keyOf(a, b)]; !ok {
				out = append(out, Line{From: a, To: b, Player: player})
			}
		}
	}
	for r := 0; r+1 < n; r++ {
		for c := 0; c < n; c++ {
			a, b := Coord{r, c}, Coord{r + 1, c}
			if _, ok := drawn[keyOf(a, b)]; !ok {
				out = append(out, Line{From: a, To: b, Player: player})
			}
		}
	}
	return out
}

// ClosedRegions returns every cell whose four edges are drawn, in row-major order.
// A cell belongs to the player of whichever bounding edge was inserted last.
func ClosedRegions(n int, lines []Line) []Region {
	drawn := indexLines(lines)
	var out []Region
	for r := 0; r+1 < n; r++ {
		for c := 0; c+1 < n; c++ {
			last, closed := -1, true
			for _, k := range cellEdges(r, c) {
				idx, ok := drawn[k]
				if !ok {
					closed = false
					break
				}
				if idx > last {
					last = idx
				}
			}
			if closed {
				out = append(out, Region{Row: r, Col: c, Owner: lines[last].Player})
			}
		}
	}
	return out
}

func cellEdges(r, c int) [4]edgeKey {
	return [4]edgeKey{
		keyOf(Coord{r, c}, Coord{r, c + 1}),
		keyOf(Coord{r + 1, c}, Coord{r + 1, c + 1}),
		keyOf(Coord{r, c}, Coord{r + 1, c}),
		keyOf(Coord{r, c + 1}, Coord{r + 1, c + 1}),
	}
}

// indexLines maps each edge to its first insertion index.
func indexLines(lines []Line) map[edgeKey]int {
	m := make(map[edgeKey]int, len(lines))
	for i, l := range lines {
		k := keyOf(l.From, l.To)
		if _, ok := m[k]; !ok {
			m[k] = i
		}
	}
	return m
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
