package board

import (
	"fmt"
	"time"
)

// DefaultSize is the point-grid dimension used in production (5x5 regions).
const DefaultSize = 6

// Coord is a 0-indexed point on the n×n dot grid.
type Coord struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (c Coord) String() string { return fmt.Sprintf("(%d,%d)", c.Row, c.Col) }

// Line is a unit edge between two adjacent points. Direction is not significant.
type Line struct {
	From   Coord     `json:"from"`
	To     Coord     `json:"to"`
	Player int       `json:"player"`
	At     time.Time `json:"at"`
}

// SameEdge reports whether l and o cover the same edge in either orientation.
func (l Line) SameEdge(o Line) bool {
	return (l.From == o.From && l.To == o.To) || (l.From == o.To && l.To == o.From)
}

// Horizontal is true when both endpoints share a row.
func (l Line) Horizontal() bool { return l.From.Row == l.To.Row }

func (l Line) String() string { return l.From.String() + "-" + l.To.String() }

// Region is a closed unit cell identified by its top-left point.
type Region struct {
	ID    string `json:"id,omitempty"`
	Row   int    `json:"row"`
	Col   int    `json:"col"`
	Owner int    `json:"owner"`
}

// MaxRegions is the number of cells on an n×n point grid.
func MaxRegions(n int) int {
	if n < 2 {
		return 0
	}
	return (n - 1) * (n - 1)
}
