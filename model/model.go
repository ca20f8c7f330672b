// Package model holds the piece hierarchy of a unit model and the per-unit
// pose that scripts animate.
package model

import (
	"fmt"
	"strings"
)

// Axis selects one component of a piece's translation or rotation.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Valid reports whether a is one of the three axes.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	}
	return fmt.Sprintf("axis(%d)", int(a))
}

// Vector3 is indexed by Axis.
type Vector3 [3]float64

// Piece is a named node of the model hierarchy.
type Piece struct {
	Name   string
	Parent int     // index of the parent piece, -1 for the root
	Offset Vector3 // rest position relative to the parent
}

// Model is an immutable piece hierarchy shared by every instance of a unit type.
type Model struct {
	Pieces []Piece
	lookup map[string]int
}

// New builds a model. Piece names are matched case-insensitively and must
// be unique; parents must precede their children.
func New(pieces []Piece) (*Model, error) {
	m := &Model{
		Pieces: append([]Piece(nil), pieces...),
		lookup: make(map[string]int, len(pieces)),
	}
	for i, p := range m.Pieces {
		key := strings.ToLower(p.Name)
		if _, dup := m.lookup[key]; dup {
			return nil, fmt.Errorf("model: duplicate piece %q", p.Name)
		}
		if p.Parent >= i || p.Parent < -1 {
			return nil, fmt.Errorf("model: piece %q has invalid parent %d", p.Name, p.Parent)
		}
		m.lookup[key] = i
	}
	return m, nil
}

// PieceIndex resolves a piece name.
func (m *Model) PieceIndex(name string) (int, bool) {
	i, ok := m.lookup[strings.ToLower(name)]
	return i, ok
}
