package model

import (
	"fmt"
	"math"
	"strings"
)

// PieceState is the animated state of one piece.
type PieceState struct {
	Move   Vector3 // translation from the rest offset, model units
	Turn   Vector3 // rotation in degrees, normalised to (-180, 180]
	Hidden bool
}

// Instance is the pose of one unit.
type Instance struct {
	Pieces []PieceState
}

// NewInstance creates a rest pose for m.
func NewInstance(m *Model) *Instance {
	return &Instance{Pieces: make([]PieceState, len(m.Pieces))}
}

// Move returns the translation of piece along axis.
func (in *Instance) Move(piece int, axis Axis) float64 {
	return in.Pieces[piece].Move[axis]
}

// SetMove sets the translation of piece along axis.
func (in *Instance) SetMove(piece int, axis Axis, v float64) {
	in.Pieces[piece].Move[axis] = v
}

// Turn returns the rotation of piece around axis.
func (in *Instance) Turn(piece int, axis Axis) float64 {
	return in.Pieces[piece].Turn[axis]
}

// SetTurn sets the rotation of piece around axis.
func (in *Instance) SetTurn(piece int, axis Axis, degrees float64) {
	in.Pieces[piece].Turn[axis] = NormalizeAngle(degrees)
}

// SetHidden toggles visibility.
func (in *Instance) SetHidden(piece int, hidden bool) {
	in.Pieces[piece].Hidden = hidden
}

// Position returns the translated origin of a piece in model space,
// accumulating rest offsets and moves up the hierarchy. Parent rotations are
// not applied.
func (in *Instance) Position(m *Model, piece int) Vector3 {
	var p Vector3
	for i := piece; i >= 0; i = m.Pieces[i].Parent {
		for a := range p {
			p[a] += m.Pieces[i].Offset[a] + in.Pieces[i].Move[a]
		}
	}
	return p
}

// Describe renders the pose one piece per line.
func (in *Instance) Describe(m *Model) string {
	var b strings.Builder
	for i, p := range in.Pieces {
		vis := ""
		if p.Hidden {
			vis = " hidden"
		}
		fmt.Fprintf(&b, "%-12s move(%.3f %.3f %.3f) turn(%.2f %.2f %.2f)%s\n",
			m.Pieces[i].Name, p.Move[0], p.Move[1], p.Move[2], p.Turn[0], p.Turn[1], p.Turn[2], vis)
	}
	return b.String()
}

// NormalizeAngle maps degrees into (-180, 180].
func NormalizeAngle(degrees float64) float64 {
	d := math.Mod(degrees, 360)
	if d > 180 {
		d -= 360
	} else if d <= -180 {
		d += 360
	}
	return d
}
