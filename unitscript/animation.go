package unitscript

import (
	"fmt"
	"math"

	"github.com/chazu/unitscript/model"
)

// ---------------------------------------------------------------------------
// Animation records
// ---------------------------------------------------------------------------

// AnimationKind tags an Animation.
type AnimationKind uint8

const (
	SetPosition AnimationKind = iota
	Translate
	SetAngle
	Rotate
	SpinUp
	Spin
	SpinDown
)

func (k AnimationKind) String() string {
	switch k {
	case SetPosition:
		return "set-position"
	case Translate:
		return "translate"
	case SetAngle:
		return "set-angle"
	case Rotate:
		return "rotate"
	case SpinUp:
		return "spin-up"
	case Spin:
		return "spin"
	case SpinDown:
		return "spin-down"
	}
	return fmt.Sprintf("animation(%d)", uint8(k))
}

// Animation is an in-flight piece transform. Positions are model units and
// angles are degrees. For spins Speed is the current angular velocity and
// TargetSpeed the velocity SpinUp ramps to; Acceleration is always a
// magnitude.
type Animation struct {
	Kind         AnimationKind `cbor:"kind"`
	Piece        int           `cbor:"piece"`
	Axis         model.Axis    `cbor:"axis"`
	Target       float64       `cbor:"target,omitempty"`
	Speed        float64       `cbor:"speed,omitempty"`
	Acceleration float64       `cbor:"accel,omitempty"`
	TargetSpeed  float64       `cbor:"target_speed,omitempty"`
}

func (a Animation) String() string {
	switch a.Kind {
	case SpinUp, Spin, SpinDown:
		return fmt.Sprintf("%s(%d, %s, speed %.2f -> %.2f)", a.Kind, a.Piece, a.Axis, a.Speed, a.TargetSpeed)
	}
	return fmt.Sprintf("%s(%d, %s, %.2f @ %.2f)", a.Kind, a.Piece, a.Axis, a.Target, a.Speed)
}

func isTranslation(k AnimationKind) bool { return k == SetPosition || k == Translate }
func isRotation(k AnimationKind) bool    { return k == SetAngle || k == Rotate }
func isSpin(k AnimationKind) bool        { return k == SpinUp || k == Spin || k == SpinDown }

// ---------------------------------------------------------------------------
// Integration
// ---------------------------------------------------------------------------

// advance applies delta seconds of a to pose and reports whether a is still
// in flight. Targets are reached exactly, never overshot.
func (a *Animation) advance(pose Pose, delta float64) bool {
	switch a.Kind {
	case SetPosition:
		pose.SetMove(a.Piece, a.Axis, a.Target)
		return false

	case Translate:
		current := pose.Move(a.Piece, a.Axis)
		step := math.Abs(a.Speed) * delta
		diff := a.Target - current
		if a.Speed == 0 || math.Abs(diff) <= step {
			pose.SetMove(a.Piece, a.Axis, a.Target)
			return false
		}
		pose.SetMove(a.Piece, a.Axis, current+math.Copysign(step, diff))
		return true

	case SetAngle:
		pose.SetTurn(a.Piece, a.Axis, a.Target)
		return false

	case Rotate:
		current := pose.Turn(a.Piece, a.Axis)
		step := math.Abs(a.Speed) * delta
		diff := model.NormalizeAngle(a.Target - current)
		if a.Speed == 0 || math.Abs(diff) <= step {
			pose.SetTurn(a.Piece, a.Axis, a.Target)
			return false
		}
		pose.SetTurn(a.Piece, a.Axis, current+math.Copysign(step, diff))
		return true

	case SpinUp:
		step := math.Abs(a.Acceleration) * delta
		if math.Abs(a.TargetSpeed-a.Speed) <= step {
			a.Speed = a.TargetSpeed
			a.Kind = Spin
		} else {
			a.Speed += math.Copysign(step, a.TargetSpeed-a.Speed)
		}
		a.spin(pose, delta)
		return true

	case Spin:
		a.spin(pose, delta)
		return true

	case SpinDown:
		step := math.Abs(a.Acceleration) * delta
		if math.Abs(a.Speed) <= step {
			return false
		}
		a.Speed -= math.Copysign(step, a.Speed)
		a.spin(pose, delta)
		return true
	}
	return false
}

func (a *Animation) spin(pose Pose, delta float64) {
	pose.SetTurn(a.Piece, a.Axis, pose.Turn(a.Piece, a.Axis)+a.Speed*delta)
}
