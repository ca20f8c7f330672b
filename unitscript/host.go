package unitscript

import (
	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Model resolves script piece names when a Context is built.
type Model interface {
	PieceIndex(name string) (int, bool)
}

// Pose is the per-unit piece state that instructions and animations write.
// *model.Instance implements it.
type Pose interface {
	Move(piece int, axis model.Axis) float64
	SetMove(piece int, axis model.Axis, v float64)
	Turn(piece int, axis model.Axis) float64
	SetTurn(piece int, axis model.Axis, degrees float64)
	SetHidden(piece int, hidden bool)
}

// Clock supplies game time in seconds.
type Clock interface {
	Now() float64
}

// Effects receives the instructions whose meaning belongs to the game world.
// Payloads are passed through without interpretation.
type Effects interface {
	EmitSfx(sfx SfxType, piece int)
	Explode(piece int, flags ExplodeFlags)
	PlaySound(index int, name string)
	MapCommand(a, b cob.Word)
	UnitValue(what UnitValue) cob.Word
	FunctionResult(what UnitValue, params [4]cob.Word) cob.Word
	SetUnitValue(what UnitValue, value cob.Word)
	AttachUnit(unit, piece, arg cob.Word)
	DropUnit(unit cob.Word)
}

// Host is everything a Context needs from the game while running.
type Host interface {
	Clock
	Effects
}

// NopEffects ignores every effect and answers every query with 0.
// Embed it to implement only the effects you care about.
type NopEffects struct{}

func (NopEffects) EmitSfx(SfxType, int) {}
func (NopEffects) Explode(int, ExplodeFlags) {}
func (NopEffects) PlaySound(int, string) {}
func (NopEffects) MapCommand(cob.Word, cob.Word) {}
func (NopEffects) UnitValue(UnitValue) cob.Word { return 0 }
func (NopEffects) FunctionResult(UnitValue, [4]cob.Word) cob.Word { return 0 }
func (NopEffects) SetUnitValue(UnitValue, cob.Word) {}
func (NopEffects) AttachUnit(cob.Word, cob.Word, cob.Word) {}
func (NopEffects) DropUnit(cob.Word) {}

// ---------------------------------------------------------------------------
// Well-known values
// ---------------------------------------------------------------------------

// Fixed-point scales of script values.
const (
	LinearScale  = 163840.0 / 2.5 // script units per model unit
	AngularScale = 182.0          // script units per degree
)

// Linear converts a script word to model units.
func Linear(w cob.Word) float64 { return float64(w) / LinearScale }

// Angular converts a script word to degrees.
func Angular(w cob.Word) float64 { return float64(w) / AngularScale }

// UnitValue selects a unit property for get/set.
type UnitValue cob.Word

const (
	Activation         UnitValue = 1  // set or get
	StandingMoveOrders UnitValue = 2  // set or get
	StandingFireOrders UnitValue = 3  // set or get
	Health             UnitValue = 4  // get (0-100%)
	InBuildStance      UnitValue = 5  // set or get
	Busy               UnitValue = 6  // set or get
	PieceXZ            UnitValue = 7  // get
	PieceY             UnitValue = 8  // get
	UnitXZ             UnitValue = 9  // get
	UnitY              UnitValue = 10 // get
	UnitHeight         UnitValue = 11 // get
	XZAtan             UnitValue = 12 // get atan of packed x,z coords
	XZHypot            UnitValue = 13 // get hypot of packed x,z coords
	Atan               UnitValue = 14 // get ordinary two-parameter atan
	Hypot              UnitValue = 15 // get ordinary two-parameter hypot
	GroundHeight       UnitValue = 16 // get
	BuildPercentLeft   UnitValue = 17 // get; 0 = built
	YardOpen           UnitValue = 18 // set or get
	BuggerOff          UnitValue = 19 // set or get
	Armored            UnitValue = 20 // set or get
)

// ExplodeFlags describes how an exploding piece behaves.
type ExplodeFlags cob.Word

const (
	ExplodeShatter    ExplodeFlags = 1
	ExplodeOnHit      ExplodeFlags = 2
	ExplodeFall       ExplodeFlags = 4
	ExplodeSmoke      ExplodeFlags = 8
	ExplodeFire       ExplodeFlags = 16
	ExplodeBitmapOnly ExplodeFlags = 32
	ExplodeBitmap1    ExplodeFlags = 256
	ExplodeBitmap2    ExplodeFlags = 512
	ExplodeBitmap3    ExplodeFlags = 1024
	ExplodeBitmap4    ExplodeFlags = 2048
	ExplodeBitmap5    ExplodeFlags = 4096
	ExplodeBitmapNuke ExplodeFlags = 8192
	ExplodeBitmapMask ExplodeFlags = 16128
)

// SfxType selects a special effect.
type SfxType cob.Word

const (
	SfxVTOL         SfxType = 0
	SfxThrust       SfxType = 1
	SfxWake1        SfxType = 2
	SfxWake2        SfxType = 3
	SfxReverseWake1 SfxType = 4
	SfxReverseWake2 SfxType = 5
	SfxPointBased   SfxType = 256
	SfxWhiteSmoke   SfxType = 257
	SfxBlackSmoke   SfxType = 258
	SfxSubBubbles   SfxType = 259
)
