package host

import (
	"fmt"
	"math"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/unitscript"
	"github.com/tliron/commonlog"
)

// Event is a host effect a script asked for.
type Event struct {
	Tick  int
	Unit  string
	Kind  string
	Piece string
	Name  string
	Args  []cob.Word
}

func (e Event) String() string {
	s := fmt.Sprintf("%5d %s %s", e.Tick, e.Unit, e.Kind)
	if e.Piece != "" {
		s += " " + e.Piece
	}
	if e.Name != "" {
		s += " " + e.Name
	}
	if len(e.Args) > 0 {
		s += fmt.Sprintf(" %v", e.Args)
	}
	return s
}

// effects is the per-unit effects sink. It keeps the unit values scripts
// read and write, answers geometry queries from the unit's pose and
// reports everything else to the world as Events.
type effects struct {
	world  *World
	unit   *Unit
	log    commonlog.Logger
	values map[unitscript.UnitValue]cob.Word
}

func newEffects(w *World, u *Unit) *effects {
	return &effects{
		world: w,
		unit:  u,
		log:   commonlog.GetLogger("unitscript.host"),
		values: map[unitscript.UnitValue]cob.Word{
			unitscript.Health: 100,
		},
	}
}

func (e *effects) emit(kind string, piece int, name string, args ...cob.Word) {
	ev := Event{
		Tick: e.world.tick,
		Unit: e.unit.Name,
		Kind: kind,
		Name: name,
		Args: args,
	}
	if piece >= 0 && piece < len(e.unit.Model.Pieces) {
		ev.Piece = e.unit.Model.Pieces[piece].Name
	}
	e.log.Debugf("%s", ev)
	e.world.events = append(e.world.events, ev)
}

func (e *effects) EmitSfx(sfx unitscript.SfxType, piece int) {
	e.emit("emit-sfx", piece, "", cob.Word(sfx))
}

func (e *effects) Explode(piece int, flags unitscript.ExplodeFlags) {
	e.emit("explode", piece, "", cob.Word(flags))
}

func (e *effects) PlaySound(index int, name string) {
	e.emit("play-sound", -1, name, cob.Word(index))
}

func (e *effects) MapCommand(a, b cob.Word) {
	e.emit("map-command", -1, "", a, b)
}

func (e *effects) UnitValue(what unitscript.UnitValue) cob.Word {
	return e.values[what]
}

func (e *effects) SetUnitValue(what unitscript.UnitValue, value cob.Word) {
	e.values[what] = value
	e.emit("set-unit-value", -1, "", cob.Word(what), value)
}

func (e *effects) AttachUnit(unit, piece, arg cob.Word) {
	e.emit("attach-unit", -1, "", unit, piece, arg)
}

func (e *effects) DropUnit(unit cob.Word) {
	e.emit("drop-unit", -1, "", unit)
}

// FunctionResult answers the geometry selectors from the unit's pose and
// every other selector from the stored unit values.
func (e *effects) FunctionResult(what unitscript.UnitValue, p [4]cob.Word) cob.Word {
	switch what {
	case unitscript.PieceXZ, unitscript.PieceY:
		pieceMap := e.unit.Context.PieceMap()
		if p[0] < 0 || int(p[0]) >= len(pieceMap) {
			return 0
		}
		pos := e.unit.Pose.Position(e.unit.Model, pieceMap[p[0]])
		if what == unitscript.PieceY {
			return linear(pos[1])
		}
		return PackXZ(cob.Word(math.Round(pos[0])), cob.Word(math.Round(pos[2])))
	case unitscript.XZAtan:
		x, z := UnpackXZ(p[0])
		return angular(math.Atan2(float64(x), float64(z)))
	case unitscript.XZHypot:
		x, z := UnpackXZ(p[0])
		return linear(math.Hypot(float64(x), float64(z)))
	case unitscript.Atan:
		return angular(math.Atan2(float64(p[0]), float64(p[1])))
	case unitscript.Hypot:
		return cob.Word(math.Round(math.Hypot(float64(p[0]), float64(p[1]))))
	}
	return e.values[what]
}

// PackXZ packs two 16-bit coordinates into one word.
func PackXZ(x, z cob.Word) cob.Word {
	return x<<16 | z&0xFFFF
}

// UnpackXZ reverses PackXZ, sign-extending both halves.
func UnpackXZ(w cob.Word) (x, z cob.Word) {
	return cob.Word(int16(w >> 16)), cob.Word(int16(w))
}

func linear(v float64) cob.Word {
	return cob.Word(math.Round(v * unitscript.LinearScale))
}

func angular(radians float64) cob.Word {
	return cob.Word(math.Round(radians * 180 / math.Pi * unitscript.AngularScale))
}
