package unitscript

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
)

// ---------------------------------------------------------------------------
// Faults
// ---------------------------------------------------------------------------

func TestFaults(t *testing.T) {
	tests := []struct {
		name   string
		emit   func(b *cob.Builder)
		err    error
		value  cob.Word
		offset int // relative to the start of the faulting module
	}{
		{"bad opcode", func(b *cob.Builder) { b.EmitRaw(0x12345678) }, ErrBadOpcode, 0x12345678, 0},
		{"unimplemented opcode", func(b *cob.Builder) { b.Emit(cob.OpUnknown1) }, ErrUnimplementedOpcode, cob.Word(cob.OpUnknown1), 0},
		{"bad local", func(b *cob.Builder) { b.Emit(cob.OpPushLocal, 5) }, ErrBadLocal, 5, 0},
		{"bad static", func(b *cob.Builder) { b.Emit(cob.OpPushStatic, 2) }, ErrBadStatic, 2, 0},
		{"bad module", func(b *cob.Builder) { b.Emit(cob.OpCallScript, 9, 0) }, ErrBadModule, 9, 0},
		{"bad piece", func(b *cob.Builder) { b.Emit(cob.OpShowPiece, 7) }, ErrBadPiece, 7, 0},
		{"bad axis", func(b *cob.Builder) { b.Push(0); b.Emit(cob.OpTurnPieceNow, 0, 5) }, ErrBadAxis, 5, 2},
		{"stack underflow", func(b *cob.Builder) { b.Emit(cob.OpAdd) }, ErrStackUnderflow, 0, 0},
		{"divide by zero", func(b *cob.Builder) { b.Push(1); b.Push(0); b.Emit(cob.OpDivide) }, ErrDivideByZero, 1, 4},
		{"end of code", func(b *cob.Builder) { b.Push(1) }, ErrBadInstructionPointer, 0, 2},
	}

	for _, tc := range tests {
		b := cob.NewBuilder()
		waitingModule(b)
		start := b.Len()
		b.Module("Bad")
		tc.emit(b)

		var faults []*Fault
		c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 2),
			WithFaultHandler(func(f *Fault) { faults = append(faults, f) }))

		good := c.StartScript("Wait", 1)
		bad := c.StartScript("Bad")
		c.Run(pose, host)

		if !bad.Finished() {
			t.Errorf("%s: faulting thread status = %s, want finished", tc.name, bad.Status())
		}
		if good.Status().State != Sleeping {
			t.Errorf("%s: sibling status = %s, want sleeping", tc.name, good.Status())
		}
		if len(faults) != 1 {
			t.Errorf("%s: %d faults, want 1", tc.name, len(faults))
			continue
		}
		f := faults[0]
		if !errors.Is(f, tc.err) {
			t.Errorf("%s: fault = %v, want %v", tc.name, f.Err, tc.err)
		}
		if tc.err != ErrBadInstructionPointer && f.Value != tc.value {
			t.Errorf("%s: Value = %d, want %d", tc.name, f.Value, tc.value)
		}
		if f.Offset != start+tc.offset {
			t.Errorf("%s: Offset = %d, want %d", tc.name, f.Offset, start+tc.offset)
		}
		if f.Module != "Bad" || f.Thread != bad.ID() {
			t.Errorf("%s: fault from %s/%d, want Bad/%d", tc.name, f.Module, f.Thread, bad.ID())
		}
		if n := len(c.Threads()); n != 1 {
			t.Errorf("%s: len(Threads) = %d, want 1", tc.name, n)
		}
	}
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func TestOperators(t *testing.T) {
	tests := []struct {
		op          cob.Opcode
		left, right cob.Word
		want        cob.Word
	}{
		{cob.OpAdd, 2, 3, 5},
		{cob.OpAdd, math.MaxInt32, 1, math.MinInt32},
		{cob.OpSubtract, 2, 3, -1},
		{cob.OpMultiply, -4, 3, -12},
		{cob.OpDivide, 7, 2, 3},
		{cob.OpDivide, -7, 2, -3},
		{cob.OpBitwiseAnd, 6, 3, 2},
		{cob.OpBitwiseOr, 6, 3, 7},
		{cob.OpLessThan, 2, 3, 1},
		{cob.OpLessThanOrEqual, 3, 3, 1},
		{cob.OpGreaterThan, 2, 3, 0},
		{cob.OpGreaterThanOrEqual, 3, 2, 1},
		{cob.OpEqual, 3, 3, 1},
		{cob.OpNotEqual, 3, 3, 0},
		{cob.OpAnd, 2, 0, 0},
		{cob.OpAnd, 2, -1, 1},
		{cob.OpOr, 0, 5, 1},
		{cob.OpOr, 0, 0, 0},
	}

	for _, tc := range tests {
		b := cob.NewBuilder()
		b.Module("Eval")
		b.Push(tc.left)
		b.Push(tc.right)
		b.Emit(tc.op)
		b.Emit(cob.OpSetStatic, 0)
		b.Push(0)
		b.Emit(cob.OpReturn)
		c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 1))

		c.StartScript("Eval")
		c.Run(pose, host)
		if got := c.Statics()[0]; got != tc.want {
			t.Errorf("%d %s %d = %d, want %d", tc.left, tc.op.Name(), tc.right, got, tc.want)
		}
	}
}

func TestConditionalJump(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Branch")
	taken := b.NewLabel()
	end := b.NewLabel()
	b.Push(0)
	b.Emit(cob.OpNot)
	b.EmitJump(cob.OpJumpToOffsetIfFalse, taken)
	b.Push(1)
	b.Emit(cob.OpSetStatic, 0)
	b.Mark(taken)
	b.Push(0)
	b.EmitJump(cob.OpJumpToOffsetIfFalse, end)
	b.Push(99)
	b.Emit(cob.OpSetStatic, 0)
	b.Mark(end)
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 1))

	th := c.StartScript("Branch")
	c.Run(pose, host)
	if !th.Finished() {
		t.Fatalf("status = %s, want finished", th.Status())
	}
	if got := c.Statics()[0]; got != 1 {
		t.Errorf("static 0 = %d, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Pieces
// ---------------------------------------------------------------------------

func TestVisibility(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Create")
	b.Emit(cob.OpHidePiece, 0)
	b.Emit(cob.OpHidePiece, 1)
	b.Emit(cob.OpShowPiece, 1)
	b.Emit(cob.OpDontCachePiece, 0)
	b.Emit(cob.OpDontShadow, 0)
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 0))

	c.StartScript("Create")
	c.Run(pose, host)
	if !pose.Pieces[turret].Hidden {
		t.Errorf("turret visible, want hidden")
	}
	if pose.Pieces[base].Hidden {
		t.Errorf("base hidden, want visible")
	}
	if n := len(c.Animations()); n != 0 {
		t.Errorf("len(Animations) = %d, want 0", n)
	}
}

func TestMoveNowCancelsTranslation(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Jump")
	b.Push(cob.Word(LinearScale))
	b.Push(cob.Word(10 * LinearScale))
	b.Emit(cob.OpMovePieceWithSpeed, 1, cob.Word(model.AxisY))
	b.Push(cob.Word(30 * AngularScale))
	b.Push(cob.Word(90 * AngularScale))
	b.Emit(cob.OpTurnPieceWithSpeed, 1, cob.Word(model.AxisY))
	b.Push(cob.Word(3 * LinearScale))
	b.Emit(cob.OpMovePieceNow, 1, cob.Word(model.AxisY))
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 0))

	c.StartScript("Jump")
	c.Run(pose, host)
	if got := pose.Move(base, model.AxisY); got != 3 {
		t.Errorf("base y = %v, want 3", got)
	}
	anims := c.Animations()
	if len(anims) != 1 || anims[0].Kind != Rotate {
		t.Errorf("Animations = %v, want only the rotation", anims)
	}
}

// Turning a piece and waiting for the turn blocks until the rotation lands.
func TestTurnThenWaitForTurn(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Move")
	b.Push(45 * 182)
	b.Push(90 * 182)
	b.Emit(cob.OpTurnPieceWithSpeed, 0, cob.Word(model.AxisZ))
	b.Emit(cob.OpWaitForTurn, 0, cob.Word(model.AxisZ))
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 0))

	th := c.StartScript("Move")
	c.Run(pose, host)
	want := Status{State: WaitingForTurn, Piece: turret, Axis: model.AxisZ}
	if th.Status() != want {
		t.Fatalf("status = %s, want %s", th.Status(), want)
	}

	c.ApplyAnimations(pose, 1)
	if got := pose.Turn(turret, model.AxisZ); !near(got, 45) {
		t.Errorf("turn after 1s = %v, want 45", got)
	}
	c.Run(pose, host)
	if th.Status() != want {
		t.Errorf("status mid-turn = %s, want %s", th.Status(), want)
	}

	c.ApplyAnimations(pose, 1)
	if got := pose.Turn(turret, model.AxisZ); got != 90 {
		t.Errorf("turn after 2s = %v, want 90", got)
	}
	c.Run(pose, host)
	if !th.Finished() {
		t.Errorf("status = %s, want finished", th.Status())
	}
}

func TestMoveThenWaitForMove(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Raise")
	b.Push(cob.Word(2 * LinearScale))
	b.Push(cob.Word(5 * LinearScale))
	b.Emit(cob.OpMovePieceWithSpeed, 1, cob.Word(model.AxisY))
	b.Emit(cob.OpWaitForMove, 1, cob.Word(model.AxisY))
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 0))

	th := c.StartScript("Raise")
	for _, want := range []float64{2, 4, 5} {
		c.Run(pose, host)
		if th.Status().State != WaitingForMove {
			t.Fatalf("at %v: status = %s, want waiting-for-move", want, th.Status())
		}
		c.ApplyAnimations(pose, 1)
		if got := pose.Move(base, model.AxisY); got != want {
			t.Errorf("base y = %v, want %v", got, want)
		}
	}
	c.Run(pose, host)
	if !th.Finished() {
		t.Errorf("status = %s, want finished", th.Status())
	}
}

func TestSpinInstructions(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Spin")
	b.Push(0)
	b.Push(60 * 182)
	b.Emit(cob.OpStartSpin, 0, cob.Word(model.AxisY))
	b.Push(60 * 182)
	b.Push(120 * 182)
	b.Emit(cob.OpStartSpin, 0, cob.Word(model.AxisY))
	b.Push(0)
	b.Emit(cob.OpReturn)
	b.Module("Stop")
	b.Push(0)
	b.Emit(cob.OpStopSpin, 0, cob.Word(model.AxisY))
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, nil, 0))

	c.StartScript("Spin")
	c.Run(pose, host)
	anims := c.Animations()
	if len(anims) != 1 {
		t.Fatalf("Animations = %v, want one spin", anims)
	}
	if a := anims[0]; a.Kind != SpinUp || a.Speed != 60 || a.TargetSpeed != 120 || a.Acceleration != 60 {
		t.Errorf("spin = %s, want spin-up from 60 to 120", a)
	}

	c.StartScript("Stop")
	c.Run(pose, host)
	if n := len(c.Animations()); n != 0 {
		t.Errorf("len(Animations) after stop = %d, want 0", n)
	}
}

// ---------------------------------------------------------------------------
// Host effects
// ---------------------------------------------------------------------------

func TestHostEffects(t *testing.T) {
	b := cob.NewBuilder()
	b.Module("Killed")
	b.Push(cob.Word(ExplodeShatter | ExplodeSmoke))
	b.Emit(cob.OpExplode, 1)
	b.Emit(cob.OpPlaySound, 0)
	b.Push(cob.Word(SfxWhiteSmoke))
	b.Emit(cob.OpEmitSfx, 0)
	b.Push(cob.Word(Health))
	b.Emit(cob.OpGetUnitValue)
	b.Emit(cob.OpSetStatic, 0)
	b.Push(cob.Word(Atan))
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Push(4)
	b.Emit(cob.OpGetFunctionResult)
	b.Emit(cob.OpSetStatic, 1)
	b.Push(cob.Word(Busy))
	b.Push(1)
	b.Emit(cob.OpSetUnitValue)
	b.Push(10)
	b.Push(1)
	b.Push(2)
	b.Emit(cob.OpAttachUnit)
	b.Push(10)
	b.Emit(cob.OpDropUnit)
	b.Emit(cob.OpMapCommand, 3, 4)
	b.Push(0)
	b.Emit(cob.OpReturn)
	c, pose, host := newTestContext(t, b.Script(scriptPieces, []string{"click"}, 2))
	host.values[Health] = 75

	th := c.StartScript("Killed")
	c.Run(pose, host)
	if !th.Finished() {
		t.Fatalf("status = %s, want finished", th.Status())
	}

	if len(host.explosions) != 1 || host.explosions[0] != (explosion{base, ExplodeShatter | ExplodeSmoke}) {
		t.Errorf("explosions = %v", host.explosions)
	}
	if len(host.sounds) != 1 || host.sounds[0] != "click" {
		t.Errorf("sounds = %v, want [click]", host.sounds)
	}
	if len(host.sfx) != 1 || host.sfx[0] != (sfx{SfxWhiteSmoke, turret}) {
		t.Errorf("sfx = %v", host.sfx)
	}
	statics := c.Statics()
	if statics[0] != 75 {
		t.Errorf("unit value = %d, want 75", statics[0])
	}
	if statics[1] != 10 || host.params != [4]cob.Word{1, 2, 3, 4} {
		t.Errorf("function result = %d with params %v", statics[1], host.params)
	}
	if host.set[Busy] != 1 {
		t.Errorf("set values = %v, want busy=1", host.set)
	}
	if len(host.attached) != 1 || host.attached[0] != [3]cob.Word{10, 1, 2} {
		t.Errorf("attached = %v", host.attached)
	}
	if len(host.dropped) != 1 || host.dropped[0] != 10 {
		t.Errorf("dropped = %v", host.dropped)
	}
	if len(host.commands) != 1 || host.commands[0] != [2]cob.Word{3, 4} {
		t.Errorf("commands = %v", host.commands)
	}
}
