package unitscript

import (
	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
)

// ---------------------------------------------------------------------------
// Dispatch table
// ---------------------------------------------------------------------------

// execution is everything one instruction may touch. code starts at the
// instruction's opcode, so code[1] is its first immediate.
type execution struct {
	context *Context
	thread  *Thread
	pose    Pose
	host    Host
	code    []cob.Word
	ip      int
}

type instruction func(e *execution) error

// instructions is indexed by cob.Opcode.Ordinal. A recognised opcode with a
// nil entry is unimplemented.
var instructions [cob.NumOrdinals]instruction

func register(op cob.Opcode, fn instruction) {
	instructions[op.Ordinal()] = fn
}

func init() {
	register(cob.OpMovePieceWithSpeed, movePieceWithSpeed)
	register(cob.OpTurnPieceWithSpeed, turnPieceWithSpeed)
	register(cob.OpStartSpin, startSpin)
	register(cob.OpStopSpin, stopSpin)
	register(cob.OpShowPiece, showPiece)
	register(cob.OpHidePiece, hidePiece)
	register(cob.OpCachePiece, renderHint)
	register(cob.OpDontCachePiece, renderHint)
	register(cob.OpDontShadow, renderHint)
	register(cob.OpMovePieceNow, movePieceNow)
	register(cob.OpTurnPieceNow, turnPieceNow)
	register(cob.OpDontShade, renderHint)
	register(cob.OpEmitSfx, emitSfx)

	register(cob.OpWaitForTurn, waitForTurn)
	register(cob.OpWaitForMove, waitForMove)
	register(cob.OpSleep, sleep)

	register(cob.OpPushImmediate, pushImmediate)
	register(cob.OpPushLocal, pushLocal)
	register(cob.OpPushStatic, pushStatic)
	register(cob.OpStackAllocate, stackAllocate)
	register(cob.OpSetLocal, setLocal)
	register(cob.OpSetStatic, setStatic)
	register(cob.OpPopStack, popStack)

	register(cob.OpAdd, binary(func(l, r cob.Word) cob.Word { return l + r }))
	register(cob.OpSubtract, binary(func(l, r cob.Word) cob.Word { return l - r }))
	register(cob.OpMultiply, binary(func(l, r cob.Word) cob.Word { return l * r }))
	register(cob.OpDivide, divide)
	register(cob.OpBitwiseAnd, binary(func(l, r cob.Word) cob.Word { return l & r }))
	register(cob.OpBitwiseOr, binary(func(l, r cob.Word) cob.Word { return l | r }))

	register(cob.OpRandom, random)
	register(cob.OpGetUnitValue, getUnitValue)
	register(cob.OpGetFunctionResult, getFunctionResult)

	register(cob.OpLessThan, compare(func(l, r cob.Word) bool { return l < r }))
	register(cob.OpLessThanOrEqual, compare(func(l, r cob.Word) bool { return l <= r }))
	register(cob.OpGreaterThan, compare(func(l, r cob.Word) bool { return l > r }))
	register(cob.OpGreaterThanOrEqual, compare(func(l, r cob.Word) bool { return l >= r }))
	register(cob.OpEqual, compare(func(l, r cob.Word) bool { return l == r }))
	register(cob.OpNotEqual, compare(func(l, r cob.Word) bool { return l != r }))
	register(cob.OpAnd, compare(func(l, r cob.Word) bool { return l != 0 && r != 0 }))
	register(cob.OpOr, compare(func(l, r cob.Word) bool { return l != 0 || r != 0 }))
	register(cob.OpNot, not)

	register(cob.OpStartScript, startScript)
	register(cob.OpCallScript, callScript)
	register(cob.OpJumpToOffset, jumpToOffset)
	register(cob.OpReturn, returnResult)
	register(cob.OpJumpToOffsetIfFalse, jumpToOffsetIfFalse)
	register(cob.OpSignal, signal)
	register(cob.OpSetSignalMask, setSignalMask)

	register(cob.OpExplode, explode)
	register(cob.OpPlaySound, playSound)
	register(cob.OpMapCommand, mapCommand)
	register(cob.OpSetUnitValue, setUnitValue)
	register(cob.OpAttachUnit, attachUnit)
	register(cob.OpDropUnit, dropUnit)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// next moves past the current instruction.
func (e *execution) next() {
	e.thread.setIP(e.ip + cob.Opcode(e.code[0]).Size())
}

// pieceAxis decodes the piece and axis immediates.
func (e *execution) pieceAxis() (int, model.Axis, error) {
	piece, err := e.context.pieceIndex(e.code[1])
	if err != nil {
		return 0, 0, err
	}
	axis, err := makeAxis(e.code[2])
	if err != nil {
		return 0, 0, err
	}
	return piece, axis, nil
}

func makeAxis(w cob.Word) (model.Axis, error) {
	a := model.Axis(w)
	if !a.Valid() {
		return 0, fault(ErrBadAxis, w)
	}
	return a, nil
}

func (e *execution) pop2() (cob.Word, cob.Word, error) {
	first, err := e.thread.pop()
	if err != nil {
		return 0, 0, err
	}
	second, err := e.thread.pop()
	if err != nil {
		return 0, 0, err
	}
	return first, second, nil
}

func boolWord(b bool) cob.Word {
	if b {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Piece manipulation
// ---------------------------------------------------------------------------

// MOVE piece axis; pops destination then speed.
func movePieceWithSpeed(e *execution) error {
	destination, speed, err := e.pop2()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.animate(Animation{
		Kind:   Translate,
		Piece:  piece,
		Axis:   axis,
		Target: Linear(destination),
		Speed:  Linear(speed),
	})
	e.next()
	return nil
}

// TURN piece axis; pops destination then speed.
func turnPieceWithSpeed(e *execution) error {
	destination, speed, err := e.pop2()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.animate(Animation{
		Kind:   Rotate,
		Piece:  piece,
		Axis:   axis,
		Target: model.NormalizeAngle(Angular(destination)),
		Speed:  Angular(speed),
	})
	e.next()
	return nil
}

// SPIN piece axis; pops speed then acceleration.
func startSpin(e *execution) error {
	speed, acceleration, err := e.pop2()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.startSpin(piece, axis, Angular(speed), Angular(acceleration))
	e.next()
	return nil
}

// STOP_SPIN piece axis; pops deceleration.
func stopSpin(e *execution) error {
	deceleration, err := e.thread.pop()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.stopSpin(piece, axis, Angular(deceleration))
	e.next()
	return nil
}

func showPiece(e *execution) error {
	piece, err := e.context.pieceIndex(e.code[1])
	if err != nil {
		return err
	}
	e.pose.SetHidden(piece, false)
	e.next()
	return nil
}

func hidePiece(e *execution) error {
	piece, err := e.context.pieceIndex(e.code[1])
	if err != nil {
		return err
	}
	e.pose.SetHidden(piece, true)
	e.next()
	return nil
}

// CACHE, DONT_CACHE, DONT_SHADOW and DONT_SHADE only matter to a renderer.
func renderHint(e *execution) error {
	e.next()
	return nil
}

// MOVE_NOW piece axis; pops destination. Supersedes any translation in flight.
func movePieceNow(e *execution) error {
	destination, err := e.thread.pop()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.cancel(isTranslation, piece, axis)
	e.pose.SetMove(piece, axis, Linear(destination))
	e.next()
	return nil
}

// TURN_NOW piece axis; pops destination. Supersedes any rotation in flight.
func turnPieceNow(e *execution) error {
	destination, err := e.thread.pop()
	if err != nil {
		return err
	}
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.context.cancel(isRotation, piece, axis)
	e.pose.SetTurn(piece, axis, Angular(destination))
	e.next()
	return nil
}

// EMIT_SFX piece; pops the effect type.
func emitSfx(e *execution) error {
	sfx, err := e.thread.pop()
	if err != nil {
		return err
	}
	piece, err := e.context.pieceIndex(e.code[1])
	if err != nil {
		return err
	}
	e.host.EmitSfx(SfxType(sfx), piece)
	e.next()
	return nil
}

// ---------------------------------------------------------------------------
// Waits
// ---------------------------------------------------------------------------

func waitForTurn(e *execution) error {
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.thread.status = Status{State: WaitingForTurn, Piece: piece, Axis: axis}
	e.next()
	return nil
}

func waitForMove(e *execution) error {
	piece, axis, err := e.pieceAxis()
	if err != nil {
		return err
	}
	e.thread.status = Status{State: WaitingForMove, Piece: piece, Axis: axis}
	e.next()
	return nil
}

// SLEEP; pops a duration in milliseconds.
func sleep(e *execution) error {
	duration, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.thread.status = Status{
		State: Sleeping,
		Until: e.host.Now() + float64(duration)/1000,
	}
	e.next()
	return nil
}

// ---------------------------------------------------------------------------
// Stack and variables
// ---------------------------------------------------------------------------

func pushImmediate(e *execution) error {
	e.thread.push(e.code[1])
	e.next()
	return nil
}

func pushLocal(e *execution) error {
	v, err := e.thread.local(e.code[1])
	if err != nil {
		return err
	}
	e.thread.push(v)
	e.next()
	return nil
}

func pushStatic(e *execution) error {
	v, err := e.context.static(e.code[1])
	if err != nil {
		return err
	}
	e.thread.push(v)
	e.next()
	return nil
}

func stackAllocate(e *execution) error {
	e.thread.push(0)
	e.next()
	return nil
}

func setLocal(e *execution) error {
	v, err := e.thread.pop()
	if err != nil {
		return err
	}
	if err := e.thread.setLocal(e.code[1], v); err != nil {
		return err
	}
	e.next()
	return nil
}

func setStatic(e *execution) error {
	v, err := e.thread.pop()
	if err != nil {
		return err
	}
	if err := e.context.setStatic(e.code[1], v); err != nil {
		return err
	}
	e.next()
	return nil
}

func popStack(e *execution) error {
	if _, err := e.thread.pop(); err != nil {
		return err
	}
	e.next()
	return nil
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

// binary pops right then left and pushes op(left, right).
func binary(op func(l, r cob.Word) cob.Word) instruction {
	return func(e *execution) error {
		right, left, err := e.pop2()
		if err != nil {
			return err
		}
		e.thread.push(op(left, right))
		e.next()
		return nil
	}
}

func compare(op func(l, r cob.Word) bool) instruction {
	return binary(func(l, r cob.Word) cob.Word { return boolWord(op(l, r)) })
}

func divide(e *execution) error {
	right, left, err := e.pop2()
	if err != nil {
		return err
	}
	if right == 0 {
		return fault(ErrDivideByZero, left)
	}
	e.thread.push(left / right)
	e.next()
	return nil
}

func not(e *execution) error {
	v, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.thread.push(boolWord(v == 0))
	e.next()
	return nil
}

// RANDOM pops max then min and pushes a value in [min, max].
func random(e *execution) error {
	hi, lo, err := e.pop2()
	if err != nil {
		return err
	}
	e.thread.push(e.context.random(lo, hi))
	e.next()
	return nil
}

func getUnitValue(e *execution) error {
	what, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.thread.push(e.host.UnitValue(UnitValue(what)))
	e.next()
	return nil
}

// GET_FUNCTION_RESULT pops four parameters then the selector.
func getFunctionResult(e *execution) error {
	params, err := e.thread.popN(4)
	if err != nil {
		return err
	}
	what, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.thread.push(e.host.FunctionResult(UnitValue(what), [4]cob.Word(params)))
	e.next()
	return nil
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// START_SCRIPT module argc; the new thread runs from the next tick.
func startScript(e *execution) error {
	m, err := e.context.module(e.code[1])
	if err != nil {
		return err
	}
	params, err := e.thread.popN(int(e.code[2]))
	if err != nil {
		return err
	}
	e.next()
	e.context.startModule(m, params)
	return nil
}

// CALL_SCRIPT module argc
func callScript(e *execution) error {
	m, err := e.context.module(e.code[1])
	if err != nil {
		return err
	}
	params, err := e.thread.popN(int(e.code[2]))
	if err != nil {
		return err
	}
	e.next()
	e.thread.call(m, params)
	return nil
}

func jumpToOffset(e *execution) error {
	e.thread.setIP(int(e.code[1]))
	return nil
}

func returnResult(e *execution) error {
	v, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.next()
	e.thread.ret(v)
	return nil
}

func jumpToOffsetIfFalse(e *execution) error {
	cond, err := e.thread.pop()
	if err != nil {
		return err
	}
	if cond != 0 {
		e.next()
	} else {
		e.thread.setIP(int(e.code[1]))
	}
	return nil
}

func signal(e *execution) error {
	mask, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.next()
	e.context.SignalThreads(mask, e.thread)
	return nil
}

func setSignalMask(e *execution) error {
	mask, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.thread.signalMask = mask
	e.next()
	return nil
}

// ---------------------------------------------------------------------------
// Host effects
// ---------------------------------------------------------------------------

// EXPLODE piece; pops explode flags.
func explode(e *execution) error {
	how, err := e.thread.pop()
	if err != nil {
		return err
	}
	piece, err := e.context.pieceIndex(e.code[1])
	if err != nil {
		return err
	}
	e.host.Explode(piece, ExplodeFlags(how))
	e.next()
	return nil
}

func playSound(e *execution) error {
	index := e.code[1]
	var name string
	if sounds := e.context.script.Sounds; index >= 0 && int(index) < len(sounds) {
		name = sounds[index]
	}
	e.host.PlaySound(int(index), name)
	e.next()
	return nil
}

func mapCommand(e *execution) error {
	e.host.MapCommand(e.code[1], e.code[2])
	e.next()
	return nil
}

// SET_UNIT_VALUE pops the value then the selector.
func setUnitValue(e *execution) error {
	value, what, err := e.pop2()
	if err != nil {
		return err
	}
	e.host.SetUnitValue(UnitValue(what), value)
	e.next()
	return nil
}

// ATTACH_UNIT pops arg, piece, unit.
func attachUnit(e *execution) error {
	arg, piece, err := e.pop2()
	if err != nil {
		return err
	}
	unit, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.host.AttachUnit(unit, piece, arg)
	e.next()
	return nil
}

func dropUnit(e *execution) error {
	unit, err := e.thread.pop()
	if err != nil {
		return err
	}
	e.host.DropUnit(unit)
	e.next()
	return nil
}
