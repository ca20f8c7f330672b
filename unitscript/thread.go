package unitscript

import (
	"fmt"
	"sync/atomic"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
)

// ---------------------------------------------------------------------------
// Status: the thread state machine
// ---------------------------------------------------------------------------

// State is the run state of a thread.
type State uint8

const (
	Running State = iota
	Sleeping
	WaitingForMove
	WaitingForTurn
	Finished
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Sleeping:
		return "sleeping"
	case WaitingForMove:
		return "waiting-for-move"
	case WaitingForTurn:
		return "waiting-for-turn"
	case Finished:
		return "finished"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Status is a State plus the condition that ends it. Until is only
// meaningful when Sleeping; Piece and Axis only when waiting. Piece is a
// model piece index.
type Status struct {
	State State      `cbor:"state"`
	Until float64    `cbor:"until,omitempty"`
	Piece int        `cbor:"piece,omitempty"`
	Axis  model.Axis `cbor:"axis,omitempty"`
}

func (s Status) String() string {
	switch s.State {
	case Sleeping:
		return fmt.Sprintf("sleeping(until %.3f)", s.Until)
	case WaitingForMove, WaitingForTurn:
		return fmt.Sprintf("%s(%d, %s)", s.State, s.Piece, s.Axis)
	}
	return s.State.String()
}

// ---------------------------------------------------------------------------
// Thread: one cooperative execution strand
// ---------------------------------------------------------------------------

// Thread ids are global and never reused.
var lastThreadID atomic.Uint64

func nextThreadID() uint64 {
	return lastThreadID.Add(1)
}

// reserveThreadID makes sure future ids are greater than id.
func reserveThreadID(id uint64) {
	for {
		cur := lastThreadID.Load()
		if cur >= id || lastThreadID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Thread is a script strand. Its stack holds call frames and operands in a
// single slice:
//
//	[saved fp] ip param... local... operand...
//	           ^ fp
//
// The top-level frame has no saved frame pointer and starts at index 0.
type Thread struct {
	id         uint64
	module     string
	argc       int
	stack      []cob.Word
	fp         int
	status     Status
	signalMask cob.Word

	result  cob.Word
	results []cob.Word // parameter slots at top-level return
}

func newThread(m cob.Module, params []cob.Word) *Thread {
	t := &Thread{
		id:     nextThreadID(),
		module: m.Name,
		argc:   len(params),
		stack:  make([]cob.Word, 0, 16+len(params)+m.LocalCount),
	}
	t.pushFrame(m, params)
	return t
}

// ID returns the thread's identity.
func (t *Thread) ID() uint64 { return t.id }

// Module returns the name of the module the thread was started with.
func (t *Thread) Module() string { return t.module }

// Status returns the current run status.
func (t *Thread) Status() Status { return t.status }

// SignalMask returns the mask set by SET_SIGNAL_MASK.
func (t *Thread) SignalMask() cob.Word { return t.signalMask }

// FramePointer returns the stack index of the active frame.
func (t *Thread) FramePointer() int { return t.fp }

// StackLen returns the number of words on the stack.
func (t *Thread) StackLen() int { return len(t.stack) }

// Finished reports whether the thread has terminated.
func (t *Thread) Finished() bool { return t.status.State == Finished }

// Signaled reports whether a broadcast of mask terminates this thread.
func (t *Thread) Signaled(mask cob.Word) bool {
	return t.signalMask&mask != 0
}

func (t *Thread) String() string {
	return fmt.Sprintf("[%d] %s %s", t.id, t.module, t.status)
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func (t *Thread) push(v cob.Word) {
	t.stack = append(t.stack, v)
}

func (t *Thread) pop() (cob.Word, error) {
	if len(t.stack) <= t.fp+1 {
		return 0, fault(ErrStackUnderflow, 0)
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v, nil
}

// popN pops n words and returns them in push order.
func (t *Thread) popN(n int) ([]cob.Word, error) {
	if n < 0 {
		return nil, fault(ErrStackUnderflow, cob.Word(n))
	}
	if len(t.stack)-n <= t.fp {
		return nil, fault(ErrStackUnderflow, cob.Word(n))
	}
	out := make([]cob.Word, n)
	copy(out, t.stack[len(t.stack)-n:])
	t.stack = t.stack[:len(t.stack)-n]
	return out, nil
}

func (t *Thread) local(index cob.Word) (cob.Word, error) {
	i := t.fp + 1 + int(index)
	if index < 0 || i >= len(t.stack) {
		return 0, fault(ErrBadLocal, index)
	}
	return t.stack[i], nil
}

func (t *Thread) setLocal(index cob.Word, v cob.Word) error {
	i := t.fp + 1 + int(index)
	if index < 0 || i >= len(t.stack) {
		return fault(ErrBadLocal, index)
	}
	t.stack[i] = v
	return nil
}

// ip is stored in the first slot of the active frame.
func (t *Thread) ip() int {
	return int(t.stack[t.fp])
}

func (t *Thread) setIP(ip int) {
	t.stack[t.fp] = cob.Word(ip)
}

// ---------------------------------------------------------------------------
// Frame management
// ---------------------------------------------------------------------------

// pushFrame lays out the entry offset, the parameters and zeroed locals for
// any declared slots the parameters leave unfilled.
func (t *Thread) pushFrame(m cob.Module, params []cob.Word) {
	t.push(cob.Word(m.Offset))
	t.stack = append(t.stack, params...)
	for i := len(params); i < m.LocalCount; i++ {
		t.push(0)
	}
}

// call enters m. The caller's ip must already point past the call.
func (t *Thread) call(m cob.Module, params []cob.Word) {
	t.push(cob.Word(t.fp))
	t.fp = len(t.stack)
	t.pushFrame(m, params)
}

// ret leaves the active frame, or finishes the thread at top level.
func (t *Thread) ret(value cob.Word) {
	if t.fp > 0 {
		saved := int(t.stack[t.fp-1])
		t.stack = t.stack[:t.fp-1]
		t.fp = saved
		return
	}
	t.result = value
	if n := 1 + t.argc; n <= len(t.stack) {
		t.results = append([]cob.Word(nil), t.stack[1:n]...)
	}
	t.status = Status{State: Finished}
}

// ---------------------------------------------------------------------------
// Main loop
// ---------------------------------------------------------------------------

// run resumes the thread if its blocking condition has been met, then
// executes until it blocks, finishes or spends the budget. A thread that
// blocks during this pass is not resumed before the next one. A returned
// error means the thread faulted; the caller finishes it.
func (t *Thread) run(c *Context, pose Pose, host Host) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fault(ErrPanic, 0)
			c.log.Debugf("thread %d panic: %v", t.id, r)
		}
	}()

	switch t.status.State {
	case Sleeping:
		if host.Now() < t.status.Until {
			return nil
		}
	case WaitingForMove:
		if c.animating(isTranslation, t.status.Piece, t.status.Axis) {
			return nil
		}
	case WaitingForTurn:
		if c.animating(isRotation, t.status.Piece, t.status.Axis) {
			return nil
		}
	case Finished:
		return nil
	}
	t.status = Status{State: Running}

	for executed := 0; t.status.State == Running; executed++ {
		if c.budget > 0 && executed >= c.budget {
			return nil
		}
		if err := t.step(c, pose, host); err != nil {
			return err
		}
	}
	return nil
}

// step fetches, decodes and dispatches one instruction.
func (t *Thread) step(c *Context, pose Pose, host Host) error {
	code := c.script.Code
	ip := t.ip()
	if ip < 0 || ip >= len(code) {
		return fault(ErrBadInstructionPointer, cob.Word(ip))
	}
	op, ok := cob.Decode(code[ip])
	if !ok {
		return fault(ErrBadOpcode, code[ip])
	}
	exec := instructions[op.Ordinal()]
	if exec == nil {
		return fault(ErrUnimplementedOpcode, code[ip])
	}
	if ip+op.Size() > len(code) {
		return fault(ErrBadInstructionPointer, cob.Word(ip))
	}
	return exec(&execution{
		context: c,
		thread:  t,
		pose:    pose,
		host:    host,
		code:    code[ip:],
		ip:      ip,
	})
}
