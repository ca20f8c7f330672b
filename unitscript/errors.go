package unitscript

import (
	"errors"
	"fmt"

	"github.com/chazu/unitscript/cob"
)

// ---------------------------------------------------------------------------
// Construction errors
// ---------------------------------------------------------------------------

// ErrPieceNotFound is matched by PieceNotFoundError.
var ErrPieceNotFound = errors.New("piece not found")

// PieceNotFoundError reports a script piece name missing from the model.
// No Context is produced when it is returned.
type PieceNotFoundError struct {
	Name string
}

func (e *PieceNotFoundError) Error() string {
	return fmt.Sprintf("unitscript: piece %q not found in model", e.Name)
}

func (e *PieceNotFoundError) Unwrap() error { return ErrPieceNotFound }

// ---------------------------------------------------------------------------
// Thread faults
// ---------------------------------------------------------------------------

// Fault classes. A fault finishes the thread that raised it and nothing else.
var (
	ErrBadOpcode             = errors.New("bad opcode")
	ErrUnimplementedOpcode   = errors.New("unimplemented opcode")
	ErrBadLocal              = errors.New("bad local")
	ErrBadStatic             = errors.New("bad static")
	ErrBadModule             = errors.New("bad module")
	ErrBadPiece              = errors.New("bad piece")
	ErrBadAxis               = errors.New("bad axis")
	ErrStackUnderflow        = errors.New("stack underflow")
	ErrBadInstructionPointer = errors.New("bad instruction pointer")
	ErrDivideByZero          = errors.New("divide by zero")
	ErrPanic                 = errors.New("panic")
)

// Fault is a per-thread execution error.
type Fault struct {
	Err    error    // one of the fault classes above
	Value  cob.Word // offending operand
	Offset int      // code offset of the faulting instruction
	Thread uint64
	Module string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("thread %d (%s) at %04d: %v %d", f.Thread, f.Module, f.Offset, f.Err, f.Value)
}

func (f *Fault) Unwrap() error { return f.Err }

func fault(err error, value cob.Word) *Fault {
	return &Fault{Err: err, Value: value}
}
