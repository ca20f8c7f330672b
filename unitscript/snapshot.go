package unitscript

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chazu/unitscript/cob"
	"github.com/chazu/unitscript/model"
	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Snapshots
// ---------------------------------------------------------------------------

// ErrBadSnapshot is returned by Restore for a snapshot that does not fit the
// context's script.
var ErrBadSnapshot = errors.New("bad snapshot")

// ThreadSnapshot is the saved state of one thread.
type ThreadSnapshot struct {
	ID           uint64     `cbor:"id"`
	Module       string     `cbor:"module"`
	Argc         int        `cbor:"argc,omitempty"`
	Stack        []cob.Word `cbor:"stack"`
	FramePointer int        `cbor:"fp,omitempty"`
	Status       Status     `cbor:"status"`
	SignalMask   cob.Word   `cbor:"mask,omitempty"`
}

// Snapshot is the saved state of a Context: everything except the script,
// the piece bindings and the options, which are rebuilt by New. Pose is
// carried for the host, which owns it; Snapshot and Restore ignore it.
type Snapshot struct {
	Modules    int                `cbor:"modules"`
	Statics    []cob.Word         `cbor:"statics"`
	Threads    []ThreadSnapshot   `cbor:"threads,omitempty"`
	Animations []Animation        `cbor:"animations,omitempty"`
	Random     []byte             `cbor:"random,omitempty"`
	Pose       []model.PieceState `cbor:"pose,omitempty"`
}

// Snapshot captures the context between ticks.
func (c *Context) Snapshot() *Snapshot {
	s := &Snapshot{
		Modules:    len(c.script.Modules),
		Statics:    c.Statics(),
		Animations: c.Animations(),
	}
	if state, err := c.source.MarshalBinary(); err == nil {
		s.Random = state
	}
	for _, t := range c.threads {
		s.Threads = append(s.Threads, ThreadSnapshot{
			ID:           t.id,
			Module:       t.module,
			Argc:         t.argc,
			Stack:        append([]cob.Word(nil), t.stack...),
			FramePointer: t.fp,
			Status:       t.status,
			SignalMask:   t.signalMask,
		})
	}
	return s
}

// Restore replaces the context's statics, threads and animations with s.
// The context is unchanged when an error is returned.
func (c *Context) Restore(s *Snapshot) error {
	if s.Modules != len(c.script.Modules) {
		return fmt.Errorf("%w: %d modules, script has %d", ErrBadSnapshot, s.Modules, len(c.script.Modules))
	}
	if len(s.Statics) != len(c.statics) {
		return fmt.Errorf("%w: %d statics, script has %d", ErrBadSnapshot, len(s.Statics), len(c.statics))
	}
	threads := make([]*Thread, 0, len(s.Threads))
	for _, ts := range s.Threads {
		if _, ok := c.script.Module(ts.Module); !ok {
			return fmt.Errorf("%w: thread %d: unknown module %q", ErrBadSnapshot, ts.ID, ts.Module)
		}
		if ts.FramePointer < 0 || ts.FramePointer >= len(ts.Stack) {
			return fmt.Errorf("%w: thread %d: frame pointer %d outside stack", ErrBadSnapshot, ts.ID, ts.FramePointer)
		}
		if err := checkFrames(ts.Stack, ts.FramePointer); err != nil {
			return fmt.Errorf("%w: thread %d: %v", ErrBadSnapshot, ts.ID, err)
		}
		if ts.Argc < 0 {
			return fmt.Errorf("%w: thread %d: negative argc %d", ErrBadSnapshot, ts.ID, ts.Argc)
		}
		threads = append(threads, &Thread{
			id:         ts.ID,
			module:     ts.Module,
			argc:       ts.Argc,
			stack:      append([]cob.Word(nil), ts.Stack...),
			fp:         ts.FramePointer,
			status:     ts.Status,
			signalMask: ts.SignalMask,
		})
	}
	for _, a := range s.Animations {
		if !a.Axis.Valid() {
			return fmt.Errorf("%w: animation %s: bad axis", ErrBadSnapshot, a)
		}
		if !slices.Contains(c.pieceMap, a.Piece) {
			return fmt.Errorf("%w: animation %s: piece not bound", ErrBadSnapshot, a)
		}
	}
	if len(s.Random) > 0 {
		if err := c.source.UnmarshalBinary(s.Random); err != nil {
			return fmt.Errorf("%w: random state: %v", ErrBadSnapshot, err)
		}
	}

	for _, t := range threads {
		reserveThreadID(t.id)
	}
	copy(c.statics, s.Statics)
	c.threads = threads
	c.animations = append([]Animation(nil), s.Animations...)
	return nil
}

// checkFrames walks the saved frame pointers from fp down to the top-level
// frame. Each saved pointer must lie strictly below the frame that saved it,
// leaving room for its ip slot.
func checkFrames(stack []cob.Word, fp int) error {
	for fp > 0 {
		if fp < 2 {
			return fmt.Errorf("frame %d has no saved frame pointer", fp)
		}
		saved := int(stack[fp-1])
		if saved < 0 || saved > fp-2 {
			return fmt.Errorf("frame %d saves frame pointer %d", fp, saved)
		}
		fp = saved
	}
	return nil
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("unitscript: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalSnapshot serializes a Snapshot to canonical CBOR.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	return cborEncMode.Marshal(s)
}

// UnmarshalSnapshot deserializes a Snapshot from CBOR bytes.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unitscript: unmarshal snapshot: %w", err)
	}
	return &s, nil
}
