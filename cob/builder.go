package cob

import (
	"encoding/binary"
	"fmt"
)

// ---------------------------------------------------------------------------
// Builder: Helper for constructing code
// ---------------------------------------------------------------------------

// Builder emits code words and module entry points. It is not a compiler:
// callers choose every instruction.
type Builder struct {
	code    []Word
	modules []Module
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{code: make([]Word, 0, 64)}
}

// Len returns the current length in code words.
func (b *Builder) Len() int {
	return len(b.code)
}

// Code returns the emitted code words.
func (b *Builder) Code() []Word {
	return b.code
}

// Module starts a new module at the current position.
func (b *Builder) Module(name string) {
	b.modules = append(b.modules, Module{Name: name, Offset: len(b.code)})
}

// Emit appends an instruction. The immediate count must match the opcode.
func (b *Builder) Emit(op Opcode, immediates ...Word) {
	if want := op.Info().Immediates; op.Valid() && want != len(immediates) {
		panic(fmt.Sprintf("cob: %s takes %d immediates, got %d", op, want, len(immediates)))
	}
	b.code = append(b.code, Word(op))
	b.code = append(b.code, immediates...)
}

// EmitRaw appends a raw word.
func (b *Builder) EmitRaw(w Word) {
	b.code = append(b.code, w)
}

// Push emits PUSH_CONSTANT value.
func (b *Builder) Push(value Word) {
	b.Emit(OpPushImmediate, value)
}

// Locals emits n STACK_ALLOCATE instructions.
func (b *Builder) Locals(n int) {
	for i := 0; i < n; i++ {
		b.Emit(OpStackAllocate)
	}
}

// ---------------------------------------------------------------------------
// Label management for jumps
// ---------------------------------------------------------------------------

// Label is a jump target. Jump operands are absolute code offsets.
type Label struct {
	resolved bool
	position int
	refs     []int
}

// NewLabel creates an unresolved label.
func (b *Builder) NewLabel() *Label {
	return &Label{refs: make([]int, 0, 2)}
}

// Mark resolves a label to the current position.
func (b *Builder) Mark(label *Label) {
	if label.resolved {
		panic("label already resolved")
	}
	label.resolved = true
	label.position = len(b.code)
	for _, ref := range label.refs {
		b.code[ref] = Word(label.position)
	}
	label.refs = nil
}

// EmitJump emits JUMP or JUMP_IF_FALSE to a label.
func (b *Builder) EmitJump(op Opcode, label *Label) {
	b.code = append(b.code, Word(op))
	if label.resolved {
		b.code = append(b.code, Word(label.position))
		return
	}
	label.refs = append(label.refs, len(b.code))
	b.code = append(b.code, 0)
}

// Script finishes the build. Local counts are derived from the code.
func (b *Builder) Script(pieces, sounds []string, statics int) *Script {
	code := make([]Word, len(b.code))
	copy(code, b.code)
	modules := make([]Module, len(b.modules))
	for i, m := range b.modules {
		m.LocalCount = CountLocals(code, m.Offset)
		modules[i] = m
	}
	return &Script{
		Version:     VersionTotalAnnihilation,
		Code:        code,
		Modules:     modules,
		Pieces:      append([]string(nil), pieces...),
		Sounds:      append([]string(nil), sounds...),
		StaticCount: statics,
	}
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

// Encode writes a script as a COB container that Load accepts.
//
// Layout: header, code, module pointers, module name offsets, piece name
// offsets, sound name offsets, NUL-terminated names.
func Encode(s *Script) []byte {
	version := s.Version
	if version == 0 {
		version = VersionTotalAnnihilation
	}

	codeAt := HeaderSize
	modulePtrsAt := codeAt + 4*len(s.Code)
	moduleNamesAt := modulePtrsAt + 4*len(s.Modules)
	pieceNamesAt := moduleNamesAt + 4*len(s.Modules)
	soundNamesAt := pieceNamesAt + 4*len(s.Pieces)
	namesAt := soundNamesAt + 4*len(s.Sounds)

	var names []byte
	nameOffset := func(name string) uint32 {
		off := uint32(namesAt + len(names))
		names = append(names, name...)
		names = append(names, 0)
		return off
	}

	out := make([]byte, namesAt)
	put := func(at int, v uint32) { binary.LittleEndian.PutUint32(out[at:], v) }

	for i, v := range []uint32{
		version,
		uint32(len(s.Modules)),
		uint32(len(s.Pieces)),
		uint32(len(s.Code)),
		uint32(s.StaticCount),
		0,
		uint32(modulePtrsAt),
		uint32(moduleNamesAt),
		uint32(pieceNamesAt),
		uint32(codeAt),
		uint32(namesAt),
		uint32(soundNamesAt),
		uint32(len(s.Sounds)),
	} {
		put(4*i, v)
	}
	for i, w := range s.Code {
		put(codeAt+4*i, uint32(w))
	}
	for i, m := range s.Modules {
		put(modulePtrsAt+4*i, uint32(m.Offset))
		put(moduleNamesAt+4*i, nameOffset(m.Name))
	}
	for i, p := range s.Pieces {
		put(pieceNamesAt+4*i, nameOffset(p))
	}
	for i, snd := range s.Sounds {
		put(soundNamesAt+4*i, nameOffset(snd))
	}
	return append(out, names...)
}
