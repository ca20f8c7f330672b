package cob

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Script: a parsed COB container
// ---------------------------------------------------------------------------

// Container versions found in the header.
const (
	VersionTotalAnnihilation uint32 = 4
	VersionKingdoms          uint32 = 6
)

// HeaderSize is the size in bytes of the fixed container header.
const HeaderSize = 13 * 4

// Module is a named entry point into the shared code array.
type Module struct {
	Name       string
	Offset     int // code word index of the first instruction
	LocalCount int // leading STACK_ALLOCATE instructions at Offset
}

// Script is an immutable compiled unit script. One Script is shared by every
// context created from it; nothing here is copied per unit.
type Script struct {
	Version     uint32
	Code        []Word
	Modules     []Module
	Pieces      []string
	Sounds      []string
	StaticCount int
}

// ModuleIndex returns the index of the module with the given name.
func (s *Script) ModuleIndex(name string) (int, bool) {
	for i := range s.Modules {
		if s.Modules[i].Name == name {
			return i, true
		}
	}
	return -1, false
}

// Module returns the module with the given name.
func (s *Script) Module(name string) (Module, bool) {
	if i, ok := s.ModuleIndex(name); ok {
		return s.Modules[i], true
	}
	return Module{}, false
}

// CountLocals counts the consecutive STACK_ALLOCATE words starting at offset.
func CountLocals(code []Word, offset int) int {
	n := 0
	for i := offset; i >= 0 && i < len(code) && code[i] == Word(OpStackAllocate); i++ {
		n++
	}
	return n
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrTruncated is returned when a header field points past the end of the data.
	ErrTruncated = errors.New("cob: truncated container")
	// ErrMalformed is returned when header fields are inconsistent.
	ErrMalformed = errors.New("cob: malformed container")
)

// HeaderError describes which part of the container could not be read.
type HeaderError struct {
	Field  string
	Offset int
	Err    error
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("%v: %s at byte %d", e.Err, e.Field, e.Offset)
}

func (e *HeaderError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

type header struct {
	Version                uint32
	NumberOfModules        uint32
	NumberOfPieces         uint32
	LengthOfAllModules     uint32 // in code words
	NumberOfStaticVars     uint32
	AlwaysZero             int32
	OffsetToModulePointers uint32
	OffsetToModuleNames    uint32
	OffsetToPieceNames     uint32
	OffsetToFirstModule    uint32
	OffsetToNameArray      uint32
	OffsetToSoundNames     uint32
	NumberOfSounds         uint32
}

// Load parses a COB container. Either the whole container is valid and a
// Script is returned, or an error is returned and nothing escapes.
func Load(data []byte) (*Script, error) {
	if len(data) < HeaderSize {
		return nil, &HeaderError{Field: "header", Offset: 0, Err: ErrTruncated}
	}
	var h header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("cob: read header: %w", err)
	}

	r := reader{data: data}

	code, err := r.words("code", h.OffsetToFirstModule, h.LengthOfAllModules)
	if err != nil {
		return nil, err
	}
	offsets, err := r.uint32s("module pointers", h.OffsetToModulePointers, h.NumberOfModules)
	if err != nil {
		return nil, err
	}
	moduleNames, err := r.strings("module names", h.OffsetToModuleNames, h.NumberOfModules)
	if err != nil {
		return nil, err
	}
	pieces, err := r.strings("piece names", h.OffsetToPieceNames, h.NumberOfPieces)
	if err != nil {
		return nil, err
	}
	var sounds []string
	if h.NumberOfSounds > 0 {
		sounds, err = r.strings("sound names", h.OffsetToSoundNames, h.NumberOfSounds)
		if err != nil {
			return nil, err
		}
	}

	modules := make([]Module, len(offsets))
	for i, off := range offsets {
		if int64(off) >= int64(len(code)) {
			return nil, &HeaderError{
				Field:  fmt.Sprintf("module %q entry %d", moduleNames[i], off),
				Offset: int(h.OffsetToModulePointers) + 4*i,
				Err:    ErrMalformed,
			}
		}
		modules[i] = Module{
			Name:       moduleNames[i],
			Offset:     int(off),
			LocalCount: CountLocals(code, int(off)),
		}
	}

	return &Script{
		Version:     h.Version,
		Code:        code,
		Modules:     modules,
		Pieces:      pieces,
		Sounds:      sounds,
		StaticCount: int(h.NumberOfStaticVars),
	}, nil
}

// reader performs bounds-checked reads of offset tables.
type reader struct {
	data []byte
}

func (r reader) span(field string, offset, count, size uint32) ([]byte, error) {
	start := int64(offset)
	end := start + int64(count)*int64(size)
	if end > int64(len(r.data)) {
		return nil, &HeaderError{Field: field, Offset: int(offset), Err: ErrTruncated}
	}
	return r.data[start:end], nil
}

func (r reader) uint32s(field string, offset, count uint32) ([]uint32, error) {
	b, err := r.span(field, offset, count, 4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return out, nil
}

func (r reader) words(field string, offset, count uint32) ([]Word, error) {
	raw, err := r.uint32s(field, offset, count)
	if err != nil {
		return nil, err
	}
	out := make([]Word, len(raw))
	for i, u := range raw {
		out[i] = Word(u)
	}
	return out, nil
}

func (r reader) strings(field string, offset, count uint32) ([]string, error) {
	offsets, err := r.uint32s(field, offset, count)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(offsets))
	for i, off := range offsets {
		if int64(off) >= int64(len(r.data)) {
			return nil, &HeaderError{Field: fmt.Sprintf("%s[%d]", field, i), Offset: int(off), Err: ErrTruncated}
		}
		end := bytes.IndexByte(r.data[off:], 0)
		if end < 0 {
			return nil, &HeaderError{Field: fmt.Sprintf("%s[%d] terminator", field, i), Offset: int(off), Err: ErrTruncated}
		}
		out[i] = string(r.data[off : int(off)+end])
	}
	return out, nil
}

// String returns a one-line summary of the script.
func (s *Script) String() string {
	names := make([]string, len(s.Modules))
	for i, m := range s.Modules {
		names[i] = m.Name
	}
	return fmt.Sprintf("cob v%d: %d words, %d statics, modules [%s], pieces [%s]",
		s.Version, len(s.Code), s.StaticCount, strings.Join(names, " "), strings.Join(s.Pieces, " "))
}
