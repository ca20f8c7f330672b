package cob

import (
	"fmt"
	"sort"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction disassembles the instruction at pos and returns its
// text along with the offset of the next instruction. Unknown words are
// printed as data and consume one word.
func DisassembleInstruction(s *Script, pos int) (string, int) {
	w := s.Code[pos]
	op, ok := Decode(w)
	if !ok {
		return fmt.Sprintf("%04d  .word 0x%08X", pos, uint32(w)), pos + 1
	}
	info := op.Info()
	if pos+info.Size() > len(s.Code) {
		return fmt.Sprintf("%04d  %s <truncated>", pos, info.Name), len(s.Code)
	}
	imm := s.Code[pos+1 : pos+info.Size()]

	switch op {
	case OpMovePieceWithSpeed, OpTurnPieceWithSpeed, OpStartSpin, OpStopSpin,
		OpMovePieceNow, OpTurnPieceNow, OpWaitForTurn, OpWaitForMove:
		return fmt.Sprintf("%04d  %s %s %s", pos, info.Name, s.pieceName(imm[0]), axisName(imm[1])), pos + info.Size()

	case OpShowPiece, OpHidePiece, OpCachePiece, OpDontCachePiece, OpDontShadow,
		OpDontShade, OpEmitSfx, OpExplode:
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, s.pieceName(imm[0])), pos + info.Size()

	case OpStartScript, OpCallScript:
		return fmt.Sprintf("%04d  %s %s argc=%d", pos, info.Name, s.moduleName(imm[0]), imm[1]), pos + info.Size()

	case OpJumpToOffset, OpJumpToOffsetIfFalse:
		return fmt.Sprintf("%04d  %s -> %04d", pos, info.Name, imm[0]), pos + info.Size()

	case OpPlaySound:
		return fmt.Sprintf("%04d  %s %s", pos, info.Name, s.soundName(imm[0])), pos + info.Size()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%04d  %s", pos, info.Name)
	for _, v := range imm {
		fmt.Fprintf(&b, " %d", v)
	}
	return b.String(), pos + info.Size()
}

// Disassemble returns a listing of every module in code order.
func Disassemble(s *Script) string {
	order := make([]int, len(s.Modules))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return s.Modules[order[a]].Offset < s.Modules[order[b]].Offset
	})

	var b strings.Builder
	for n, idx := range order {
		m := s.Modules[idx]
		end := len(s.Code)
		if n+1 < len(order) {
			end = s.Modules[order[n+1]].Offset
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s:  ; module %d, %d locals\n", m.Name, idx, m.LocalCount)
		for pos := m.Offset; pos < end; {
			var line string
			line, pos = DisassembleInstruction(s, pos)
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (s *Script) pieceName(w Word) string {
	if w >= 0 && int(w) < len(s.Pieces) {
		return s.Pieces[w]
	}
	return fmt.Sprintf("piece?%d", w)
}

func (s *Script) moduleName(w Word) string {
	if w >= 0 && int(w) < len(s.Modules) {
		return s.Modules[w].Name
	}
	return fmt.Sprintf("module?%d", w)
}

func (s *Script) soundName(w Word) string {
	if w >= 0 && int(w) < len(s.Sounds) {
		return s.Sounds[w]
	}
	return fmt.Sprintf("sound?%d", w)
}

func axisName(w Word) string {
	switch w {
	case 0:
		return "x-axis"
	case 1:
		return "y-axis"
	case 2:
		return "z-axis"
	}
	return fmt.Sprintf("axis?%d", w)
}
