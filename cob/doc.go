// Package cob reads and writes compiled unit scripts.
//
// A COB container holds a flat array of 32-bit code words shared by every
// module of the script, a table of named modules (entry offsets into the
// code array), the names of the model pieces the script refers to, the
// names of the sounds it plays and the number of static variables.
//
// This package contains:
//   - Container parsing (Load) and writing (Encode)
//   - The opcode enumeration with per-opcode metadata and O(1) decoding
//   - A Builder for emitting code words with labelled jumps
//   - A disassembler
package cob
