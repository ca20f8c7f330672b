// Package unitscript executes compiled unit scripts.
//
// A Context is the per-unit virtual machine. It owns the static variables,
// the binding from script piece indices to model pieces, the cooperative
// script threads and the in-flight piece animations. The host calls Run
// once per tick and then ApplyAnimations with the elapsed time.
//
// Threads are plain data processed in start order; nothing here spawns a
// goroutine or takes a lock. A fault in one thread finishes that thread and
// is logged; it never reaches the caller of Run.
package unitscript
