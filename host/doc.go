// Package host is the game side of the script VM: a world of units ticked
// at a fixed rate, the clock and effects sink their scripts see, and a
// worker that serialises all access to the world on one goroutine.
package host
