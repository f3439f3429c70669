// Package vm implements the ellie stack virtual machine.
//
// This package contains:
//   - Isolate: the shared heap, native table and lock
//   - Thread: frames, slot memory and the fetch/dispatch loop
//   - Executers: one stateless function per opcode
//   - The native bridge and its exception records
//   - Debugger: breakpoints, stepping and stack inspection
//
// Threads of one Isolate run concurrently but execute one instruction at a
// time under the Isolate's lock. Any runtime error ends the thread with an
// *ExecuterPanic; nothing is recovered inside a program.
package vm
