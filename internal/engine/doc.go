// Package engine embeds a Lua interpreter and drives host extensions from a
// cooperative event loop.
//
// # Extensions
//
// An Extension contributes three things to a Runtime:
//
//   - Ops: host functions callable from scripts as Core.opSync(name, ...)
//   - State: a hook that seeds the shared OpState before any script runs
//   - EventLoopMiddleware: a hook called once per tick that reports whether
//     it performed work
//
// # Event loop
//
// RunEventLoop calls Tick until no middleware reports work. Work queued while
// a middleware runs is visible to that same middleware, so a single tick can
// drain chains of follow-up work.
//
// A Runtime and its Lua state belong to one goroutine. Host goroutines that
// need to hand work to scripts do so through resources stored in OpState.
package engine
