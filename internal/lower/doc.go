// Package lower translates Yul objects and legacy assembly CFGs into native
// modules.
//
// Every lowering call receives an explicit *Context; there is no package
// level mutable state, so units lower concurrently as long as each has its
// own Context. A module has three entry points: __entry, which dispatches on
// the constructor flag, and the deploy and runtime segment functions.
//
// Opcodes without a native counterpart follow Policies: some are emulated
// through system contract far calls, some are compile errors, and some are
// errors that the build settings may downgrade to a trap plus a warning.
package lower
