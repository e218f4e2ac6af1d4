// Package reconciler contains the per-device reconciliation state
// machine and the template differencer.
//
// A reconciler is level-triggered: every invocation recomputes the
// needed action from current inputs and performs the minimal set of API
// calls to converge twin state. It reports one of two terminal outcomes
// per attempt: Complete, or Retry when external state moved underneath
// it (a lost optimistic-concurrency race, a half-finished provisioning
// step). The dispatcher in the operator package drives attempts until
// Complete.
//
// The differencer syncs the loaded thing template into a Thing's
// declared sub-state: synthetic features, on-changed handlers,
// on-deleting handlers and timers. Template-controlled fields are
// overwritten, runtime-only fields are never touched, and entries
// absent from the template are removed.
package reconciler
