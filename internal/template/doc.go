// Package template loads the thing template document: the immutable
// desired-state descriptor for the sensor facet of every reconciled
// device.
//
// The document is YAML with a synthetic-feature section and a
// reconciliation section (changed, deleting, timers). Script sources
// may be given inline or as a reference to an external file, which is
// resolved at load time; an unreadable referenced file is a fatal load
// error. The template is loaded once at process start and never changes
// for the lifetime of the process.
package template
