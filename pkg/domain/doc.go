// Package domain holds the core types of the cutover execution hierarchy:
// entity kinds, the status state machines, templates and their live
// instances, the error taxonomy, audit entries and notification events.
//
// The package is dependency-free by design. Behavior (materialization,
// transition enforcement, gating) lives in internal/engine; persistence
// lives behind pkg/ports.
package domain
