// Package ports defines the boundary interfaces of the engine: template and
// instance persistence, the append-only audit log, the outbound notifier and
// distributed locking. Adapters live under internal/adapters.
package ports
