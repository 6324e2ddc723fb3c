// Package engine implements the execution hierarchy core: the instance
// materializer, the per-kind status state machines with cross-entity
// blocking rules, predecessor eligibility, the phase control gate, derived
// progress rollups and the audit/notification discipline around every
// transition.
//
// Mutation granularity is per instance: a refcounted lock map serializes
// writers on one instance without contending siblings, and every status
// write goes through the store's compare-and-swap.
package engine
