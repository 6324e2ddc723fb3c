/*
Package gantry is a cutover execution engine for datacenter and cloud
migrations. It turns reusable plan templates into live execution hierarchies
and drives them through a gated status state machine with a complete audit
trail.

# Concept

A migration is planned once as a template tree (Plan, Sequences, Phases,
Steps, Instructions, Controls) and executed many times: each execution wave
is an Iteration, and materializing a plan into an iteration clones the whole
template tree into independent live instances. Templates freeze on first
use, so a running wave can never be changed from under its operators;
per-instance field overrides capture wave-specific divergence instead.

Execution is governed by three gating rules: an instance cannot start while
its predecessor has not completed, a step cannot complete while mandatory
instructions are open, and a phase cannot complete while critical controls
have not passed. Every transition and override is recorded in an append-only
audit trail; a transition whose audit record cannot be written is rolled
back and reported as uncommitted.

# Usage

	package main

	import (
		"context"
		"log"

		"github.com/gantryio/gantry"
		"github.com/gantryio/gantry/pkg/domain"
	)

	func main() {
		eng := gantry.New()
		ctx := context.Background()
		planner := domain.Actor{ID: "paula", Role: domain.RolePlanner}

		mig, err := eng.CreateMigration(ctx, "DC exit 2026", planner)
		if err != nil {
			log.Fatal(err)
		}
		iter, _ := eng.CreateIteration(ctx, mig.ID, "wave 1", planner)

		if _, err := eng.LoadPlanFile(ctx, "plans/dc-exit.yaml", planner); err != nil {
			log.Fatal(err)
		}
		result, err := eng.Materialize(ctx, iter.ID, "dc-exit", planner)
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("materialized %d instances", result.Created)
	}

Durable deployments swap the in-memory defaults for the Redis adapters and
enable distributed locking; see the options on New and the cmd/gantry
server.
*/
package gantry
