// Package scheduler runs named refresh jobs on intervals for livefetch.
//
// This package is internal to livefetch. It implements a worker pool with
// configurable concurrency and a tick-and-check loop so that jobs with
// different intervals share one ticker.
//
// The main components are:
//
//   - [Scheduler]: Runs jobs immediately, then whenever they are due
//   - [Job]: A named function with an optional interval
//   - [Outcome]: Result of one job run
//
// Users of the livefetch library should not need to interact with this
// package directly.
package scheduler
