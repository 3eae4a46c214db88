// Package store holds the dashboard-facing snapshots of livefetch resources.
//
// This package is internal to livefetch. It keeps the latest [Snapshot] of
// every resource, keyed by name, and fans changes out to subscribers such as
// Server-Sent Events clients.
//
// The main components are:
//
//   - [Store]: Interface defining storage and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Snapshot]: JSON representation of one resource's state
//
// Subscribers receive updates via channels with non-blocking sends (slow
// subscribers miss updates rather than block the writer).
package store
