// Package internal documents the GatherSpace server internals.
//
// The internal tree is organized by responsibility:
// - api: HTTP handlers, middleware, response envelopes, and routing
// - domain: business logic and domain models
// - storage: database access and repositories (pgx + Postgres)
// - jobs: background workers and the river queue
// - auth, audit, cache, config, email, metrics, notify: shared infrastructure
//
// Code in internal/ is not meant for external import.
package internal
