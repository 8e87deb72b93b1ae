// Package billing provides the domain model for usage quotas and plan enforcement
// in a multi-tenant telemetry platform.
//
// This package is responsible for:
//   - Describing plan tiers and their per-dimension limits (Plan)
//   - Resolving a tenant's effective limits from plan and overrides (Subscription)
//   - Deciding whether a single resource creation fits the quota (Decide)
//   - Resolving the enforcement state machine ACTIVE → WARN → GRACE → DEGRADED (Evaluate)
//   - Compiling a state into sampling, retention and freeze rules (Compile)
//
// Evaluate, Decide and Compile are pure functions. Counting usage, persisting
// enforcement records and publishing events happen in the application layer
// through the repository ports declared here.
package billing
