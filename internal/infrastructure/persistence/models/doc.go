// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Structure:
// - base.go: shared column sets
// - billing.go: plans, subscriptions, enforcement states, projects
// - telemetry.go: read-side projections of the ingestion tables counted by the usage meter
//
// IDs are stored as char(36) so the same models run on postgres, mysql and sqlite.
// Maps and nested structs are stored as JSON text.
package models
