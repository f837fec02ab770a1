// Package domain defines the core business types for the TechAura outreach
// engine.
//
// Types in this package are pure value objects with no behavior beyond small
// helper methods. They are the shared language between the scheduler, the
// gate evaluator, the suppression resolver, and the storage adapters.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Validation methods are allowed (they're pure functions on the type)
//   - Constants and enums belong here
package domain
