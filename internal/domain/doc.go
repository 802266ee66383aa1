// Package domain defines the core domain types and interfaces.
//
// Shared types (Snapshot, AdvanceMode) and the consumer-side contracts for the
// series store live here. No implementation code - just contracts.
package domain
