// Package services defines shared utilities consumed by the pipeline
// operations and the API layer.
//
// Key responsibilities:
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (per-file vs fatal, transient vs permanent) uniform
//     across scanner, resolver, and migrator.
//   - Context helpers that stamp operation names and correlation
//     identifiers for logging.
//
// Use these helpers when wiring new operation logic so error handling and
// observability stay consistent across the pipeline.
package services
