// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the slr-engine pipeline:
// paper records, PRISMA tallies, critique reports, and stage configurations.
package types
