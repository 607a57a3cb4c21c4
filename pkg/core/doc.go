// Package core defines the shared language of the leapbundle system.
//
// This package contains:
//   - Build entities (Module, Asset, Diagnostic)
//   - Rule configuration types (Rule, TransformSpec)
//   - Severity levels shared by transforms, the builder and the dev server
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
