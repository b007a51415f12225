// Package diag defines the diagnostic model shared by every stage of the
// backend: lowering, code generation, assembling and linking.
//
// Diagnostic is the central record: Severity, Code, owning Unit, Message,
// Primary span and optional Notes. Codes are grouped into categories
// (validation, unsupported, linking, assembler, resource, advisory, project);
// the category decides how the build pipeline reacts:
//
//   - validation / unsupported / resource / linking errors fail the unit;
//   - assembler errors fail the whole build (they mean a malformed module);
//   - advisory diagnostics are warnings and never fail anything.
//
// Stages emit through a Reporter (usually BagReporter bound to the unit's Bag)
// so that emission is decoupled from storage and formatting. Rendering lives
// in internal/diagfmt.
package diag
