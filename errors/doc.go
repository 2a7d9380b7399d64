// Package errors provides the structured error type shared by all host
// packages. Errors carry a lifecycle Phase and a Kind so callers can
// classify failures without string matching.
package errors
