// Package cli is responsible for parsing command-line arguments, turning them
// into an engine configuration and an invocation, and mapping failures to
// exit codes.
package cli
