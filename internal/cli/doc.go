// Package cli wires together the Cobra command tree for the docredact binary.
//
// It defines the root command and its subcommands (redact, version), binds
// flags, reads the shared environment configuration, runs each file through
// the redaction pipeline, and returns exit codes: 0 when every copy was
// written, 1 when any file failed, 2 on usage errors.
package cli
