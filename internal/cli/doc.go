// Package cli wires together the Cobra command tree for the compcache binary.
//
// It defines the root command and its subcommands (key, check, update, stats,
// clear, version), reads environment configuration, and returns exit codes
// that scripts can branch on: a check miss exits with ExitMiss.
package cli
