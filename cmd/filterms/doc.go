// Package main hosts the filterms CLI entrypoint and command graph.
//
// The Cobra command tree starts publisher endpoints and aggregators over the
// shared rendezvous directory, inspects and sweeps peer entries, runs the
// provider filter over offers, and reads back the recorded signal history.
// Configuration resolution and logger construction live in the command
// context so subcommands only wire internal packages together.
package main
