// Package runner executes plan steps as external processes.
//
// Every step runs through `bash -o pipefail -c` (`sh -c` on hosts without
// bash) with an allowlisted environment: only the inherited variable names,
// ROOT and the declared env layers are visible. Output is appended to the
// node's log file and the last lines are kept for error reports. Steps are
// never retried.
package runner
