// Package report defines the gap reports produced by a scan.
//
// Reports are plain values with JSON tags. The reconcilers build them once
// and nothing mutates them afterwards; exporters and the CLI only read them.
// Failures sit next to the gaps so a reader sees both what was found and what
// could not be checked.
package report
