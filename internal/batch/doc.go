// Package batch creates pull requests for the items of a worklist.
//
// The Executor walks the worklist in order. For every item it resolves the
// downstream fork, creates a pull request that merges the upstream branch
// into the local branch of the fork and labels it.
// Failures of single items are classified and recorded in a report.Report,
// they do not stop the run.
//
// After every item the index of the item is recorded in the checkpoint of its
// worklist file. When a worklist file is processed again, the recorded number
// of leading items is skipped without contacting GitHub.
package batch
