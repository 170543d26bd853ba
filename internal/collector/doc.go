// Package collector enumerates the members of a virtualized roster list for
// one poll cycle.
//
// A virtualized list only materializes the items near its viewport, so a
// single read sees a fraction of the roster. The collector scrolls the
// container from the top in StepSize increments, waits SettleDelay after
// each move for the list to re-render, reads the visible items and merges
// them into one set keyed by the item's ordinal key (or its label when the
// provider has no key).
//
// Recall depends on the tunables:
//
//   - StepSize at or below the viewport (client) height leaves no gaps
//     between captures; larger steps skip the rows in between. With
//     StepSize = k x clientHeight, expect roughly 1/k of the roster per scan.
//   - SettleDelay must cover the list's render latency. Too short and a
//     capture returns the previous window (or nothing), which looks like a
//     gap even with a small StepSize. 30-100ms is typical for React-style
//     virtual lists.
//   - MaxCycleDuration caps the scan. A full pass needs about
//     (scrollHeight / StepSize) x (SettleDelay + provider latency); when the
//     budget runs out the snapshot is returned partial and flagged Truncated.
//
// Misses within a cycle are tolerated downstream: the presence reconciler
// only emits a leave after continuous absence beyond its threshold.
package collector
