// Package checkout updates a working directory and index to match a target
// tree.
//
// Checkout looks at (up to) four things: the target tree to check out, the
// baseline tree of what was checked out previously, the working directory
// for actual files, and the index for staged changes. Unlike `git checkout`
// it does not move HEAD for you; resolving the target tree from a reference
// is the caller's concern, except for the Head convenience entry point.
//
// Three strategies control how much checkout is allowed to touch:
//
//   - None is a dry run. Conflicts and dirty files are detected and
//     reported through the notify callback, but nothing is written.
//
//   - Safe only makes modifications that cannot lose uncommitted data. A
//     path whose working directory or staged content diverged from the
//     baseline, and which the target also wants to change, is a conflict;
//     by default any conflict cancels the whole checkout before a single
//     file is written.
//
//   - Force takes any action needed to make the working directory match
//     the target, including discarding local modifications.
//
// The working directory and index are reconciled per path using the
// decision table from libgit2's checkout: paths equal in target, baseline,
// working directory and index need no action; paths only the target moved
// are created, updated or deleted; paths only the working directory moved
// are dirty notifications; paths both sides moved are conflicts.
//
// Progress, notification and performance-counter callbacks observe a
// strictly ordered, deterministic sequence of events. A single checkout
// invocation is single threaded; concurrent invocations against the same
// working directory must be serialized by the caller.
package checkout
