package checkout

import (
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Strategy is the set of behavior flags for a checkout, mirroring
// libgit2's git_checkout_strategy_t.
type Strategy uint32

const (
	// None is the default dry-run strategy: conflicts are detected and
	// notified, no actual updates are made.
	None Strategy = 0

	// Safe allows updates that cannot overwrite uncommitted data.
	// Mutually exclusive with Force; Force takes precedence when both
	// are set.
	Safe Strategy = 1 << 0

	// Force allows all updates needed to make the working directory
	// match the target, discarding local modifications.
	Force Strategy = 1 << 1

	// RecreateMissing allows checkout to recreate files deleted from the
	// working directory even when the target did not change them.
	RecreateMissing Strategy = 1 << 2

	// AllowConflicts makes Safe mode apply the safe portion of the plan
	// even if conflicts are found, instead of cancelling.
	AllowConflicts Strategy = 1 << 4

	// RemoveUntracked removes files not in target, baseline or index and
	// not ignored.
	RemoveUntracked Strategy = 1 << 5

	// RemoveIgnored removes ignored files not in the index.
	RemoveIgnored Strategy = 1 << 6

	// UpdateOnly only updates the content of files that already exist;
	// creates and deletes are stripped from the plan.
	UpdateOnly Strategy = 1 << 7

	// DontUpdateIndex stops checkout from writing updated file
	// information to the index. Implies DontWriteIndex.
	DontUpdateIndex Strategy = 1 << 8

	// NoRefresh skips reloading the index and ignore patterns from disk
	// before the comparison, reusing state cached by a previous
	// invocation on the same Checkout.
	NoRefresh Strategy = 1 << 9

	// SkipUnmerged skips paths with unmerged index entries instead of
	// treating them as conflicts.
	SkipUnmerged Strategy = 1 << 10

	// UseOurs checks out the stage 2 version of unmerged paths.
	UseOurs Strategy = 1 << 11

	// UseTheirs checks out the stage 3 version of unmerged paths.
	UseTheirs Strategy = 1 << 12

	// DisablePathspecMatch treats Options.Paths as a list of exact
	// paths instead of prefixes.
	DisablePathspecMatch Strategy = 1 << 13

	// UpdateSubmodules and UpdateSubmodulesIfChanged request recursive
	// submodule checkout. Not implemented; rejected by Validate.
	UpdateSubmodules          Strategy = 1 << 16
	UpdateSubmodulesIfChanged Strategy = 1 << 17

	// SkipLockedDirectories leaves directories that cannot be accessed
	// untouched; paths below them are skipped, not errors.
	SkipLockedDirectories Strategy = 1 << 18

	// DontOverwriteIgnored prevents ignored working directory files from
	// being overwritten by the target.
	DontOverwriteIgnored Strategy = 1 << 19

	// ConflictStyleMerge writes normal two-side conflict markers for
	// unmerged paths checked out with AllowConflicts.
	ConflictStyleMerge Strategy = 1 << 20

	// ConflictStyleDiff3 includes the common ancestor section in
	// conflict markers.
	ConflictStyleDiff3 Strategy = 1 << 21

	// DontRemoveExisting prevents checkout from removing files or
	// directories that fold to the same name on case insensitive
	// filesystems; content is written through the existing name.
	DontRemoveExisting Strategy = 1 << 22

	// DontWriteIndex prevents the final index write.
	DontWriteIndex Strategy = 1 << 23

	// DryRun stops after sending notifications; the working directory
	// and index are left untouched even under Safe or Force.
	DryRun Strategy = 1 << 24

	// ConflictStyleZdiff3 writes zealous diff3 conflict markers.
	ConflictStyleZdiff3 Strategy = 1 << 25
)

func (s Strategy) has(f Strategy) bool { return s&f != 0 }

// isNoop reports whether the strategy performs no updates by definition.
func (s Strategy) isNoop() bool { return !s.has(Safe | Force) }

// NotifyKind selects which classification events are delivered to the
// notify callback.
type NotifyKind uint

const (
	NotifyConflict NotifyKind = 1 << iota
	NotifyDirty
	NotifyUpdated
	NotifyUntracked
	NotifyIgnored
)

// NotifyAll subscribes to every notification kind.
const NotifyAll = NotifyConflict | NotifyDirty | NotifyUpdated | NotifyUntracked | NotifyIgnored

// NotifyFunc is called for each notification event, in path order, during
// classification. Returning a non-nil error cancels the whole checkout;
// nothing is applied when the cancellation happens before application.
type NotifyFunc func(kind NotifyKind, path string, baseline, target, workdir *FileState) error

// ProgressFunc is called after each completed step during application.
// Total is fixed before application begins.
type ProgressFunc func(path string, completed, total int)

// PerfData accumulates filesystem call counters during application.
type PerfData struct {
	MkdirCalls int
	StatCalls  int
	ChmodCalls int
}

// PerfdataFunc receives the accumulated counters, at minimum once when
// application completes.
type PerfdataFunc func(PerfData)

// FilterFunc transforms blob content before it is written to the working
// directory, e.g. for line ending conversion. It is skipped when
// Options.DisableFilters is set.
type FilterFunc func(path string, mode os.FileMode, r io.Reader) (io.Reader, error)

const (
	defaultDirMode       = 0o755
	defaultFileOpenFlags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC

	defaultOurLabel      = "ours"
	defaultTheirLabel    = "theirs"
	defaultAncestorLabel = "ancestor"
)

const conflictStyles = ConflictStyleMerge | ConflictStyleDiff3 | ConflictStyleZdiff3

// Options describes how a checkout should be performed.
type Options struct {
	// Strategy is the flag set controlling the checkout behavior. The
	// zero value is a dry run.
	Strategy Strategy

	// NotifyMask selects the notification kinds delivered to Notify.
	NotifyMask NotifyKind
	// Notify is called synchronously for classification events.
	Notify NotifyFunc
	// Progress is called after each applied step.
	Progress ProgressFunc
	// Perfdata receives filesystem call counters after application.
	Perfdata PerfdataFunc

	// Filter transforms blob content on its way to disk.
	Filter FilterFunc
	// DisableFilters skips Filter even when set.
	DisableFilters bool

	// DirMode is the mode for created directories. Defaults to 0755.
	DirMode os.FileMode
	// FileMode overrides the mode of written files. When zero, the mode
	// recorded in the target entry is used.
	FileMode os.FileMode
	// FileOpenFlags are the flags used to open files for writing.
	// Defaults to os.O_WRONLY|os.O_CREATE|os.O_TRUNC.
	FileOpenFlags int

	// Paths restricts the checkout to matching paths. Entries match as
	// path prefixes unless DisablePathspecMatch requests exact matches.
	Paths []string

	// Baseline overrides the tree used as the known previously
	// checked-out state. Defaults to the tree at HEAD.
	Baseline *object.Tree
	// BaselineIndex overrides the baseline with the stage 0 entries of
	// an index. Takes precedence over Baseline.
	BaselineIndex *index.Index

	// TargetFilesystem checks out into an alternate root instead of the
	// Checkout's working directory filesystem.
	TargetFilesystem billy.Filesystem

	// AncestorLabel, OurLabel and TheirLabel name the sides in conflict
	// markers written to disk.
	AncestorLabel string
	OurLabel      string
	TheirLabel    string
}

// Validate normalizes the options in place: Force wins over Safe,
// DontUpdateIndex implies DontWriteIndex, defaults are filled in, and
// unsupported or contradictory flag sets are rejected.
func (o *Options) Validate() error {
	if o.Strategy.has(UpdateSubmodules | UpdateSubmodulesIfChanged) {
		return fmt.Errorf("%w: submodule recursion is not implemented", ErrUnsupportedStrategy)
	}

	if o.Strategy.has(Safe) && o.Strategy.has(Force) {
		o.Strategy &^= Safe
	}

	if o.Strategy.has(UseOurs) && o.Strategy.has(UseTheirs) {
		return fmt.Errorf("%w: UseOurs and UseTheirs are mutually exclusive", ErrInvalidOptions)
	}

	if style := o.Strategy & conflictStyles; style != 0 && style&(style-1) != 0 {
		return fmt.Errorf("%w: more than one conflict style", ErrInvalidOptions)
	}

	if o.Strategy.has(DontUpdateIndex) {
		o.Strategy |= DontWriteIndex
	}

	if o.DirMode == 0 {
		o.DirMode = defaultDirMode
	}

	if o.FileOpenFlags == 0 {
		o.FileOpenFlags = defaultFileOpenFlags
	}

	if o.OurLabel == "" {
		o.OurLabel = defaultOurLabel
	}

	if o.TheirLabel == "" {
		o.TheirLabel = defaultTheirLabel
	}

	if o.AncestorLabel == "" {
		o.AncestorLabel = defaultAncestorLabel
	}

	return nil
}

// matchPaths reports whether path is selected by the Paths filter. An
// empty filter selects everything.
func (o *Options) matchPaths(path string) bool {
	if len(o.Paths) == 0 {
		return true
	}

	for _, p := range o.Paths {
		if o.Strategy.has(DisablePathspecMatch) {
			if path == p {
				return true
			}

			continue
		}

		if path == p || startsWithDir(path, p) {
			return true
		}
	}

	return false
}

func startsWithDir(path, prefix string) bool {
	return len(path) > len(prefix) &&
		path[:len(prefix)] == prefix &&
		path[len(prefix)] == '/'
}
