package checkout

import (
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage"
)

const gitDirName = ".git"

// Checkout reconciles a target tree, the baseline tree, the working
// directory and the index, applying the minimal safe set of filesystem
// mutations to make the working directory and index match the target.
//
// A Checkout is not safe for concurrent use; invocations against the same
// working directory must be serialized by the caller.
type Checkout struct {
	// Storer provides objects, references and the index.
	Storer storage.Storer
	// Filesystem is the working directory.
	Filesystem billy.Filesystem

	// state reused across invocations when NoRefresh is set.
	cachedIndex    *index.Index
	cachedPatterns []gitignore.Pattern
	patternsLoaded bool
}

// New returns a Checkout over the given storer and working directory.
func New(s storage.Storer, fs billy.Filesystem) (*Checkout, error) {
	if s == nil {
		return nil, errors.New("storer is nil")
	}

	if fs == nil {
		return nil, errors.New("filesystem is nil")
	}

	return &Checkout{Storer: s, Filesystem: fs}, nil
}

// Result describes what a checkout invocation did.
type Result struct {
	// Strategy is the normalized strategy the checkout ran with.
	Strategy Strategy

	// Created, Updated and Removed count the applied actions per kind.
	Created int
	Updated int
	Removed int

	// Conflicts lists the conflicting paths found during classification.
	// Only populated when the checkout was not cancelled by them.
	Conflicts []string

	// CompletedSteps and TotalSteps mirror the final progress callback.
	CompletedSteps int
	TotalSteps     int

	// Perf holds the filesystem call counters accumulated during
	// application.
	Perf PerfData
}

// Tree checks out the given target tree.
func (c *Checkout) Tree(target *object.Tree, o *Options) (*Result, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: target tree is nil", ErrInvalidOptions)
	}

	return c.run(target, false, o)
}

// Head resolves HEAD to a commit and checks out its tree.
func (c *Checkout) Head(o *Options) (*Result, error) {
	target, err := c.headTree()
	if err != nil {
		return nil, err
	}

	if target == nil {
		return nil, ErrNoTarget
	}

	return c.run(target, false, o)
}

// Index reconciles the working directory with the current index: the
// stage 0 index entries act as the target.
func (c *Checkout) Index(o *Options) (*Result, error) {
	return c.run(nil, true, o)
}

func (c *Checkout) run(target *object.Tree, indexAsTarget bool, o *Options) (*Result, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	fs := c.Filesystem
	if o.TargetFilesystem != nil {
		fs = o.TargetFilesystem
	}

	idx, err := c.loadIndex(o)
	if err != nil {
		return nil, fmt.Errorf("checkout: load index: %w", err)
	}

	matcher, err := c.loadIgnoreMatcher(fs, o)
	if err != nil {
		return nil, fmt.Errorf("checkout: load ignore patterns: %w", err)
	}

	table, err := c.buildTable(fs, target, indexAsTarget, idx, matcher, o)
	if err != nil {
		return nil, fmt.Errorf("checkout: build diff table: %w", err)
	}

	cl := &classifier{o: o, d: newDispatcher(o)}

	plan, conflicts, err := cl.run(table)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Strategy:   o.Strategy,
		Conflicts:  conflicts,
		TotalSteps: plan.size(),
	}

	if o.Strategy.has(Safe) && !o.Strategy.has(AllowConflicts) && len(conflicts) > 0 {
		return nil, &ConflictError{Paths: conflicts}
	}

	if o.Strategy.isNoop() || o.Strategy.has(DryRun) {
		return res, nil
	}

	a := newApplier(fs, c.Storer, o, table)

	applyErr := a.run(plan)
	res.CompletedSteps = a.completed
	res.Perf = a.perf

	for _, act := range a.applied {
		switch act.kind {
		case actionCreate:
			res.Created++
		case actionUpdate:
			res.Updated++
		case actionDelete:
			res.Removed++
		}
	}

	// the applied portion is synced even when application failed partway,
	// so the persisted index matches the partial working directory state
	// the error reports
	if !o.Strategy.has(DontUpdateIndex) {
		syncIndex(fs, idx, a.applied)

		if !o.Strategy.has(DontWriteIndex) {
			if err := c.Storer.SetIndex(idx); err != nil && applyErr == nil {
				return res, &IndexWriteError{Err: err}
			}
		}
	}

	if applyErr != nil {
		return nil, applyErr
	}

	return res, nil
}

func (c *Checkout) buildTable(fs billy.Filesystem, target *object.Tree, indexAsTarget bool, idx *index.Index, matcher gitignore.Matcher, o *Options) (*diffTable, error) {
	b := newTableBuilder(fs)

	if indexAsTarget {
		for _, ie := range idx.Entries {
			if ie.Stage != 0 || ie.IntentToAdd {
				continue
			}

			e := b.table.entry(ie.Name)
			e.target = &FileState{Mode: ie.Mode, Hash: ie.Hash}
		}
	} else {
		err := b.addTree(target, func(e *entry, st *FileState) { e.target = st })
		if err != nil {
			return nil, err
		}
	}

	switch {
	case o.BaselineIndex != nil:
		if err := b.addBaselineIndex(o.BaselineIndex); err != nil {
			return nil, err
		}
	case o.Baseline == nil && indexAsTarget:
		// the index acts as its own baseline: missing workdir files are
		// dirty deletions, not pending creates
		if err := b.addBaselineIndex(idx); err != nil {
			return nil, err
		}
	default:
		baseline := o.Baseline
		if baseline == nil {
			var err error
			if baseline, err = c.headTree(); err != nil {
				return nil, err
			}
		}

		err := b.addTree(baseline, func(e *entry, st *FileState) { e.baseline = st })
		if err != nil {
			return nil, err
		}
	}

	if err := b.addIndex(idx); err != nil {
		return nil, err
	}

	if err := b.addWorkdir(matcher); err != nil {
		return nil, err
	}

	return b.table, nil
}

// loadIndex reloads the index from the storer, or reuses the previous
// invocation's copy under NoRefresh. The engine works on its own copy so
// the stored index only changes through the final write.
func (c *Checkout) loadIndex(o *Options) (*index.Index, error) {
	if o.Strategy.has(NoRefresh) && c.cachedIndex != nil {
		return c.cachedIndex, nil
	}

	idx, err := c.Storer.Index()
	if err != nil {
		return nil, err
	}

	idx = copyIndex(idx)
	c.cachedIndex = idx

	return idx, nil
}

func copyIndex(idx *index.Index) *index.Index {
	if idx == nil {
		return &index.Index{Version: 2}
	}

	cp := &index.Index{Version: idx.Version}
	cp.Entries = make([]*index.Entry, len(idx.Entries))

	for i, e := range idx.Entries {
		entry := *e
		cp.Entries[i] = &entry
	}

	return cp
}

func (c *Checkout) loadIgnoreMatcher(fs billy.Filesystem, o *Options) (gitignore.Matcher, error) {
	if o.Strategy.has(NoRefresh) && c.patternsLoaded {
		return gitignore.NewMatcher(c.cachedPatterns), nil
	}

	patterns, err := gitignore.ReadPatterns(fs, nil)
	if err != nil {
		return nil, err
	}

	c.cachedPatterns = patterns
	c.patternsLoaded = true

	return gitignore.NewMatcher(patterns), nil
}

// headTree resolves HEAD to the tree of the commit it points at, or nil
// when the repository has no HEAD yet.
func (c *Checkout) headTree() (*object.Tree, error) {
	ref, err := c.Storer.Reference(plumbing.HEAD)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}

		return nil, err
	}

	for ref.Type() == plumbing.SymbolicReference {
		ref, err = c.Storer.Reference(ref.Target())
		if err != nil {
			if err == plumbing.ErrReferenceNotFound {
				return nil, nil
			}

			return nil, err
		}
	}

	if ref.Hash().IsZero() {
		return nil, nil
	}

	commit, err := object.GetCommit(c.Storer, ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	return commit.Tree()
}
