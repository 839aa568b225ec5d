package checkout

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"golang.org/x/text/unicode/norm"
)

// applier executes the plan against the filesystem, tracking progress and
// performance counters. Deletes run first, then writes, each in a stable
// path order. Already-applied actions are never rolled back on failure.
type applier struct {
	fs     billy.Filesystem
	storer storer.EncodedObjectStorer
	o      *Options

	perf      PerfData
	completed int
	total     int

	// folded maps case-folded paths to the name currently on disk, the
	// capability backing case-insensitive collision handling.
	folded map[string]string

	// skipped holds directories that could not be accessed and were
	// left untouched under SkipLockedDirectories.
	skipped []string

	applied []*action
}

func newApplier(fs billy.Filesystem, s storer.EncodedObjectStorer, o *Options, t *diffTable) *applier {
	a := &applier{
		fs:     fs,
		storer: s,
		o:      o,
		folded: make(map[string]string),
	}

	t.each(func(e *entry) error {
		if e.workdir != nil {
			a.folded[foldPath(e.path)] = e.path
		}

		return nil
	})

	return a
}

func foldPath(p string) string {
	return strings.ToLower(norm.NFC.String(p))
}

func (a *applier) run(p *plan) error {
	a.total = p.size()

	// counters are reported even when the plan is abandoned part way
	defer func() {
		if a.o.Perfdata != nil {
			a.o.Perfdata(a.perf)
		}
	}()

	for _, act := range p.deletes {
		if err := a.step(act, a.remove); err != nil {
			return err
		}
	}

	for _, act := range p.writes {
		if err := a.step(act, a.write); err != nil {
			return err
		}
	}

	return nil
}

func (a *applier) step(act *action, fn func(*action) error) error {
	p := act.entry.path

	if a.underSkipped(p) {
		a.progress(p)
		return nil
	}

	if err := fn(act); err != nil {
		if errors.Is(err, os.ErrPermission) {
			dir := path.Dir(p)

			if a.o.Strategy.has(SkipLockedDirectories) {
				a.skipped = append(a.skipped, dir)
				a.progress(p)

				return nil
			}

			err = fmt.Errorf("%w: %s: %v", ErrLockedDirectory, dir, err)
		}

		return &ApplyError{Path: p, Completed: a.completed, Total: a.total, Err: err}
	}

	a.applied = append(a.applied, act)
	a.progress(p)

	return nil
}

func (a *applier) progress(p string) {
	a.completed++

	if a.o.Progress != nil {
		a.o.Progress(p, a.completed, a.total)
	}
}

func (a *applier) underSkipped(p string) bool {
	for _, dir := range a.skipped {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}

	return false
}

func (a *applier) remove(act *action) error {
	p := act.entry.path

	if err := a.removeAll(p); err != nil && !os.IsNotExist(err) {
		return err
	}

	delete(a.folded, foldPath(p))
	a.pruneEmptyDirs(path.Dir(p))

	return nil
}

func (a *applier) write(act *action) error {
	p := act.entry.path

	// a path folding to an existing name on disk either replaces that
	// name or, with DontRemoveExisting, writes through it
	if existing, ok := a.folded[foldPath(p)]; ok && existing != p {
		if a.o.Strategy.has(DontRemoveExisting) {
			p = existing
		} else {
			if err := a.removeAll(existing); err != nil && !os.IsNotExist(err) {
				return err
			}

			delete(a.folded, foldPath(existing))
		}
	}

	if err := a.ensureDir(path.Dir(p)); err != nil {
		return err
	}

	if act.conflictFile {
		content, err := a.conflictContent(act.entry)
		if err != nil {
			return err
		}

		err = a.writeFile(p, act.state, func(w io.Writer) error {
			_, err := w.Write(content)
			return err
		})
		if err != nil {
			return err
		}

		a.folded[foldPath(p)] = p

		return nil
	}

	if act.state.Mode == filemode.Symlink {
		if err := a.writeSymlink(p, act.state.Hash); err != nil {
			return err
		}

		a.folded[foldPath(p)] = p

		return nil
	}

	blob, err := object.GetBlob(a.storer, act.state.Hash)
	if err != nil {
		return fmt.Errorf("missing blob for %q: %w", p, err)
	}

	err = a.writeFile(p, act.state, func(w io.Writer) error {
		r, err := blob.Reader()
		if err != nil {
			return err
		}

		defer r.Close()

		src := io.Reader(r)
		if a.o.Filter != nil && !a.o.DisableFilters {
			mode, _ := act.state.Mode.ToOSFileMode()
			if src, err = a.o.Filter(p, mode, src); err != nil {
				return err
			}
		}

		_, err = io.Copy(w, src)

		return err
	})
	if err != nil {
		return err
	}

	a.folded[foldPath(p)] = p

	return nil
}

func (a *applier) writeFile(p string, st *FileState, fill func(io.Writer) error) error {
	mode, err := a.fileMode(st)
	if err != nil {
		return err
	}

	existed, err := a.clearPath(p)
	if err != nil {
		return err
	}

	f, err := a.fs.OpenFile(p, a.o.FileOpenFlags, mode)
	if err != nil {
		return err
	}

	if err := fill(f); err != nil {
		f.Close()
		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	// OpenFile only applies the mode to newly created files
	if existed {
		if ch, ok := a.fs.(billy.Change); ok {
			a.perf.ChmodCalls++

			if err := ch.Chmod(p, mode); err != nil {
				return err
			}
		}
	}

	return nil
}

func (a *applier) writeSymlink(p string, blobHash plumbing.Hash) error {
	target, err := a.readBlob(blobHash)
	if err != nil {
		return err
	}

	// symlinks cannot be truncated in place
	if existed, err := a.clearAny(p); err != nil {
		return err
	} else if existed {
		if err := a.removeAll(p); err != nil {
			return err
		}
	}

	return a.fs.Symlink(string(target), p)
}

// clearPath removes a directory or symlink occupying the path of a regular
// file write and reports whether a regular file remains in place.
func (a *applier) clearPath(p string) (existed bool, err error) {
	a.perf.StatCalls++

	fi, err := a.fs.Lstat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	if fi.IsDir() || fi.Mode()&os.ModeSymlink != 0 {
		if err := a.removeAll(p); err != nil {
			return false, err
		}

		return false, nil
	}

	return true, nil
}

func (a *applier) clearAny(p string) (existed bool, err error) {
	a.perf.StatCalls++

	if _, err := a.fs.Lstat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, err
	}

	return true, nil
}

func (a *applier) fileMode(st *FileState) (os.FileMode, error) {
	if a.o.FileMode != 0 {
		return a.o.FileMode, nil
	}

	return st.Mode.ToOSFileMode()
}

func (a *applier) ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}

	a.perf.StatCalls++

	if _, err := a.fs.Lstat(dir); err == nil {
		return nil
	}

	a.perf.MkdirCalls++

	return a.fs.MkdirAll(dir, a.o.DirMode)
}

func (a *applier) removeAll(p string) error {
	a.perf.StatCalls++

	fi, err := a.fs.Lstat(p)
	if err != nil {
		return err
	}

	if !fi.IsDir() {
		return a.fs.Remove(p)
	}

	infos, err := a.fs.ReadDir(p)
	if err != nil {
		return err
	}

	for _, fi := range infos {
		if err := a.removeAll(path.Join(p, fi.Name())); err != nil {
			return err
		}
	}

	return a.fs.Remove(p)
}

// pruneEmptyDirs removes directories left empty by a deletion, walking up
// towards the root.
func (a *applier) pruneEmptyDirs(dir string) {
	for dir != "" && dir != "." {
		infos, err := a.fs.ReadDir(dir)
		if err != nil || len(infos) > 0 {
			return
		}

		if err := a.fs.Remove(dir); err != nil {
			return
		}

		dir = path.Dir(dir)
	}
}

func (a *applier) conflictContent(e *entry) ([]byte, error) {
	var ancestor, ours, theirs []byte
	var err error

	if e.ancestor != nil {
		if ancestor, err = a.readBlob(e.ancestor.Hash); err != nil {
			return nil, err
		}
	}

	if e.ours != nil {
		if ours, err = a.readBlob(e.ours.Hash); err != nil {
			return nil, err
		}
	}

	if e.theirs != nil {
		if theirs, err = a.readBlob(e.theirs.Hash); err != nil {
			return nil, err
		}
	}

	merged := mergeFile(ancestor, ours, theirs,
		a.o.AncestorLabel, a.o.OurLabel, a.o.TheirLabel, styleOf(a.o.Strategy))

	return merged, nil
}

func (a *applier) readBlob(h plumbing.Hash) ([]byte, error) {
	blob, err := object.GetBlob(a.storer, h)
	if err != nil {
		return nil, err
	}

	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}

	defer r.Close()

	return io.ReadAll(r)
}
