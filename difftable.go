package checkout

import (
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// FileState describes the mode and content of a path in one of the four
// sources compared by checkout. A nil *FileState means the path is absent
// from that source.
type FileState struct {
	Mode filemode.FileMode
	Hash plumbing.Hash
}

func (f *FileState) equal(other *FileState) bool {
	if f == nil || other == nil {
		return f == other
	}

	return f.Mode == other.Mode && f.Hash == other.Hash
}

// entry is one row of the diff table: the state of a single path in the
// baseline tree, target tree, working directory and index. An entry exists
// only if at least one source knows the path.
type entry struct {
	path string

	baseline *FileState
	target   *FileState
	workdir  *FileState
	index    *FileState

	// unmerged index stages, set when the path has stage 1-3 entries.
	ancestor *FileState
	ours     *FileState
	theirs   *FileState

	// workdirDir is set when the working directory holds a directory
	// where a source tracks a file.
	workdirDir bool
	// ignored is set when the working directory path matches the ignore
	// patterns.
	ignored bool
	// skipWorktree entries (sparse checkout) are excluded from
	// reconciliation.
	skipWorktree bool
}

func (e *entry) unmerged() bool {
	return e.ours != nil || e.theirs != nil || e.ancestor != nil
}

// diffTable holds the entries sorted by path so that classification and
// notifications fire in deterministic path order.
type diffTable struct {
	entries *treemap.Map
}

func newDiffTable() *diffTable {
	return &diffTable{entries: treemap.NewWithStringComparator()}
}

func (t *diffTable) entry(p string) *entry {
	if v, ok := t.entries.Get(p); ok {
		return v.(*entry)
	}

	e := &entry{path: p}
	t.entries.Put(p, e)

	return e
}

func (t *diffTable) lookup(p string) (*entry, bool) {
	v, ok := t.entries.Get(p)
	if !ok {
		return nil, false
	}

	return v.(*entry), true
}

func (t *diffTable) each(fn func(*entry) error) error {
	it := t.entries.Iterator()
	for it.Next() {
		if err := fn(it.Value().(*entry)); err != nil {
			return err
		}
	}

	return nil
}

// tableBuilder merges per-source lookups into the diff table. Trees and
// the index are loaded before the working directory so the walk can flag
// directory/file type changes.
type tableBuilder struct {
	fs    billy.Filesystem
	table *diffTable
}

func newTableBuilder(fs billy.Filesystem) *tableBuilder {
	return &tableBuilder{fs: fs, table: newDiffTable()}
}

func (b *tableBuilder) addTree(t *object.Tree, assign func(*entry, *FileState)) error {
	if t == nil {
		return nil
	}

	w := object.NewTreeWalker(t, true, nil)
	defer w.Close()

	for {
		name, te, err := w.Next()
		if err == io.EOF {
			return nil
		}

		if err != nil {
			return fmt.Errorf("malformed tree: %w", err)
		}

		if te.Mode == filemode.Dir || te.Mode == filemode.Submodule {
			continue
		}

		assign(b.table.entry(name), &FileState{Mode: te.Mode, Hash: te.Hash})
	}
}

func (b *tableBuilder) addIndex(idx *index.Index) error {
	for _, ie := range idx.Entries {
		if ie.Name == "" {
			return fmt.Errorf("malformed index: entry without a path")
		}

		e := b.table.entry(ie.Name)
		st := &FileState{Mode: ie.Mode, Hash: ie.Hash}

		switch ie.Stage {
		case index.AncestorMode:
			e.ancestor = st
		case index.OurMode:
			e.ours = st
		case index.TheirMode:
			e.theirs = st
		default:
			if ie.IntentToAdd {
				continue
			}

			e.index = st
			e.skipWorktree = ie.SkipWorktree
		}
	}

	return nil
}

func (b *tableBuilder) addBaselineIndex(idx *index.Index) error {
	for _, ie := range idx.Entries {
		if ie.Stage != 0 {
			continue
		}

		e := b.table.entry(ie.Name)
		e.baseline = &FileState{Mode: ie.Mode, Hash: ie.Hash}
	}

	return nil
}

func (b *tableBuilder) addWorkdir(m gitignore.Matcher) error {
	return b.walkDir("", m)
}

func (b *tableBuilder) walkDir(dir string, m gitignore.Matcher) error {
	infos, err := b.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return err
	}

	for _, fi := range infos {
		p := path.Join(dir, fi.Name())
		if p == gitDirName {
			continue
		}

		if fi.IsDir() {
			if e, ok := b.table.lookup(p); ok {
				e.workdirDir = true
			}

			if err := b.walkDir(p, m); err != nil {
				return err
			}

			continue
		}

		st, err := b.workdirState(p, fi)
		if err != nil {
			return err
		}

		e := b.table.entry(p)
		e.workdir = st
		e.ignored = m != nil && m.Match(strings.Split(p, "/"), false)
	}

	return nil
}

// workdirState hashes the file as a blob so it can be compared with tree
// and index entries.
func (b *tableBuilder) workdirState(p string, fi os.FileInfo) (*FileState, error) {
	mode, err := filemode.NewFromOSFileMode(fi.Mode())
	if err != nil {
		return nil, err
	}

	if mode == filemode.Symlink {
		target, err := b.fs.Readlink(p)
		if err != nil {
			return nil, err
		}

		return &FileState{Mode: mode, Hash: hashBlob([]byte(target))}, nil
	}

	f, err := b.fs.Open(p)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	h := plumbing.NewHasher(plumbing.BlobObject, fi.Size())
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}

	return &FileState{Mode: mode, Hash: h.Sum()}, nil
}

func hashBlob(content []byte) plumbing.Hash {
	h := plumbing.NewHasher(plumbing.BlobObject, int64(len(content)))
	h.Write(content)

	return h.Sum()
}
