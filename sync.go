package checkout

import (
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-git/v5/plumbing/format/index"
)

// fillSystemInfo populates platform-dependent index entry fields (ctime,
// device, inode, owner) from the stat result. Set by per-platform init
// functions.
var fillSystemInfo func(e *index.Entry, sys any)

// syncIndex updates the staged entries for every successfully applied
// action so the index reflects the new working directory state. Skipped
// and conflicted paths are left untouched.
func syncIndex(fs billy.Filesystem, idx *index.Index, applied []*action) {
	for _, act := range applied {
		if act.conflictFile {
			continue
		}

		p := act.entry.path
		removeIndexEntries(idx, p)

		if act.kind == actionDelete {
			continue
		}

		e := idx.Add(p)
		e.Hash = act.state.Hash
		e.Mode = act.state.Mode

		fi, err := fs.Lstat(p)
		if err != nil {
			continue
		}

		e.Size = uint32(fi.Size())
		e.ModifiedAt = fi.ModTime()
		e.CreatedAt = fi.ModTime()

		if fillSystemInfo != nil {
			fillSystemInfo(e, fi.Sys())
		}
	}
}

// removeIndexEntries drops every stage of a path, so resolved paths lose
// their stale stage 1-3 entries along with the previous stage 0.
func removeIndexEntries(idx *index.Index, path string) {
	for {
		if _, err := idx.Remove(path); err != nil {
			return
		}
	}
}
