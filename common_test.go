package checkout

import (
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/format/index"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/suite"
)

// BaseSuite provides an in-memory repository and helpers to build the
// blobs, trees, commits and index states the scenarios need.
type BaseSuite struct {
	suite.Suite

	storer *memory.Storage
	fs     billy.Filesystem
	co     *Checkout
}

func (s *BaseSuite) SetupTest() {
	s.storer = memory.NewStorage()
	s.fs = memfs.New()

	co, err := New(s.storer, s.fs)
	s.Require().NoError(err)
	s.co = co
}

type treeFile struct {
	content string
	mode    filemode.FileMode
}

func file(content string) treeFile {
	return treeFile{content: content, mode: filemode.Regular}
}

func executable(content string) treeFile {
	return treeFile{content: content, mode: filemode.Executable}
}

func symlink(target string) treeFile {
	return treeFile{content: target, mode: filemode.Symlink}
}

func (s *BaseSuite) blob(content string) plumbing.Hash {
	obj := s.storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	s.Require().NoError(err)

	_, err = w.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(w.Close())

	h, err := s.storer.SetEncodedObject(obj)
	s.Require().NoError(err)

	return h
}

type treeNode struct {
	files map[string]treeFile
	dirs  map[string]*treeNode
}

func newTreeNode() *treeNode {
	return &treeNode{files: map[string]treeFile{}, dirs: map[string]*treeNode{}}
}

func (n *treeNode) insert(p string, f treeFile) {
	dir, name := path.Split(p)
	node := n

	for _, part := range splitPath(dir) {
		child, ok := node.dirs[part]
		if !ok {
			child = newTreeNode()
			node.dirs[part] = child
		}

		node = child
	}

	node.files[name] = f
}

func splitPath(dir string) []string {
	var parts []string

	for _, part := range strings.Split(dir, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}

	return parts
}

// tree writes the given files as a tree object (with subtrees for nested
// paths) and returns it.
func (s *BaseSuite) tree(files map[string]treeFile) *object.Tree {
	root := newTreeNode()
	for p, f := range files {
		root.insert(p, f)
	}

	t, err := object.GetTree(s.storer, s.encodeNode(root))
	s.Require().NoError(err)

	return t
}

func (s *BaseSuite) encodeNode(n *treeNode) plumbing.Hash {
	var entries []object.TreeEntry

	for name, child := range n.dirs {
		entries = append(entries, object.TreeEntry{
			Name: name,
			Mode: filemode.Dir,
			Hash: s.encodeNode(child),
		})
	}

	for name, f := range n.files {
		entries = append(entries, object.TreeEntry{
			Name: name,
			Mode: f.mode,
			Hash: s.blob(f.content),
		})
	}

	// canonical git tree order: directories sort as "name/"
	sort.Slice(entries, func(i, j int) bool {
		return treeEntryKey(entries[i]) < treeEntryKey(entries[j])
	})

	t := &object.Tree{Entries: entries}
	obj := s.storer.NewEncodedObject()
	s.Require().NoError(t.Encode(obj))

	h, err := s.storer.SetEncodedObject(obj)
	s.Require().NoError(err)

	return h
}

func treeEntryKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}

	return e.Name
}

// setHead commits the given tree and points HEAD at the commit.
func (s *BaseSuite) setHead(t *object.Tree) {
	sig := object.Signature{
		Name:  "checkout test",
		Email: "checkout@example.com",
		When:  time.Unix(1234567890, 0),
	}

	c := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   "baseline",
		TreeHash:  t.Hash,
	}

	obj := s.storer.NewEncodedObject()
	s.Require().NoError(c.Encode(obj))

	h, err := s.storer.SetEncodedObject(obj)
	s.Require().NoError(err)

	s.Require().NoError(s.storer.SetReference(plumbing.NewHashReference(plumbing.HEAD, h)))
}

// setIndex replaces the index with stage 0 entries for the given files.
func (s *BaseSuite) setIndex(files map[string]treeFile) {
	idx := &index.Index{Version: 2}

	for _, p := range sortedKeys(files) {
		f := files[p]
		e := idx.Add(p)
		e.Hash = s.blob(f.content)
		e.Mode = f.mode
	}

	s.Require().NoError(s.storer.SetIndex(idx))
}

func sortedKeys(files map[string]treeFile) []string {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// writeWorkdir materializes the files in the working directory.
func (s *BaseSuite) writeWorkdir(files map[string]treeFile) {
	for p, f := range files {
		switch f.mode {
		case filemode.Symlink:
			s.Require().NoError(s.fs.Symlink(f.content, p))
		case filemode.Executable:
			s.Require().NoError(util.WriteFile(s.fs, p, []byte(f.content), 0o755))
		default:
			s.Require().NoError(util.WriteFile(s.fs, p, []byte(f.content), 0o644))
		}
	}
}

// checkoutBaseline sets HEAD, index and working directory to the same
// tree, i.e. a clean checkout of the given state.
func (s *BaseSuite) checkoutBaseline(files map[string]treeFile) *object.Tree {
	t := s.tree(files)
	s.setHead(t)
	s.setIndex(files)
	s.writeWorkdir(files)

	return t
}

func (s *BaseSuite) readFile(p string) string {
	f, err := s.fs.Open(p)
	s.Require().NoError(err)

	defer f.Close()

	data, err := io.ReadAll(f)
	s.Require().NoError(err)

	return string(data)
}

func (s *BaseSuite) exists(p string) bool {
	_, err := s.fs.Lstat(p)
	if err != nil {
		s.Require().True(os.IsNotExist(err))
		return false
	}

	return true
}

// assertWorkdir asserts the working directory holds exactly the given
// regular files.
func (s *BaseSuite) assertWorkdir(expected map[string]string) {
	actual := map[string]string{}
	s.collectFiles("", actual)
	s.Equal(expected, actual)
}

func (s *BaseSuite) collectFiles(dir string, into map[string]string) {
	infos, err := s.fs.ReadDir(dir)
	if err != nil {
		s.Require().True(os.IsNotExist(err))
		return
	}

	for _, fi := range infos {
		p := path.Join(dir, fi.Name())

		if fi.IsDir() {
			s.collectFiles(p, into)
			continue
		}

		if fi.Mode()&os.ModeSymlink != 0 {
			target, err := s.fs.Readlink(p)
			s.Require().NoError(err)
			into[p] = "-> " + target
			continue
		}

		into[p] = s.readFile(p)
	}
}

// assertIndex asserts the stored index has a stage 0 entry per file with
// the matching blob hash.
func (s *BaseSuite) assertIndex(expected map[string]treeFile) {
	idx, err := s.storer.Index()
	s.Require().NoError(err)

	byName := map[string]*index.Entry{}
	for _, e := range idx.Entries {
		if e.Stage == 0 {
			byName[e.Name] = e
		}
	}

	s.Require().Len(byName, len(expected))

	for p, f := range expected {
		e, ok := byName[p]
		s.Require().True(ok, "missing index entry for %q", p)
		s.Equal(s.blob(f.content), e.Hash, "index hash for %q", p)
		s.Equal(f.mode, e.Mode, "index mode for %q", p)
	}
}
