package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func merge(ancestor, ours, theirs string, style mergeStyle) string {
	return string(mergeFile([]byte(ancestor), []byte(ours), []byte(theirs),
		"ancestor", "ours", "theirs", style))
}

func TestMergeFileNonOverlappingChanges(t *testing.T) {
	got := merge(
		"a\nb\nc\nd\n",
		"A\nb\nc\nd\n",
		"a\nb\nc\nD\n",
		styleMerge)

	assert.Equal(t, "A\nb\nc\nD\n", got)
}

func TestMergeFileOneSidedDeletion(t *testing.T) {
	got := merge(
		"a\nb\nc\n",
		"a\nc\n",
		"a\nb\nc\n",
		styleMerge)

	assert.Equal(t, "a\nc\n", got)
}

func TestMergeFileIdenticalChangesDoNotConflict(t *testing.T) {
	got := merge(
		"a\nb\nc\n",
		"a\nX\nc\n",
		"a\nX\nc\n",
		styleMerge)

	assert.Equal(t, "a\nX\nc\n", got)
}

func TestMergeFileConflictMarkers(t *testing.T) {
	got := merge(
		"line1\nline2\nline3\n",
		"line1\nmine\nline3\n",
		"line1\nyours\nline3\n",
		styleMerge)

	assert.Equal(t,
		"line1\n"+
			"<<<<<<< ours\n"+
			"mine\n"+
			"=======\n"+
			"yours\n"+
			">>>>>>> theirs\n"+
			"line3\n",
		got)
}

func TestMergeFileDiff3IncludesAncestor(t *testing.T) {
	got := merge(
		"line1\nline2\nline3\n",
		"line1\nmine\nline3\n",
		"line1\nyours\nline3\n",
		styleDiff3)

	assert.Equal(t,
		"line1\n"+
			"<<<<<<< ours\n"+
			"mine\n"+
			"||||||| ancestor\n"+
			"line2\n"+
			"=======\n"+
			"yours\n"+
			">>>>>>> theirs\n"+
			"line3\n",
		got)
}

func TestMergeFileZdiff3TrimsCommonLines(t *testing.T) {
	got := merge(
		"start\nmid\nend\n",
		"start\nshared\nmine\nend\n",
		"start\nshared\nyours\nend\n",
		styleZdiff3)

	assert.Equal(t,
		"start\n"+
			"shared\n"+
			"<<<<<<< ours\n"+
			"mine\n"+
			"||||||| ancestor\n"+
			"mid\n"+
			"=======\n"+
			"yours\n"+
			">>>>>>> theirs\n"+
			"end\n",
		got)
}

func TestMergeFileBothSidesAddToEmptyAncestor(t *testing.T) {
	got := merge("", "a\n", "b\n", styleMerge)

	assert.Equal(t,
		"<<<<<<< ours\n"+
			"a\n"+
			"=======\n"+
			"b\n"+
			">>>>>>> theirs\n",
		got)
}

func TestMergeFileUnchangedSides(t *testing.T) {
	got := merge("a\nb\n", "a\nb\n", "a\nb\n", styleMerge)
	assert.Equal(t, "a\nb\n", got)
}
