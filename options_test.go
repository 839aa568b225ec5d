package checkout

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRejectsSubmoduleRecursion(t *testing.T) {
	for _, s := range []Strategy{UpdateSubmodules, UpdateSubmodulesIfChanged} {
		o := &Options{Strategy: Safe | s}
		assert.ErrorIs(t, o.Validate(), ErrUnsupportedStrategy)
	}
}

func TestValidateForceWinsOverSafe(t *testing.T) {
	o := &Options{Strategy: Safe | Force}
	require.NoError(t, o.Validate())

	assert.True(t, o.Strategy.has(Force))
	assert.False(t, o.Strategy.has(Safe))
}

func TestValidateRejectsUseOursWithUseTheirs(t *testing.T) {
	o := &Options{Strategy: Safe | UseOurs | UseTheirs}
	assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)
}

func TestValidateConflictStyles(t *testing.T) {
	o := &Options{Strategy: Safe | ConflictStyleDiff3 | ConflictStyleZdiff3}
	assert.ErrorIs(t, o.Validate(), ErrInvalidOptions)

	o = &Options{Strategy: Safe | ConflictStyleDiff3}
	assert.NoError(t, o.Validate())
}

func TestValidateDontUpdateIndexImpliesDontWriteIndex(t *testing.T) {
	o := &Options{Strategy: Safe | DontUpdateIndex}
	require.NoError(t, o.Validate())

	assert.True(t, o.Strategy.has(DontWriteIndex))
}

func TestValidateDefaults(t *testing.T) {
	o := &Options{Strategy: Safe}
	require.NoError(t, o.Validate())

	assert.Equal(t, os.FileMode(0o755), o.DirMode)
	assert.Equal(t, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, o.FileOpenFlags)
	assert.Equal(t, "ours", o.OurLabel)
	assert.Equal(t, "theirs", o.TheirLabel)
	assert.Equal(t, "ancestor", o.AncestorLabel)
}

func TestStrategyIsNoop(t *testing.T) {
	assert.True(t, None.isNoop())
	assert.True(t, (RemoveUntracked | RecreateMissing).isNoop())
	assert.False(t, Safe.isNoop())
	assert.False(t, Force.isNoop())
}

func TestMatchPaths(t *testing.T) {
	o := &Options{}
	assert.True(t, o.matchPaths("any/path"))

	o = &Options{Paths: []string{"sub"}}
	assert.True(t, o.matchPaths("sub"))
	assert.True(t, o.matchPaths("sub/a.txt"))
	assert.True(t, o.matchPaths("sub/deep/b.txt"))
	assert.False(t, o.matchPaths("subdir/a.txt"))
	assert.False(t, o.matchPaths("other.txt"))

	o = &Options{Strategy: DisablePathspecMatch, Paths: []string{"sub"}}
	assert.True(t, o.matchPaths("sub"))
	assert.False(t, o.matchPaths("sub/a.txt"))
}
