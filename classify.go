package checkout

import "sort"

type actionKind int

const (
	actionNone actionKind = iota
	actionCreate
	actionUpdate
	actionDelete
)

// action is one planned filesystem mutation. state carries the mode and
// content identifier to write; it is nil for deletes. conflictFile marks
// unmerged paths materialized with conflict markers instead of plain blob
// content.
type action struct {
	kind         actionKind
	entry        *entry
	state        *FileState
	conflictFile bool
}

// plan is the ordered sequence of actions surviving classification.
// Deletes run before writes, children before parents, so that
// directory/file replacements cannot collide.
type plan struct {
	deletes []*action
	writes  []*action
}

func (p *plan) size() int { return len(p.deletes) + len(p.writes) }

// classifier applies the checkout decision table to every entry of the
// diff table, producing the plan and the list of conflicting paths. It
// never stops at the first conflict: the whole table is enumerated so a
// conflict abort can report every conflicting path.
type classifier struct {
	o *Options
	d *dispatcher
}

func (c *classifier) run(t *diffTable) (*plan, []string, error) {
	p := &plan{}
	var conflicts []string

	err := t.each(func(e *entry) error {
		return c.entry(e, p, &conflicts)
	})
	if err != nil {
		return nil, nil, err
	}

	// deletes in reverse path order remove children before parents
	sort.Slice(p.deletes, func(i, j int) bool {
		return p.deletes[i].entry.path > p.deletes[j].entry.path
	})

	return p, conflicts, nil
}

func (c *classifier) entry(e *entry, p *plan, conflicts *[]string) error {
	if e.skipWorktree || !c.o.matchPaths(e.path) {
		return nil
	}

	if e.unmerged() {
		return c.unmergedEntry(e, p, conflicts)
	}

	if e.target == nil && e.baseline == nil && e.index == nil {
		return c.untrackedEntry(e, p)
	}

	targetMoved := !e.target.equal(e.baseline)
	workdirMoved := !e.workdir.equal(e.baseline)

	if !targetMoved && !workdirMoved {
		return nil
	}

	if !targetMoved {
		return c.dirtyEntry(e, p)
	}

	if !workdirMoved {
		// only the target moved, but a staged change on the path would
		// still be lost by applying it, unless it stages exactly the
		// target content
		if !e.index.equal(e.baseline) && !e.index.equal(e.target) &&
			!c.o.Strategy.has(Force) {
			return c.conflict(e, conflicts)
		}

		return c.targetEntry(e, p)
	}

	// target and workdir both diverged from the baseline
	if e.workdir == nil {
		if e.target == nil {
			// deleted on both sides; only the index may need the removal
			if e.index != nil {
				return c.push(p, e, actionDelete, nil)
			}

			return nil
		}

		return c.push(p, e, actionCreate, e.target)
	}

	if e.workdir.equal(e.target) && !e.workdirDir {
		// the working directory already has the target content; refresh
		// the index if it lags behind
		if !e.index.equal(e.target) {
			return c.push(p, e, actionUpdate, e.target)
		}

		return nil
	}

	// ignored files are not precious: the target may overwrite them
	// without raising a conflict
	if e.baseline == nil && e.index == nil && e.ignored {
		return c.targetEntry(e, p)
	}

	if c.o.Strategy.has(Force) {
		return c.targetEntry(e, p)
	}

	return c.conflict(e, conflicts)
}

// untrackedEntry handles paths known only to the working directory.
func (c *classifier) untrackedEntry(e *entry, p *plan) error {
	if e.workdir == nil {
		return nil
	}

	if e.ignored {
		if err := c.d.send(NotifyIgnored, e); err != nil {
			return err
		}

		if c.o.Strategy.has(RemoveIgnored) {
			return c.push(p, e, actionDelete, nil)
		}

		return nil
	}

	if err := c.d.send(NotifyUntracked, e); err != nil {
		return err
	}

	if c.o.Strategy.has(RemoveUntracked) {
		return c.push(p, e, actionDelete, nil)
	}

	return nil
}

// dirtyEntry handles paths where only the working directory diverged from
// the baseline: there is nothing to reconcile unless the caller asked for
// missing files to be recreated or forced the checkout.
func (c *classifier) dirtyEntry(e *entry, p *plan) error {
	if err := c.d.send(NotifyDirty, e); err != nil {
		return err
	}

	s := c.o.Strategy

	if e.workdir == nil {
		if e.target != nil && (s.has(RecreateMissing) || s.has(Force)) {
			return c.push(p, e, actionCreate, e.target)
		}

		return nil
	}

	// a path absent from both trees has no content to force; staged
	// additions stay in place even under Force
	if s.has(Force) && e.target != nil {
		return c.push(p, e, actionUpdate, e.target)
	}

	return nil
}

// targetEntry plans the action dictated by the target vs baseline diff for
// a path whose working directory is safe to touch.
func (c *classifier) targetEntry(e *entry, p *plan) error {
	if e.target == nil {
		return c.push(p, e, actionDelete, nil)
	}

	// a working directory holding a directory where the target wants a
	// file is only safe to replace under Force
	if e.workdirDir && !c.o.Strategy.has(Force) {
		return nil
	}

	if e.workdir == nil {
		return c.push(p, e, actionCreate, e.target)
	}

	return c.push(p, e, actionUpdate, e.target)
}

func (c *classifier) unmergedEntry(e *entry, p *plan, conflicts *[]string) error {
	s := c.o.Strategy

	switch {
	case s.has(SkipUnmerged):
		return nil
	case s.has(UseOurs):
		return c.resolveStage(e, e.ours, p)
	case s.has(UseTheirs):
		return c.resolveStage(e, e.theirs, p)
	}

	if err := c.d.send(NotifyConflict, e); err != nil {
		return err
	}

	*conflicts = append(*conflicts, e.path)

	if s.has(AllowConflicts) || s.has(Force) {
		st := e.ours
		if st == nil {
			st = e.theirs
		}

		kind := actionCreate
		if e.workdir != nil {
			kind = actionUpdate
		}

		return c.pushConflictFile(p, e, kind, st)
	}

	return nil
}

func (c *classifier) resolveStage(e *entry, st *FileState, p *plan) error {
	if st == nil {
		if e.workdir == nil {
			return nil
		}

		return c.push(p, e, actionDelete, nil)
	}

	kind := actionCreate
	if e.workdir != nil {
		kind = actionUpdate
	}

	return c.push(p, e, kind, st)
}

func (c *classifier) conflict(e *entry, conflicts *[]string) error {
	if err := c.d.send(NotifyConflict, e); err != nil {
		return err
	}

	*conflicts = append(*conflicts, e.path)

	return nil
}

func (c *classifier) push(p *plan, e *entry, kind actionKind, st *FileState) error {
	return c.pushAction(p, &action{kind: kind, entry: e, state: st})
}

func (c *classifier) pushConflictFile(p *plan, e *entry, kind actionKind, st *FileState) error {
	return c.pushAction(p, &action{kind: kind, entry: e, state: st, conflictFile: true})
}

func (c *classifier) pushAction(p *plan, a *action) error {
	s := c.o.Strategy
	e := a.entry

	if s.has(UpdateOnly) && a.kind != actionUpdate {
		return nil
	}

	if s.has(DontOverwriteIgnored) && a.kind != actionDelete &&
		e.workdir != nil && e.ignored {
		return c.d.send(NotifyIgnored, e)
	}

	if err := c.d.send(NotifyUpdated, e); err != nil {
		return err
	}

	if a.kind == actionDelete {
		p.deletes = append(p.deletes, a)
	} else {
		p.writes = append(p.writes, a)
	}

	return nil
}
