package checkout

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// mergeStyle selects how conflict regions are rendered when an unmerged
// path is materialized on disk.
type mergeStyle int

const (
	styleMerge mergeStyle = iota
	styleDiff3
	styleZdiff3
)

func styleOf(s Strategy) mergeStyle {
	switch {
	case s.has(ConflictStyleDiff3):
		return styleDiff3
	case s.has(ConflictStyleZdiff3):
		return styleZdiff3
	default:
		return styleMerge
	}
}

// hunk replaces ancestor lines [start, end) with lines.
type hunk struct {
	start, end int
	lines      []string
}

// mergeFile performs a line-based three-way merge of ancestor, ours and
// theirs. Regions changed by only one side are applied; overlapping
// changes that differ are rendered as conflict regions with markers.
func mergeFile(ancestor, ours, theirs []byte, ancestorLabel, ourLabel, theirLabel string, style mergeStyle) []byte {
	base := splitLines(string(ancestor))
	oursHunks := diffHunks(string(ancestor), string(ours))
	theirsHunks := diffHunks(string(ancestor), string(theirs))

	var out strings.Builder
	pos := 0

	for len(oursHunks) > 0 || len(theirsHunks) > 0 {
		start := nextStart(oursHunks, theirsHunks)

		for _, l := range base[pos:start] {
			out.WriteString(l)
		}

		end := start
		var og, tg []hunk
		og, tg, end, oursHunks, theirsHunks = group(start, oursHunks, theirsHunks)

		switch {
		case len(tg) == 0:
			writeRegion(&out, base, start, end, og)
		case len(og) == 0:
			writeRegion(&out, base, start, end, tg)
		default:
			ourText := applyRegion(base, start, end, og)
			theirText := applyRegion(base, start, end, tg)

			if ourText == theirText {
				out.WriteString(ourText)
				break
			}

			writeConflict(&out, base, start, end, ourText, theirText,
				ancestorLabel, ourLabel, theirLabel, style)
		}

		pos = end
	}

	for _, l := range base[pos:] {
		out.WriteString(l)
	}

	return []byte(out.String())
}

// diffHunks computes the line-level edit script from ancestor to side.
// Adjacent deletes and inserts coalesce into a single replacement hunk.
func diffHunks(ancestor, side string) []hunk {
	dmp := diffmatchpatch.New()
	c1, c2, lineIndex := dmp.DiffLinesToChars(ancestor, side)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lineIndex)

	var hunks []hunk
	open := -1
	pos := 0

	for _, d := range diffs {
		lines := splitLines(d.Text)

		switch d.Type {
		case diffmatchpatch.DiffEqual:
			open = -1
			pos += len(lines)
		case diffmatchpatch.DiffDelete:
			if open < 0 {
				hunks = append(hunks, hunk{start: pos, end: pos + len(lines)})
				open = len(hunks) - 1
			} else {
				hunks[open].end += len(lines)
			}

			pos += len(lines)
		case diffmatchpatch.DiffInsert:
			if open < 0 {
				hunks = append(hunks, hunk{start: pos, end: pos, lines: lines})
				open = len(hunks) - 1
			} else {
				hunks[open].lines = append(hunks[open].lines, lines...)
			}
		}
	}

	return hunks
}

func nextStart(a, b []hunk) int {
	switch {
	case len(a) == 0:
		return b[0].start
	case len(b) == 0:
		return a[0].start
	case a[0].start < b[0].start:
		return a[0].start
	default:
		return b[0].start
	}
}

// group collects the hunks from both sides that form one contiguous
// region starting at start, extending the region while any hunk on either
// side still intersects it.
func group(start int, ours, theirs []hunk) (og, tg []hunk, end int, restOurs, restTheirs []hunk) {
	end = start

	for {
		grew := false

		for len(ours) > 0 && intersects(ours[0], start, end) {
			og = append(og, ours[0])
			if ours[0].end > end {
				end = ours[0].end
			}

			ours = ours[1:]
			grew = true
		}

		for len(theirs) > 0 && intersects(theirs[0], start, end) {
			tg = append(tg, theirs[0])
			if theirs[0].end > end {
				end = theirs[0].end
			}

			theirs = theirs[1:]
			grew = true
		}

		if !grew {
			return og, tg, end, ours, theirs
		}
	}
}

func intersects(h hunk, start, end int) bool {
	if h.start == h.end {
		return h.start >= start && h.start <= end
	}

	return h.start <= end && h.end > start
}

func applyRegion(base []string, start, end int, hunks []hunk) string {
	var b strings.Builder
	pos := start

	for _, h := range hunks {
		for _, l := range base[pos:h.start] {
			b.WriteString(l)
		}

		for _, l := range h.lines {
			b.WriteString(l)
		}

		pos = h.end
	}

	for _, l := range base[pos:end] {
		b.WriteString(l)
	}

	return b.String()
}

func writeRegion(out *strings.Builder, base []string, start, end int, hunks []hunk) {
	out.WriteString(applyRegion(base, start, end, hunks))
}

func writeConflict(out *strings.Builder, base []string, start, end int, ours, theirs, ancestorLabel, ourLabel, theirLabel string, style mergeStyle) {
	ourLines := splitLines(ours)
	theirLines := splitLines(theirs)

	if style == styleZdiff3 {
		var prefix, suffix []string
		prefix, suffix, ourLines, theirLines = trimCommon(ourLines, theirLines)

		for _, l := range prefix {
			out.WriteString(l)
		}

		defer func() {
			for _, l := range suffix {
				out.WriteString(l)
			}
		}()
	}

	out.WriteString("<<<<<<< " + ourLabel + "\n")
	writeLines(out, ourLines)

	if style == styleDiff3 || style == styleZdiff3 {
		out.WriteString("||||||| " + ancestorLabel + "\n")
		writeLines(out, base[start:end])
	}

	out.WriteString("=======\n")
	writeLines(out, theirLines)
	out.WriteString(">>>>>>> " + theirLabel + "\n")
}

func writeLines(out *strings.Builder, lines []string) {
	for _, l := range lines {
		out.WriteString(l)

		if !strings.HasSuffix(l, "\n") {
			out.WriteString("\n")
		}
	}
}

func trimCommon(a, b []string) (prefix, suffix, ra, rb []string) {
	for len(a) > 0 && len(b) > 0 && a[0] == b[0] {
		prefix = append(prefix, a[0])
		a, b = a[1:], b[1:]
	}

	for len(a) > 0 && len(b) > 0 && a[len(a)-1] == b[len(b)-1] {
		suffix = append([]string{a[len(a)-1]}, suffix...)
		a, b = a[:len(a)-1], b[:len(b)-1]
	}

	return prefix, suffix, a, b
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	return lines
}
