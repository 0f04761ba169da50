// Package suggest produces writing suggestions by analyzing document
// paragraphs with a language model and mapping the returned edits back
// onto character ranges in the source text.
package suggest

// Span is a half-open character interval [Start, End). Offsets count
// Unicode code points, matching the editor's cursor positions.
type Span struct {
	Start int
	End   int
}

// Overlaps reports whether two spans share at least one position.
func (a Span) Overlaps(b Span) bool {
	return !(a.End <= b.Start || b.End <= a.Start)
}

// FindPositions returns every position where needle occurs in haystack,
// including overlapping occurrences, in ascending order of start. The
// search resumes one position after each match, not after its end. An
// empty or absent needle yields no positions, which is not an error:
// the model's edits need not be verbatim substrings of the source.
func FindPositions(haystack, needle string) []Span {
	if needle == "" {
		return nil
	}

	h := []rune(haystack)
	n := []rune(needle)
	if len(n) > len(h) {
		return nil
	}

	var positions []Span
	for start := 0; start+len(n) <= len(h); start++ {
		if matchAt(h, n, start) {
			positions = append(positions, Span{Start: start, End: start + len(n)})
		}
	}
	return positions
}

func matchAt(haystack, needle []rune, at int) bool {
	for i, r := range needle {
		if haystack[at+i] != r {
			return false
		}
	}
	return true
}

// SelectBestPosition returns the first position in document order that
// does not overlap any span already claimed, or false if every candidate
// conflicts. First-fit is deliberate: candidates are assigned in the
// order the provider returned them, not by a global optimal matching.
func SelectBestPosition(positions []Span, used []Span) (Span, bool) {
	for _, pos := range positions {
		conflict := false
		for _, u := range used {
			if pos.Overlaps(u) {
				conflict = true
				break
			}
		}
		if !conflict {
			return pos, true
		}
	}
	return Span{}, false
}
