package results

import "slices"

// Promote makes the alternate matching code the new primary.
//
// Promoting the current primary's code is a no-op and reports promoted=false
// so the caller can record an informational transcript note instead. Otherwise
// the current primary becomes an alternate prepended at position 0 (most
// recently considered first; the list is not re-sorted by confidence) and the
// matching alternate is removed and installed as primary. No candidate data is
// discarded, so swaps are fully reversible.
//
// Returns ErrUnknownCandidate when code matches neither the primary nor any
// alternate.
func (r *ClassificationResult) Promote(code string) (promoted bool, err error) {
	if code == r.Primary.HTS {
		return false, nil
	}

	idx := slices.IndexFunc(r.Alternates, func(e Entry) bool {
		return e.HTS == code
	})
	if idx < 0 {
		return false, ErrUnknownCandidate
	}

	selected := r.Alternates[idx]
	demoted := r.Primary

	r.Alternates = slices.Delete(r.Alternates, idx, idx+1)
	r.Alternates = slices.Insert(r.Alternates, 0, demoted)
	r.Primary = selected

	return true, nil
}

// Codes returns the primary and alternate HTS codes in display order.
func (r *ClassificationResult) Codes() []string {
	codes := make([]string, 0, len(r.Alternates)+1)
	codes = append(codes, r.Primary.HTS)
	for _, a := range r.Alternates {
		codes = append(codes, a.HTS)
	}
	return codes
}
