package suggestion

import "strings"

// FilterOptions toggles the individual checks of Filter.
type FilterOptions struct {
	RemoveEmpty      bool
	RemoveDuplicates bool
	UseBlocklist     bool
}

// DefaultFilterOptions enables every check.
func DefaultFilterOptions() FilterOptions {
	return FilterOptions{
		RemoveEmpty:      true,
		RemoveDuplicates: true,
		UseBlocklist:     true,
	}
}

// Counts records why candidates were rejected.
type Counts struct {
	Empty     int `json:"empty_cnt"`
	Duplicate int `json:"duplicate_cnt"`
	Blocked   int `json:"bad_cnt"`
}

// Total returns the number of rejected candidates.
func (c Counts) Total() int {
	return c.Empty + c.Duplicate + c.Blocked
}

// Filter drops candidates that are empty, that repeat a suggestion already
// shown or accepted earlier in the batch, or that contain a blocked word.
// Checks run in that order and the first match rejects. Accepted
// candidates keep their relative order.
func Filter(cands []Candidate, prev []Shown, bl *Blocklist, opts FilterOptions) ([]Candidate, Counts) {
	seen := make(map[string]struct{}, len(prev)+len(cands))
	for _, p := range prev {
		seen[p.Original] = struct{}{}
	}

	var (
		accepted = make([]Candidate, 0, len(cands))
		counts   Counts
	)
	for _, c := range cands {
		if opts.RemoveEmpty && strings.TrimSpace(c.Text) == "" {
			counts.Empty++
			continue
		}
		if opts.RemoveDuplicates {
			if _, dup := seen[c.Text]; dup {
				counts.Duplicate++
				continue
			}
		}
		if opts.UseBlocklist {
			if _, blocked := bl.Match(c.Text); blocked {
				counts.Blocked++
				continue
			}
		}

		seen[c.Text] = struct{}{}
		accepted = append(accepted, c)
	}
	return accepted, counts
}
