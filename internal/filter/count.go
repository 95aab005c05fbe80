package filter

import "strings"

// CountActiveFilters returns the badge count for state. Each criterion that
// differs from its documented default counts once, so a cleared range or an
// "all" window counts when the default constrains. A non-blank search term
// adds one more.
func CountActiveFilters(state State, search string, defaults Defaults) int {
	n := 0
	for field, c := range state.Criteria {
		if !defaults.IsDefault(field, c) {
			n++
		}
	}
	if strings.TrimSpace(search) != "" {
		n++
	}
	return n
}
