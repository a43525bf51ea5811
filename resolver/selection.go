package resolver

import (
	"sort"
	"strconv"
	"strings"

	"onedl/internal"
)

// ParseSelection turns "1,3-5" style input into an ascending set of unique
// indices in [1, maxIndex]. "" and "all" select everything. Tokens that do
// not parse, fall outside the range or are inverted ranges are dropped.
func ParseSelection(expr string, maxIndex int) internal.SelectionSet {
	if maxIndex < 1 {
		return internal.SelectionSet{}
	}

	expr = strings.TrimSpace(expr)
	if expr == "" || strings.EqualFold(expr, "all") {
		all := make(internal.SelectionSet, maxIndex)
		for i := range all {
			all[i] = i + 1
		}
		return all
	}

	seen := make(map[int]bool)
	add := func(i int) {
		if i >= 1 && i <= maxIndex {
			seen[i] = true
		}
	}

	for _, token := range strings.Split(expr, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}

		if strings.Contains(token, "-") {
			parts := strings.SplitN(token, "-", 2)
			lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
			hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err1 != nil || err2 != nil || lo > hi || lo < 1 || hi > maxIndex {
				continue
			}
			for i := lo; i <= hi; i++ {
				add(i)
			}
			continue
		}

		if i, err := strconv.Atoi(token); err == nil {
			add(i)
		}
	}

	set := make(internal.SelectionSet, 0, len(seen))
	for i := range seen {
		set = append(set, i)
	}
	sort.Ints(set)
	return set
}

// Pick returns the items at the 1-based indices of set, in set order
func Pick[T any](items []T, set internal.SelectionSet) []T {
	picked := make([]T, 0, len(set))
	for _, i := range set {
		if i >= 1 && i <= len(items) {
			picked = append(picked, items[i-1])
		}
	}
	return picked
}
