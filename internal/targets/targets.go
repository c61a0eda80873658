// Package targets expands operator-supplied id lists like "1-5,9,12-10" into
// an ordered, de-duplicated list of target ids.
package targets

import (
	"strconv"
	"strings"
)

// Parse expands comma-separated ids and inclusive `a-b` ranges. Ranges may
// descend. Parts that are not integers and ids that are not positive are
// skipped. The first appearance of an id decides its position.
func Parse(raw string) []int64 {
	var out []int64
	seen := map[int64]struct{}{}

	add := func(id int64) {
		if id <= 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		left, right, isRange := strings.Cut(part, "-")
		if !isRange {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			add(id)
			continue
		}

		start, err := strconv.ParseInt(strings.TrimSpace(left), 10, 64)
		if err != nil {
			continue
		}
		end, err := strconv.ParseInt(strings.TrimSpace(right), 10, 64)
		if err != nil {
			continue
		}

		step := int64(1)
		if end < start {
			step = -1
		}
		for id := start; ; id += step {
			add(id)
			if id == end {
				break
			}
		}
	}

	return out
}
