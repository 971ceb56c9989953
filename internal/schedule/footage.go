package schedule

import "strconv"

// DefaultClipCount is the fallback when free-text footage descriptions
// mention no number at all.
const DefaultClipCount = 10

// ParseClipCount recovers a clip count from a free-text footage
// description: the first integer found wins, otherwise DefaultClipCount.
// The result feeds exactly one display string in the default task chain and
// nothing else.
func ParseClipCount(description string) int {
	start := -1
	for i, r := range description {
		if r >= '0' && r <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			n, err := strconv.Atoi(description[start:i])
			if err == nil {
				return n
			}
			start = -1
		}
	}
	if start >= 0 {
		if n, err := strconv.Atoi(description[start:]); err == nil {
			return n
		}
	}
	return DefaultClipCount
}
