package search

import (
	"fmt"
	"strconv"
	"strings"

	"sessiongrep/internal/session"
)

// Select resolves one line of user input against a ranked candidate list.
// Anything but a single in-range integer is a hard error; there is no
// re-prompt.
func Select(cands []session.Candidate, input string) (session.Candidate, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return session.Candidate{}, fmt.Errorf("%w: empty input", session.ErrInvalidSelection)
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return session.Candidate{}, fmt.Errorf("%w: %q is not a number", session.ErrInvalidSelection, trimmed)
	}
	if n < 1 || n > len(cands) {
		return session.Candidate{}, fmt.Errorf("%w: %d is out of range 1-%d", session.ErrInvalidSelection, n, len(cands))
	}
	return cands[n-1], nil
}
