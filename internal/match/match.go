package match

import (
	"fmt"
	"strings"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// Match returns every timer whose name contains the fragment,
// case-insensitively. When a timer has no name, the spoken sentence it was
// created from is checked instead. All candidates are surfaced; picking one
// is the caller's policy decision.
func Match(candidates []*timer.Timer, fragment string) []*timer.Timer {
	needle := strings.ToLower(strings.TrimSpace(fragment))
	if needle == "" {
		return nil
	}

	var matched []*timer.Timer

	for _, t := range candidates {
		haystack := t.Name
		if haystack == "" {
			haystack = t.SpokenSentence
		}

		if strings.Contains(strings.ToLower(haystack), needle) {
			matched = append(matched, t)
		}
	}

	return matched
}

// Resolve narrows the fragment to exactly one timer. Zero matches fail with
// timer.ErrNoMatch; multiple matches fail with *timer.AmbiguousError carrying
// every candidate, never an arbitrary pick.
func Resolve(candidates []*timer.Timer, fragment string) (*timer.Timer, error) {
	matched := Match(candidates, fragment)

	switch len(matched) {
	case 0:
		return nil, fmt.Errorf("fragment %q: %w", fragment, timer.ErrNoMatch)
	case 1:
		return matched[0], nil
	default:
		return nil, &timer.AmbiguousError{Fragment: fragment, Candidates: matched}
	}
}

// ResolveNewest is the explicit automatic disambiguation policy: on multiple
// matches the most recently created candidate wins. Zero matches still fail
// with timer.ErrNoMatch.
func ResolveNewest(candidates []*timer.Timer, fragment string) (*timer.Timer, error) {
	matched := Match(candidates, fragment)
	if len(matched) == 0 {
		return nil, fmt.Errorf("fragment %q: %w", fragment, timer.ErrNoMatch)
	}

	newest := matched[0]
	for _, t := range matched[1:] {
		if t.CreatedAt.After(newest.CreatedAt) {
			newest = t
		}
	}

	return newest, nil
}
