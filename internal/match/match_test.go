package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/satellite-timers/internal/domain/timer"
)

// namedTimer builds a timer with the given name and creation offset.
func namedTimer(id, name string, createdOffset time.Duration) *timer.Timer {
	return &timer.Timer{
		ID:        id,
		DeviceID:  "d-1",
		Class:     timer.ClassTimer,
		Name:      name,
		CreatedAt: time.Unix(1000, 0).Add(createdOffset),
	}
}

// TestMatch_ExactAndSubstring pins the spec scenario: "tea" matches only the
// Tea timer, "e" matches both.
func TestMatch_ExactAndSubstring(t *testing.T) {
	t.Parallel()

	coffee := namedTimer("t-coffee", "Coffee", 0)
	tea := namedTimer("t-tea", "Tea", time.Minute)
	candidates := []*timer.Timer{coffee, tea}

	matched := Match(candidates, "tea")
	require.Len(t, matched, 1)
	require.Same(t, tea, matched[0])

	matched = Match(candidates, "e")
	require.Len(t, matched, 2)
	require.Same(t, coffee, matched[0])
	require.Same(t, tea, matched[1])

	require.Empty(t, Match(candidates, "soup"))
	require.Empty(t, Match(candidates, "  "))
}

// TestMatch_SpokenSentenceFallback checks unnamed timers match on the
// sentence they were created from.
func TestMatch_SpokenSentenceFallback(t *testing.T) {
	t.Parallel()

	unnamed := namedTimer("t-1", "", 0)
	unnamed.SpokenSentence = "Ten Minutes for the pasta"

	matched := Match([]*timer.Timer{unnamed}, "pasta")
	require.Len(t, matched, 1)

	// A named timer is matched on its name only, not its sentence.
	named := namedTimer("t-2", "Eggs", 0)
	named.SpokenSentence = "pasta timer"
	require.Empty(t, Match([]*timer.Timer{named}, "pasta"))
}

// TestResolve surfaces the full taxonomy: single match, no match, ambiguous.
func TestResolve(t *testing.T) {
	t.Parallel()

	coffee := namedTimer("t-coffee", "Coffee", 0)
	tea := namedTimer("t-tea", "Tea", time.Minute)
	candidates := []*timer.Timer{coffee, tea}

	resolved, err := Resolve(candidates, "tea")
	require.NoError(t, err)
	require.Same(t, tea, resolved)

	_, err = Resolve(candidates, "soup")
	require.ErrorIs(t, err, timer.ErrNoMatch)

	_, err = Resolve(candidates, "e")

	var ambiguous *timer.AmbiguousError
	require.ErrorAs(t, err, &ambiguous)
	require.Equal(t, "e", ambiguous.Fragment)
	require.Len(t, ambiguous.Candidates, 2)
}

// TestResolveNewest applies the explicit most-recently-created policy.
func TestResolveNewest(t *testing.T) {
	t.Parallel()

	older := namedTimer("t-1", "Tea", 0)
	newer := namedTimer("t-2", "Green Tea", time.Hour)

	resolved, err := ResolveNewest([]*timer.Timer{older, newer}, "tea")
	require.NoError(t, err)
	require.Same(t, newer, resolved)

	_, err = ResolveNewest(nil, "tea")
	require.ErrorIs(t, err, timer.ErrNoMatch)
}
