package civic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFollowersCountIncludesHiddenFollowers walks through a profile gaining
// followers: opted-out followers count but never show up in the list.
func TestFollowersCountIncludesHiddenFollowers(t *testing.T) {
	w := newTestWorld(t)
	a, b, c := feed(1), feed(2), feed(3)
	w.about(a, 1000, "A", true)
	w.about(b, 1000, "B", true)
	w.about(c, 1000, "C", false)

	q := w.resolvers(nil)
	ctx := context.Background()

	check := func(wantCount int, wantNames ...string) {
		t.Helper()
		count, err := q.FollowersCount(ctx, a)
		require.NoError(t, err)
		followers, err := q.Followers(ctx, a)
		require.NoError(t, err)

		assert.Equal(t, wantCount, count)
		names := []string{}
		for _, p := range followers {
			names = append(names, p.Name)
		}
		assert.Equal(t, append([]string{}, wantNames...), names)
		assert.GreaterOrEqual(t, count, len(followers))
	}

	check(0)
	w.follow(b, a, 2000, true)
	check(1, "B")
	w.follow(c, a, 3000, true)
	check(2, "B")
}

// TestUnfollowIsVisibleImmediately verifies graph answers reflect a contact
// record as soon as it is appended.
func TestUnfollowIsVisibleImmediately(t *testing.T) {
	w := newTestWorld(t)
	a, b := feed(1), feed(2)
	w.about(a, 1000, "A", true)
	w.about(b, 1000, "B", true)
	w.follow(a, b, 2000, true)

	q := w.resolvers(nil)
	ctx := context.Background()

	following, err := q.Following(ctx, a)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, b, following[0].ID)

	w.follow(a, b, 3000, false)

	following, err = q.Following(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, following)

	count, err := q.FollowingCount(ctx, a)
	require.NoError(t, err)
	assert.Zero(t, count)

	followers, err := q.Followers(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, followers)
}

func TestGraphRejectsInvalidIDs(t *testing.T) {
	q := newTestWorld(t).resolvers(nil)
	ctx := context.Background()

	_, err := q.Followers(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidFeedID)
	_, err = q.FollowingCount(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidFeedID)
}
