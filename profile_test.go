package civic

import (
	"context"
	"testing"

	"github.com/eljojo/civic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestProfileRequiresOptIn verifies a profile exists only for identities
// whose latest about-self opts in to public hosting.
func TestProfileRequiresOptIn(t *testing.T) {
	w := newTestWorld(t)
	alice, bob, carol, dave := feed(1), feed(2), feed(3), feed(4)
	ctx := context.Background()

	w.about(alice, 1000, "alice", true)
	w.about(bob, 1000, "bob", false)
	w.add(carol, 1000, map[string]any{"type": TypeAbout, "about": carol.String(), "name": "carol"})
	// dave never described himself, but someone else says he opted in
	w.add(alice, 2000, map[string]any{"type": TypeAbout, "about": dave.String(), "publicWebHosting": true})

	resolver := w.profiles()
	for _, tt := range []struct {
		id   types.FeedID
		want bool
	}{
		{alice, true},
		{bob, false},
		{carol, false},
		{dave, false},
		{feed(5), false},
		{"@garbage", false},
	} {
		p, err := resolver.Resolve(ctx, tt.id)
		require.NoError(t, err, "absence is never an error")
		assert.Equal(t, tt.want, p != nil, "profile of %s", tt.id)
	}

	p, err := resolver.Resolve(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, Profile{ID: alice, Name: "alice", PublicWebHosting: true}, *p)
}

// TestResolveManyKeepsOrderAndDropsAbsent verifies batches keep input order
// and come back shorter rather than with gaps.
func TestResolveManyKeepsOrderAndDropsAbsent(t *testing.T) {
	w := newTestWorld(t)
	ids := []types.FeedID{feed(1), feed(2), feed(3), feed(4), feed(5), feed(6), feed(7)}
	for i, id := range ids {
		w.about(id, 1000, id.Base64()[:4], i%2 == 0)
	}

	profiles, err := w.profiles().ResolveMany(context.Background(), ids)
	require.NoError(t, err)

	var got []types.FeedID
	for _, p := range profiles {
		got = append(got, p.ID)
	}
	assert.Equal(t, []types.FeedID{feed(1), feed(3), feed(5), feed(7)}, got)
}

// TestResolveManyToleratesLookupFailures verifies one failing lookup drops
// that identity instead of failing the whole batch, while a single lookup
// still reports the failure.
func TestResolveManyToleratesLookupFailures(t *testing.T) {
	w := newTestWorld(t)
	ok1, broken, ok2 := feed(1), feed(2), feed(3)
	w.about(ok1, 1000, "one", true)
	w.about(broken, 1000, "broken", true)
	w.about(ok2, 1000, "two", true)

	abouts := failingAbouts{inner: w.projections.Abouts(), fail: map[types.FeedID]bool{broken: true}}
	resolver := NewProfileResolver(w.ledger, abouts, 2)
	ctx := context.Background()

	profiles, err := resolver.ResolveMany(ctx, []types.FeedID{ok1, broken, ok2})
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, ok1, profiles[0].ID)
	assert.Equal(t, ok2, profiles[1].ID)

	_, err = resolver.Resolve(ctx, broken)
	assert.ErrorIs(t, err, errLookup)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = resolver.ResolveMany(cancelled, []types.FeedID{ok1})
	assert.ErrorIs(t, err, context.Canceled)
}

// TestProfilesListsSelfDescribedIdentities verifies the profile listing
// dedupes authors, skips opted-out ones and applies the limit afterwards.
func TestProfilesListsSelfDescribedIdentities(t *testing.T) {
	w := newTestWorld(t)
	w.about(feed(1), 1000, "old", true)
	w.about(feed(2), 2000, "hidden", false)
	w.about(feed(3), 3000, "recent", true)
	w.about(feed(1), 4000, "old, renamed", true)

	all, err := w.profiles().All(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "old, renamed", all[0].Name, "most recently active first")
	assert.Equal(t, "recent", all[1].Name)

	limited, err := w.profiles().All(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
