package civic

import (
	"context"
	"fmt"
	"sort"

	"github.com/eljojo/civic/types"
)

// GraphWalker answers direct follower/following questions.
//
// The id lists are raw: counts come from them unfiltered. Only the profile
// lists go through privacy filtering, so a count can be larger than the
// list next to it.
type GraphWalker struct {
	graph    IdentityGraph
	profiles *ProfileResolver
}

// NewGraphWalker creates a walker.
func NewGraphWalker(graph IdentityGraph, profiles *ProfileResolver) *GraphWalker {
	return &GraphWalker{graph: graph, profiles: profiles}
}

// FollowerIDs returns who directly follows id.
func (w *GraphWalker) FollowerIDs(ctx context.Context, id types.FeedID) ([]types.FeedID, error) {
	return w.direct(ctx, id, true)
}

// FollowingIDs returns who id directly follows.
func (w *GraphWalker) FollowingIDs(ctx context.Context, id types.FeedID) ([]types.FeedID, error) {
	return w.direct(ctx, id, false)
}

// Followers returns the public profiles of id's followers.
func (w *GraphWalker) Followers(ctx context.Context, id types.FeedID) ([]Profile, error) {
	ids, err := w.FollowerIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.profiles.ResolveMany(ctx, ids)
}

// Following returns the public profiles of who id follows.
func (w *GraphWalker) Following(ctx context.Context, id types.FeedID) ([]Profile, error) {
	ids, err := w.FollowingIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.profiles.ResolveMany(ctx, ids)
}

func (w *GraphWalker) direct(ctx context.Context, id types.FeedID, reverse bool) ([]types.FeedID, error) {
	hops, err := w.graph.Hops(ctx, HopsOpts{Start: id, MaxHops: 1, Reverse: reverse})
	if err != nil {
		return nil, fmt.Errorf("walk graph from %s: %w", id, err)
	}

	ids := make([]types.FeedID, 0, len(hops))
	for other, status := range hops {
		if status == HopFollowing && other != id {
			ids = append(ids, other)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
