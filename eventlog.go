package civic

import (
	"context"

	"github.com/eljojo/civic/types"
)

// EventLog is the append-only store the read model queries.
//
// Replication, signature checks and deduplication across peers happen
// behind it; by the time a record is visible here it is trusted.
type EventLog interface {
	// Get returns the record with the given key, or nil if unknown.
	Get(ctx context.Context, key types.MessageID) (*Record, error)

	// Query returns matching records newest first (by asserted timestamp).
	Query(ctx context.Context, q Query) Iterator[Record]
}

// Query selects records. Zero-valued fields don't filter.
type Query struct {
	Types  []string
	Author types.FeedID

	// Root selects posts whose content.root is this message.
	Root types.MessageID

	// VoteTarget selects votes whose content.vote.link is this message.
	VoteTarget types.MessageID

	// About selects about records whose content.about is this identity.
	About types.FeedID
}

// Matches reports whether r satisfies the query.
func (q Query) Matches(r Record) bool {
	if len(q.Types) > 0 {
		found := false
		for _, t := range q.Types {
			if r.Type() == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Author != "" && r.Author != q.Author {
		return false
	}
	if q.Root != "" {
		post, ok := r.Post()
		if !ok || post.Root != q.Root {
			return false
		}
	}
	if q.VoteTarget != "" {
		vote, ok := r.Vote()
		if !ok || vote.Vote.Link != q.VoteTarget {
			return false
		}
	}
	if q.About != "" {
		about, ok := r.About()
		if !ok || about.About != q.About {
			return false
		}
	}
	return true
}

// HopsOpts configures an IdentityGraph walk.
type HopsOpts struct {
	Start   types.FeedID
	MaxHops int
	// Reverse walks edges backwards (who points at Start).
	Reverse bool
}

// Hop statuses returned by IdentityGraph.Hops. Positive values are the
// follow distance from the start.
const (
	HopSelf       = 0
	HopFollowing  = 1
	HopBlocked    = -1
	HopUnfollowed = -2
)

// IdentityGraph answers follow-graph questions.
type IdentityGraph interface {
	// Hops returns every identity reachable from opts.Start within
	// opts.MaxHops along with its status.
	Hops(ctx context.Context, opts HopsOpts) (map[types.FeedID]int, error)

	// IsFollowing reports whether src currently follows dst.
	IsFollowing(ctx context.Context, src, dst types.FeedID) (bool, error)
}

// AboutStore returns the self-asserted profile fields of an identity.
type AboutStore interface {
	// AboutSelf returns nil if the identity never described itself.
	AboutSelf(ctx context.Context, id types.FeedID) (*About, error)
}
