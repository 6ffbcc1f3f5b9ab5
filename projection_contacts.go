package civic

import (
	"context"
	"sync"

	"github.com/eljojo/civic/types"
)

// edge is the latest known contact state between two identities.
type edge struct {
	following bool
	blocking  bool
	private   bool
	timestamp int64
	sequence  int64
}

// newer reports whether a record at (ts, seq) supersedes the edge.
// Ties go to the record that arrived last.
func (e edge) newer(ts, seq int64) bool {
	if ts != e.timestamp {
		return ts > e.timestamp
	}
	return seq >= e.sequence
}

// ContactsProjection is the follow graph, built from contact records.
//
// Only the latest record per (source, dest) pair counts. Private contacts
// (our own unannounced follows) answer IsFollowing but stay out of Hops, so
// they never show up in anyone's public follower lists.
type ContactsProjection struct {
	out        map[types.FeedID]map[types.FeedID]edge // source -> dest -> edge
	in         map[types.FeedID]map[types.FeedID]edge // dest -> source -> edge
	projection *Projection
	mu         sync.RWMutex
}

// NewContactsProjection creates a new contacts projection.
func NewContactsProjection(ledger *Ledger) *ContactsProjection {
	p := &ContactsProjection{
		out: make(map[types.FeedID]map[types.FeedID]edge),
		in:  make(map[types.FeedID]map[types.FeedID]edge),
	}
	p.projection = NewProjection(ledger, p.handleRecord)
	return p
}

func (p *ContactsProjection) handleRecord(r Record) error {
	content, ok := r.Contact()
	if !ok || content.Contact == r.Author {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	src, dst := r.Author, content.Contact
	prev, exists := p.out[src][dst]
	if exists && !prev.newer(r.Timestamp, r.Sequence) {
		return nil
	}

	e := prev
	// a record may only touch one of the flags; the other keeps its value
	if content.Following != nil {
		e.following = *content.Following
	}
	if content.Blocking != nil {
		e.blocking = *content.Blocking
		if e.blocking {
			e.following = false
		}
	}
	e.private = r.Private
	e.timestamp, e.sequence = r.Timestamp, r.Sequence

	if p.out[src] == nil {
		p.out[src] = make(map[types.FeedID]edge)
	}
	if p.in[dst] == nil {
		p.in[dst] = make(map[types.FeedID]edge)
	}
	p.out[src][dst] = e
	p.in[dst][src] = e
	return nil
}

// Hops walks the graph breadth first from opts.Start.
//
// Start has status 0. Identities reached through follows get their distance.
// Direct edges that are blocks get -1, direct edges that were unfollowed get
// -2. Walks never continue through blocked or unfollowed identities.
func (p *ContactsProjection) Hops(ctx context.Context, opts HopsOpts) (map[types.FeedID]int, error) {
	if err := p.projection.RunToEnd(ctx); err != nil {
		return nil, err
	}

	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = 1
	}
	edges := p.out
	if opts.Reverse {
		edges = p.in
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	result := map[types.FeedID]int{opts.Start: HopSelf}
	frontier := []types.FeedID{opts.Start}
	for dist := 1; dist <= maxHops && len(frontier) > 0; dist++ {
		var next []types.FeedID
		for _, from := range frontier {
			for to, e := range edges[from] {
				if e.private {
					continue
				}
				if _, seen := result[to]; seen {
					continue
				}
				switch {
				case e.following:
					result[to] = dist
					next = append(next, to)
				case dist == 1 && e.blocking:
					result[to] = HopBlocked
				case dist == 1:
					result[to] = HopUnfollowed
				}
			}
		}
		frontier = next
	}
	return result, nil
}

// IsFollowing reports whether src currently follows dst, privately or not.
func (p *ContactsProjection) IsFollowing(ctx context.Context, src, dst types.FeedID) (bool, error) {
	if err := p.projection.RunToEnd(ctx); err != nil {
		return false, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.out[src][dst].following, nil
}
