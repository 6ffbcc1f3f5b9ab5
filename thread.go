package civic

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
)

// DefaultThreadsLimit is the page size when none is given.
const DefaultThreadsLimit = 10

// Thread is a root post with its replies, oldest first.
type Thread struct {
	Root    Comment   `json:"root"`
	Replies []Comment `json:"replies"`
}

// ThreadSummary is the flat form used in thread listings: the root id and
// every message of the thread, root first.
type ThreadSummary struct {
	ID       types.MessageID `json:"id"`
	Messages []Comment       `json:"messages"`
}

// ThreadOpts controls thread listings.
type ThreadOpts struct {
	Limit         int
	MaxThreadSize int
	Cursor        types.MessageID
}

// rawThread is an assembled thread before redaction.
type rawThread struct {
	root     types.MessageID
	messages []Message
}

// ThreadAssembler builds threads out of post records.
type ThreadAssembler struct {
	log    EventLog
	redact *RedactionPolicy
}

// NewThreadAssembler creates an assembler.
func NewThreadAssembler(log EventLog, redact *RedactionPolicy) *ThreadAssembler {
	return &ThreadAssembler{log: log, redact: redact}
}

// ThreadByID returns the thread rooted at rootID, or nil if rootID isn't a
// known post. maxSize > 0 keeps the root and the newest maxSize-1 replies.
func (a *ThreadAssembler) ThreadByID(ctx context.Context, rootID types.MessageID, maxSize int) (*Thread, error) {
	raw, err := a.assemble(ctx, rootID, maxSize)
	if err != nil || raw == nil {
		return nil, err
	}

	comments, err := a.redact.ApplyAll(ctx, raw.messages)
	if err != nil {
		return nil, err
	}

	thread := &Thread{Root: comments[0], Replies: comments[1:]}
	for i := range thread.Replies {
		root := rootID
		thread.Replies[i].Root = &root
	}
	return thread, nil
}

// ThreadsByAuthor lists threads id took part in, most recently active first.
// Threads are picked from id's own posts, so a thread stays listed even when
// truncation cuts id's messages out of it.
func (a *ThreadAssembler) ThreadsByAuthor(ctx context.Context, id types.FeedID, opts ThreadOpts) ([]ThreadSummary, error) {
	it := a.threads(ctx, Query{Types: []string{TypePost}, Author: id}, opts.MaxThreadSize, nil)
	return a.page(ctx, it, opts)
}

// ThreadsByMembers lists threads with at least one message from a member.
func (a *ThreadAssembler) ThreadsByMembers(ctx context.Context, members []types.FeedID, opts ThreadOpts) ([]ThreadSummary, error) {
	if len(members) == 0 {
		return []ThreadSummary{}, nil
	}
	set := make(map[types.FeedID]bool, len(members))
	for _, m := range members {
		set[m] = true
	}
	it := a.threads(ctx, Query{Types: []string{TypePost}}, opts.MaxThreadSize, func(t rawThread) bool {
		for _, m := range t.messages {
			if set[m.Author] {
				return true
			}
		}
		return false
	})
	return a.page(ctx, it, opts)
}

func (a *ThreadAssembler) page(ctx context.Context, it Iterator[rawThread], opts ThreadOpts) ([]ThreadSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultThreadsLimit
	}
	raws, err := Paginate(ctx, it, limit, string(opts.Cursor), func(t rawThread) string {
		return string(t.root)
	})
	if err != nil {
		return nil, err
	}

	summaries := make([]ThreadSummary, 0, len(raws))
	for _, raw := range raws {
		comments, err := a.redact.ApplyAll(ctx, raw.messages)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ThreadSummary{ID: raw.root, Messages: comments})
	}
	return summaries, nil
}

// threads walks posts newest first, maps each to its thread root and yields
// every root once, assembled, if keep accepts it. A nil keep accepts all.
func (a *ThreadAssembler) threads(ctx context.Context, q Query, maxSize int, keep func(rawThread) bool) Iterator[rawThread] {
	posts := a.log.Query(ctx, q)
	seen := make(map[types.MessageID]bool)

	return FuncIterator[rawThread](func(ctx context.Context) (rawThread, bool, error) {
		for {
			rec, ok, err := posts.Next(ctx)
			if err != nil || !ok {
				return rawThread{}, false, err
			}

			root := rec.Key
			if post, ok := rec.Post(); ok && post.Root != "" {
				root = post.Root
			}
			if seen[root] {
				continue
			}
			seen[root] = true

			raw, err := a.assemble(ctx, root, maxSize)
			if err != nil {
				return rawThread{}, false, err
			}
			// replies to roots we never received are skipped
			if raw == nil || (keep != nil && !keep(*raw)) {
				continue
			}
			return *raw, true, nil
		}
	})
}

// assemble collects the root and its replies in ascending time order.
func (a *ThreadAssembler) assemble(ctx context.Context, rootID types.MessageID, maxSize int) (*rawThread, error) {
	rec, err := a.log.Get(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rootID, err)
	}
	if rec == nil || rec.Type() != TypePost {
		return nil, nil
	}

	replies, err := Collect(ctx, a.log.Query(ctx, Query{Types: []string{TypePost}, Root: rootID}), 0)
	if err != nil {
		return nil, fmt.Errorf("replies of %s: %w", rootID, err)
	}
	// replies come newest first; keep the newest ones when truncating
	if maxSize > 0 && len(replies) > maxSize-1 {
		replies = replies[:maxSize-1]
	}

	messages := make([]Message, 0, len(replies)+1)
	messages = append(messages, messageFromRecord(*rec))
	for i := len(replies) - 1; i >= 0; i-- {
		messages = append(messages, messageFromRecord(replies[i]))
	}
	return &rawThread{root: rootID, messages: messages}, nil
}
