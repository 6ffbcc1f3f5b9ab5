package civic

import (
	"context"
	"sync"

	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
	"github.com/sirupsen/logrus"
)

// Message is a post as stored, before any privacy filtering.
type Message struct {
	ID        types.MessageID
	Author    types.FeedID
	Timestamp int64
	Type      string
	Root      types.MessageID
	Text      string
}

// messageFromRecord flattens a post record.
func messageFromRecord(r Record) Message {
	m := Message{
		ID:        r.Key,
		Author:    r.Author,
		Timestamp: r.Timestamp,
		Type:      r.Type(),
	}
	if post, ok := r.Post(); ok {
		m.Root = post.Root
		m.Text = post.Text
	}
	return m
}

// Comment is a message as served. A tombstone has nil ID, Author and Text
// but keeps its timestamp and thread linkage, so threads keep their shape.
// Root is null for a thread's root message.
type Comment struct {
	ID        *types.MessageID `json:"id"`
	Author    *types.FeedID    `json:"author"`
	Text      *string          `json:"text"`
	Timestamp int64            `json:"timestamp"`
	Root      *types.MessageID `json:"root"`
}

// Redacted reports whether the comment is a tombstone.
func (c Comment) Redacted() bool {
	return c.ID == nil
}

// RedactionPolicy hides content from identities that didn't opt in to
// public hosting. A failed profile lookup counts as not opted in.
type RedactionPolicy struct {
	profiles    ProfileSource
	maxParallel int
}

// NewRedactionPolicy creates a policy.
func NewRedactionPolicy(profiles ProfileSource, maxParallel int) *RedactionPolicy {
	if maxParallel <= 0 {
		maxParallel = utilities.DefaultMaxParallel
	}
	return &RedactionPolicy{profiles: profiles, maxParallel: maxParallel}
}

// Apply redacts a single message.
func (p *RedactionPolicy) Apply(ctx context.Context, m Message) Comment {
	return p.apply(ctx, m, p.profiles.Resolve)
}

// ApplyAll redacts messages concurrently, keeping order. Authors are looked
// up once per call. Fails only if ctx is cancelled.
func (p *RedactionPolicy) ApplyAll(ctx context.Context, msgs []Message) ([]Comment, error) {
	memo := &hostingMemo{source: p.profiles, seen: make(map[types.FeedID]*memoEntry)}
	report := utilities.MapConcurrent(ctx, msgs, p.maxParallel, func(ctx context.Context, m Message) (Comment, error) {
		return p.apply(ctx, m, memo.Resolve), nil
	})
	if err := report.Err(); err != nil {
		return nil, err
	}
	return report.Results, nil
}

func (p *RedactionPolicy) apply(ctx context.Context, m Message, resolve func(context.Context, types.FeedID) (*Profile, error)) Comment {
	c := Comment{Timestamp: m.Timestamp}
	if m.Root != "" {
		root := m.Root
		c.Root = &root
	}

	profile, err := resolve(ctx, m.Author)
	if err != nil {
		logrus.WithError(err).Debugf("🙈 redacting %s, author lookup failed", m.ID)
		return c
	}
	if profile == nil {
		return c
	}

	id, author, text := m.ID, m.Author, m.Text
	c.ID, c.Author, c.Text = &id, &author, &text
	return c
}

// hostingMemo caches profile lookups for the duration of one ApplyAll.
type hostingMemo struct {
	source ProfileSource
	mu     sync.Mutex
	seen   map[types.FeedID]*memoEntry
}

type memoEntry struct {
	once    sync.Once
	profile *Profile
	err     error
}

func (m *hostingMemo) Resolve(ctx context.Context, id types.FeedID) (*Profile, error) {
	m.mu.Lock()
	entry, ok := m.seen[id]
	if !ok {
		entry = &memoEntry{}
		m.seen[id] = entry
	}
	m.mu.Unlock()

	entry.once.Do(func() {
		entry.profile, entry.err = m.source.Resolve(ctx, id)
	})
	return entry.profile, entry.err
}
