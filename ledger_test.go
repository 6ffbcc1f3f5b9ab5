package civic

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLedgerDeduplicatesByKey verifies a record is stored once no matter
// how often it arrives.
func TestLedgerDeduplicatesByKey(t *testing.T) {
	ledger := NewLedger()
	r := Record{Author: feed(1), Sequence: 1, Timestamp: 1000, Content: map[string]any{"type": TypePost, "text": "hi"}}

	added, err := ledger.Append(r)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = ledger.Append(r)
	require.NoError(t, err)
	assert.False(t, added, "second copy is a duplicate")

	n, err := ledger.Merge([]Record{r, {Author: feed(1), Sequence: 2, Timestamp: 2000, Content: map[string]any{"type": TypePost}}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, ledger.Count())
}

func TestLedgerRejectsInvalidRecords(t *testing.T) {
	ledger := NewLedger()

	_, err := ledger.Append(Record{Author: "nobody", Timestamp: 1, Content: map[string]any{"type": TypePost}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = ledger.Append(Record{Author: feed(1), Timestamp: 1, Content: map[string]any{"text": "no type"}})
	assert.ErrorIs(t, err, ErrInvalidRecord)

	assert.Equal(t, 0, ledger.Count())
}

// TestLedgerRejectsMismatchedKeys verifies a record can't be stored under a
// key computed for different content, and can't shadow a stored record.
func TestLedgerRejectsMismatchedKeys(t *testing.T) {
	ledger := NewLedger()
	original := Record{Author: feed(1), Sequence: 1, Timestamp: 1000, Content: map[string]any{"type": TypePost, "text": "hi"}}
	original.ComputeKey()
	added, err := ledger.Append(original)
	require.NoError(t, err)
	require.True(t, added)

	tampered := original
	tampered.Content = map[string]any{"type": TypePost, "text": "edited"}
	_, err = ledger.Append(tampered)
	assert.ErrorIs(t, err, ErrInvalidRecord, "reusing a known key")

	tampered.Sequence = 2
	_, err = ledger.Append(tampered)
	assert.ErrorIs(t, err, ErrInvalidRecord, "fresh key for other data")

	forged := Record{Key: unknownMessage("forged"), Author: feed(1), Sequence: 3, Timestamp: 3000, Content: map[string]any{"type": TypePost, "text": "x"}}
	_, err = ledger.Append(forged)
	assert.ErrorIs(t, err, ErrInvalidRecord)

	assert.Equal(t, 1, ledger.Count())
}

// TestLedgerAcceptsUnboxedCopies verifies a private record exported after
// unboxing still matches the key it was published under.
func TestLedgerAcceptsUnboxedCopies(t *testing.T) {
	kr := testKeyring(1)
	source := NewLedger()
	source.SetUnboxer(kr)
	published, err := source.Publish(kr, map[string]any{"type": TypeContact, "contact": feed(2).String(), "following": true}, true)
	require.NoError(t, err)

	stored, err := source.Get(context.Background(), published.Key)
	require.NoError(t, err)
	require.True(t, stored.Private)

	restored := NewLedger()
	added, err := restored.Append(*stored)
	require.NoError(t, err)
	assert.True(t, added)
}

// TestLedgerQueryOrder verifies queries come back newest first by asserted
// timestamp, with ties going to the record that arrived last.
func TestLedgerQueryOrder(t *testing.T) {
	w := newTestWorld(t)
	old := w.post(feed(1), 1000, "old")
	tieFirst := w.post(feed(2), 5000, "tie, arrived first")
	newest := w.post(feed(1), 9000, "newest")
	tieSecond := w.post(feed(3), 5000, "tie, arrived second")
	w.follow(feed(1), feed(2), 7000, true)

	ctx := context.Background()
	records, err := Collect(ctx, w.ledger.Query(ctx, Query{Types: []string{TypePost}}), 0)
	require.NoError(t, err)

	var keys []string
	for _, r := range records {
		keys = append(keys, r.Key.String())
	}
	assert.Equal(t, []string{newest.String(), tieSecond.String(), tieFirst.String(), old.String()}, keys)

	byAuthor, err := Collect(ctx, w.ledger.Query(ctx, Query{Types: []string{TypePost}, Author: feed(1)}), 1)
	require.NoError(t, err)
	require.Len(t, byAuthor, 1)
	assert.Equal(t, newest, byAuthor[0].Key)

	assert.Equal(t, map[string]int{TypePost: 4, TypeContact: 1}, w.ledger.CountByType())
}

func TestLedgerNotifiesListeners(t *testing.T) {
	ledger := NewLedger()
	var seen []Record
	ledger.AddListener(func(r Record) { seen = append(seen, r) })

	r := Record{Author: feed(1), Sequence: 1, Timestamp: 1000, Content: map[string]any{"type": TypePost}}
	_, err := ledger.Append(r)
	require.NoError(t, err)
	_, err = ledger.Append(r)
	require.NoError(t, err)

	require.Len(t, seen, 1, "duplicates are not announced")
	assert.NotZero(t, seen[0].Received)
}

// TestLedgerPersistsAcrossReopen verifies records written to the bbolt
// store are loaded back, including private ones which are stored boxed.
func TestLedgerPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	kr := testKeyring(7)
	ctx := context.Background()

	store, err := OpenLedgerStore(path)
	require.NoError(t, err)
	ledger, err := OpenLedger(store, kr)
	require.NoError(t, err)

	public := Record{Author: feed(1), Sequence: 1, Timestamp: 1000, Content: map[string]any{"type": TypePost, "text": "hello"}}
	public.ComputeKey()
	_, err = ledger.Append(public)
	require.NoError(t, err)
	private, err := ledger.Publish(kr, map[string]any{"type": TypeContact, "contact": feed(1).String(), "following": true}, true)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// reopened with our key: the private record is readable again
	store, err = OpenLedgerStore(path)
	require.NoError(t, err)
	reopened, err := OpenLedger(store, kr)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())

	got, err := reopened.Get(ctx, public.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Content["text"])

	got, err = reopened.Get(ctx, private.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Private)
	assert.Equal(t, TypeContact, got.Type())

	next, err := reopened.Publish(kr, map[string]any{"type": TypePost, "text": "after restart"}, false)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Sequence, "sequence numbers survive restarts")
	require.NoError(t, store.Close())

	// reopened by someone else: the box stays shut and the record is invisible
	store, err = OpenLedgerStore(path)
	require.NoError(t, err)
	defer store.Close()
	stranger, err := OpenLedger(store, testKeyring(8))
	require.NoError(t, err)

	got, err = stranger.Get(ctx, private.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// TestPublishPrivateIsUnboxed verifies a private record is readable by its
// author right after publishing and is flagged as private.
func TestPublishPrivateIsUnboxed(t *testing.T) {
	kr := testKeyring(3)
	ledger := NewLedger()
	ledger.SetUnboxer(kr)

	rec, err := ledger.Publish(kr, map[string]any{"type": TypePost, "text": "secret"}, true)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.Boxed)
	assert.Nil(t, rec.Content, "the published record only carries the box")

	got, err := ledger.Get(context.Background(), rec.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Private)
	assert.Equal(t, "secret", got.Content["text"])
}
