package civic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/eljojo/civic/types"
	"github.com/sirupsen/logrus"
)

// RecordListener is called when a new record is added to the ledger.
type RecordListener func(r Record)

// Unboxer opens sealed record content.
type Unboxer interface {
	Unbox(boxed string) ([]byte, error)
}

// Signer authors records.
type Signer interface {
	ID() types.FeedID
	SignRecord(data []byte) string
	Box(plaintext []byte) (string, error)
}

// ErrInvalidRecord is returned for records that can't be stored.
var ErrInvalidRecord = errors.New("invalid record")

// Ledger is a single-node EventLog: records in arrival order, deduplicated
// by key, optionally persisted. It is the local stand-in for a replicated
// log; it never gossips.
type Ledger struct {
	records []Record
	byKey   map[types.MessageID]int
	lastSeq map[types.FeedID]int64
	mu      sync.RWMutex

	publishMu sync.Mutex // serializes sequence assignment for our own records

	store   *LedgerStore
	unboxer Unboxer
	now     func() time.Time

	// listeners are notified when new records are added
	listeners   []RecordListener
	listenersMu sync.RWMutex
}

// NewLedger creates an in-memory ledger.
func NewLedger() *Ledger {
	return &Ledger{
		byKey:   make(map[types.MessageID]int),
		lastSeq: make(map[types.FeedID]int64),
		now:     time.Now,
	}
}

// OpenLedger creates a ledger backed by store, loading what it holds.
func OpenLedger(store *LedgerStore, unboxer Unboxer) (*Ledger, error) {
	l := NewLedger()
	l.unboxer = unboxer

	records, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	for _, r := range records {
		l.insertUnlocked(l.unbox(r))
	}
	l.store = store
	logrus.Infof("📚 loaded %d records", len(records))
	return l, nil
}

// SetUnboxer sets the unboxer used for private records appended from now on.
func (l *Ledger) SetUnboxer(u Unboxer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unboxer = u
}

// AddListener registers a callback to be notified when new records are added.
// Listeners are called synchronously after the record is stored.
func (l *Ledger) AddListener(listener RecordListener) {
	l.listenersMu.Lock()
	defer l.listenersMu.Unlock()
	l.listeners = append(l.listeners, listener)
}

// notifyListeners is called without holding the main mutex to avoid deadlocks.
func (l *Ledger) notifyListeners(r Record) {
	l.listenersMu.RLock()
	listeners := l.listeners
	l.listenersMu.RUnlock()

	for _, listener := range listeners {
		listener(r)
	}
}

// Append stores a record. Returns false (and no error) for duplicates.
// A record whose key doesn't match its own data is rejected, so a key
// always stands for exactly one content.
func (l *Ledger) Append(r Record) (bool, error) {
	if r.Key == "" {
		r.ComputeKey()
	} else if !r.KeyMatches() {
		return false, fmt.Errorf("%w: key %s doesn't match content", ErrInvalidRecord, r.Key)
	}
	if !r.IsValid() {
		return false, fmt.Errorf("%w: %s", ErrInvalidRecord, r.Key)
	}

	l.mu.Lock()
	if _, dup := l.byKey[r.Key]; dup {
		l.mu.Unlock()
		return false, nil
	}
	if r.Received == 0 {
		r.Received = l.now().UnixMilli()
	}

	if l.store != nil {
		// persist the record as received, still boxed
		if err := l.store.Put(len(l.records), r); err != nil {
			l.mu.Unlock()
			return false, fmt.Errorf("persist %s: %w", r.Key, err)
		}
	}

	r = l.unbox(r)
	l.insertUnlocked(r)
	l.mu.Unlock()

	// Notify listeners outside of lock to avoid deadlocks
	l.notifyListeners(r)

	return true, nil
}

// Merge appends many records, returning how many were new.
func (l *Ledger) Merge(records []Record) (int, error) {
	added := 0
	var errs []error
	for _, r := range records {
		ok, err := l.Append(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			added++
		}
	}
	return added, errors.Join(errs...)
}

func (l *Ledger) insertUnlocked(r Record) {
	l.byKey[r.Key] = len(l.records)
	l.records = append(l.records, r)
	if r.Sequence > l.lastSeq[r.Author] {
		l.lastSeq[r.Author] = r.Sequence
	}
}

// unbox opens content we can read. Records boxed for someone else keep an
// empty Content and never match a query.
func (l *Ledger) unbox(r Record) Record {
	if r.Boxed == "" || l.unboxer == nil {
		return r
	}
	plain, err := l.unboxer.Unbox(r.Boxed)
	if err != nil {
		return r
	}
	var content map[string]any
	if err := json.Unmarshal(plain, &content); err != nil {
		logrus.WithError(err).Warnf("unboxed %s but content is not JSON", r.Key)
		return r
	}
	r.Content = content
	r.Private = true
	return r
}

// Publish signs and appends a record authored by signer.
// When private is set, the content is boxed so only signer can read it.
func (l *Ledger) Publish(signer Signer, content map[string]any, private bool) (Record, error) {
	l.publishMu.Lock()
	defer l.publishMu.Unlock()

	l.mu.RLock()
	seq := l.lastSeq[signer.ID()] + 1
	l.mu.RUnlock()

	r := Record{
		Author:    signer.ID(),
		Sequence:  seq,
		Timestamp: l.now().UnixMilli(),
	}
	if private {
		plain, err := json.Marshal(content)
		if err != nil {
			return Record{}, err
		}
		boxed, err := signer.Box(plain)
		if err != nil {
			return Record{}, fmt.Errorf("box content: %w", err)
		}
		r.Boxed = boxed
	} else {
		r.Content = content
	}
	r.ComputeKey()
	r.Signature = signer.SignRecord(r.SignableData())

	if _, err := l.Append(r); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Get returns the record with the given key, or nil if unknown.
func (l *Ledger) Get(ctx context.Context, key types.MessageID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byKey[key]
	if !ok {
		return nil, nil
	}
	r := l.records[idx]
	if r.Type() == "" {
		return nil, nil
	}
	return &r, nil
}

// Query returns a snapshot of matching records, newest first by asserted
// timestamp. Ties keep the most recently received first.
func (l *Ledger) Query(ctx context.Context, q Query) Iterator[Record] {
	if err := ctx.Err(); err != nil {
		return ErrIterator[Record]{Err: err}
	}

	l.mu.RLock()
	var matched []Record
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.Type() != "" && q.Matches(r) {
			matched = append(matched, r)
		}
	}
	l.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp > matched[j].Timestamp
	})
	return NewSliceIterator(matched)
}

// RecordsSince returns records from position on, in arrival order, along
// with the total count. Positions are stable: the ledger never prunes.
func (l *Ledger) RecordsSince(position int) ([]Record, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	total := len(l.records)
	if position >= total {
		return nil, total
	}

	result := make([]Record, total-position)
	copy(result, l.records[position:])
	return result, total
}

// Count returns the number of stored records.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// CountByType returns how many readable records exist per content type.
func (l *Ledger) CountByType() map[string]int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range l.records {
		if t := r.Type(); t != "" {
			counts[t]++
		}
	}
	return counts
}
