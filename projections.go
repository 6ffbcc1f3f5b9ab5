// Projections provide event-sourced read models over the ledger.
// They maintain pre-computed state that catches up incrementally with the log.

package civic

import (
	"context"
	"sync"
)

// RecordHandler is a callback function that processes a single record.
type RecordHandler func(r Record) error

// Projection processes records from a Ledger incrementally, in arrival order.
type Projection struct {
	ledger   *Ledger
	handler  RecordHandler
	position int // Index of next record to process
	mu       sync.Mutex
}

// NewProjection creates a new projection with the given record handler.
func NewProjection(ledger *Ledger, handler RecordHandler) *Projection {
	return &Projection{
		ledger:  ledger,
		handler: handler,
	}
}

// RunToEnd processes all records from the current position to the end of the ledger.
func (p *Projection) RunToEnd(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	records, total := p.ledger.RecordsSince(p.position)
	for _, r := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := p.handler(r); err != nil {
				return err
			}
			p.position++
		}
	}
	// Ensure position is at the end even if no records processed
	p.position = total

	return nil
}

// Position returns the current position in the record stream.
func (p *Projection) Position() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// ProjectionStore manages all projections for a ledger.
type ProjectionStore struct {
	ledger *Ledger

	abouts   *AboutProjection
	contacts *ContactsProjection
}

// NewProjectionStore creates a new projection store for the given ledger.
func NewProjectionStore(ledger *Ledger) *ProjectionStore {
	return &ProjectionStore{
		ledger:   ledger,
		abouts:   NewAboutProjection(ledger),
		contacts: NewContactsProjection(ledger),
	}
}

// CatchUp brings every projection up to date. Reads catch up on their own,
// this is for warming up at boot.
func (s *ProjectionStore) CatchUp(ctx context.Context) error {
	if err := s.abouts.projection.RunToEnd(ctx); err != nil {
		return err
	}
	return s.contacts.projection.RunToEnd(ctx)
}

// Abouts returns the about-self projection.
func (s *ProjectionStore) Abouts() *AboutProjection {
	return s.abouts
}

// Contacts returns the follow graph projection.
func (s *ProjectionStore) Contacts() *ContactsProjection {
	return s.contacts
}
