package civic

import (
	"context"
	"sync"

	"github.com/eljojo/civic/types"
)

// About is what an identity says about itself.
type About struct {
	ID               types.FeedID
	Name             string
	Image            types.BlobID
	Description      string
	PublicWebHosting bool
	UpdatedAt        int64 // asserted timestamp of the newest about-self record
}

// aboutFields tracks the timestamp each field was last written at, so a late
// arriving older record can't overwrite a newer value.
type aboutFields struct {
	about About
	name  int64
	image int64
	desc  int64
	host  int64
}

// AboutProjection reduces about-self records per identity.
//
// Each field is last-write-wins on its own: a record that only sets the name
// doesn't reset the image. Records about someone else are ignored.
type AboutProjection struct {
	abouts     map[types.FeedID]*aboutFields
	projection *Projection
	mu         sync.RWMutex
}

// NewAboutProjection creates a new about projection.
func NewAboutProjection(ledger *Ledger) *AboutProjection {
	p := &AboutProjection{
		abouts: make(map[types.FeedID]*aboutFields),
	}
	p.projection = NewProjection(ledger, p.handleRecord)
	return p
}

func (p *AboutProjection) handleRecord(r Record) error {
	content, ok := r.About()
	if !ok || content.About != r.Author {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.abouts[r.Author]
	if !ok {
		f = &aboutFields{about: About{ID: r.Author}}
		p.abouts[r.Author] = f
	}

	ts := r.Timestamp
	if content.Name != nil && ts >= f.name {
		f.about.Name, f.name = *content.Name, ts
	}
	if img, ok := content.ImageRef(); ok && ts >= f.image {
		f.about.Image, f.image = img, ts
	}
	if content.Description != nil && ts >= f.desc {
		f.about.Description, f.desc = *content.Description, ts
	}
	if content.PublicWebHosting != nil && ts >= f.host {
		f.about.PublicWebHosting, f.host = *content.PublicWebHosting, ts
	}
	if ts > f.about.UpdatedAt {
		f.about.UpdatedAt = ts
	}
	return nil
}

// AboutSelf returns the reduced about-self fields, or nil if id never
// described itself.
func (p *AboutProjection) AboutSelf(ctx context.Context, id types.FeedID) (*About, error) {
	if err := p.projection.RunToEnd(ctx); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	f, ok := p.abouts[id]
	if !ok {
		return nil, nil
	}
	about := f.about
	return &about, nil
}

// Count returns how many identities described themselves.
// Note: call AboutSelf or RunToEnd first if you need up-to-date data.
func (p *AboutProjection) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.abouts)
}
