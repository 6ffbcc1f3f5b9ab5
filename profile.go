package civic

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
	"github.com/sirupsen/logrus"
)

// Profile is the public view of an identity. It only exists for identities
// that opted in to public web hosting.
type Profile struct {
	ID          types.FeedID `json:"id"`
	Name        string       `json:"name"`
	Image       types.BlobID `json:"image,omitempty"`
	Description string       `json:"description,omitempty"`

	PublicWebHosting bool `json:"publicWebHosting"`
}

// ProfileSource resolves one identity. ProfileResolver is the real one.
type ProfileSource interface {
	Resolve(ctx context.Context, id types.FeedID) (*Profile, error)
}

// ProfileResolver turns identities into privacy-filtered profiles.
type ProfileResolver struct {
	log         EventLog
	abouts      AboutStore
	maxParallel int
}

// NewProfileResolver creates a resolver. maxParallel <= 0 uses the default fan-out.
func NewProfileResolver(log EventLog, abouts AboutStore, maxParallel int) *ProfileResolver {
	if maxParallel <= 0 {
		maxParallel = utilities.DefaultMaxParallel
	}
	return &ProfileResolver{log: log, abouts: abouts, maxParallel: maxParallel}
}

// Resolve returns the profile of id, or nil if the identity is unknown or
// hasn't opted in. Only lookup failures are errors.
func (r *ProfileResolver) Resolve(ctx context.Context, id types.FeedID) (*Profile, error) {
	if !id.IsValid() {
		return nil, nil
	}
	about, err := r.abouts.AboutSelf(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", id, err)
	}
	if about == nil || !about.PublicWebHosting {
		return nil, nil
	}
	return &Profile{
		ID:               about.ID,
		Name:             about.Name,
		Image:            about.Image,
		Description:      about.Description,
		PublicWebHosting: true,
	}, nil
}

// ResolveMany resolves ids concurrently, keeping input order. Absent
// profiles are dropped, and so are profiles whose lookup failed (logged).
// Only a cancelled context fails the batch.
func (r *ProfileResolver) ResolveMany(ctx context.Context, ids []types.FeedID) ([]Profile, error) {
	report := utilities.MapConcurrent(ctx, ids, r.maxParallel, r.Resolve)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, failure := range report.Failed {
		logrus.WithError(failure.Err).Warnf("👤 dropping profile %s from batch", ids[failure.Index])
	}

	profiles := make([]Profile, 0, len(ids))
	for _, p := range report.Succeeded() {
		if p != nil {
			profiles = append(profiles, *p)
		}
	}
	return profiles, nil
}

// All lists every identity that described itself, most recently active
// first, privacy filtered. limit applies after filtering; <= 0 means all.
func (r *ProfileResolver) All(ctx context.Context, limit int) ([]Profile, error) {
	it := r.log.Query(ctx, Query{Types: []string{TypeAbout}})

	seen := make(map[types.FeedID]bool)
	var ids []types.FeedID
	for {
		rec, ok, err := it.Next(ctx)
		if err != nil {
			return nil, fmt.Errorf("list abouts: %w", err)
		}
		if !ok {
			break
		}
		about, ok := rec.About()
		if !ok || about.About != rec.Author || seen[rec.Author] {
			continue
		}
		seen[rec.Author] = true
		ids = append(ids, rec.Author)
	}

	profiles, err := r.ResolveMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(profiles) > limit {
		profiles = profiles[:limit]
	}
	return profiles, nil
}
