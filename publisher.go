package civic

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
	"github.com/sirupsen/logrus"
)

// Publisher writes records authored by the server identity.
//
// The room service uses it to follow room members so their feeds get
// replicated. Those follows are private: they never show up in anyone's
// public follower lists.
type Publisher struct {
	ledger   *Ledger
	signer   Signer
	contacts *ContactsProjection
}

// NewPublisher creates a publisher for signer.
func NewPublisher(ledger *Ledger, signer Signer, contacts *ContactsProjection) *Publisher {
	return &Publisher{ledger: ledger, signer: signer, contacts: contacts}
}

// ID is the server identity.
func (p *Publisher) ID() types.FeedID {
	return p.signer.ID()
}

// IsFollowing reports whether the server identity follows dst.
func (p *Publisher) IsFollowing(ctx context.Context, dst types.FeedID) (bool, error) {
	return p.contacts.IsFollowing(ctx, p.signer.ID(), dst)
}

// Follow appends a contact record from the server identity to dst.
func (p *Publisher) Follow(ctx context.Context, dst types.FeedID, private bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !dst.IsValid() {
		return fmt.Errorf("follow %q: %w", dst, ErrInvalidFeedID)
	}

	rec, err := p.ledger.Publish(p.signer, map[string]any{
		"type":      TypeContact,
		"contact":   dst.String(),
		"following": true,
	}, private)
	if err != nil {
		return fmt.Errorf("follow %s: %w", dst, err)
	}
	logrus.WithField("private", private).Debugf("🤝 followed %s (%s)", dst, rec.Key)
	return nil
}

// FollowPrivately follows dst without revealing it.
func (p *Publisher) FollowPrivately(ctx context.Context, dst types.FeedID) error {
	return p.Follow(ctx, dst, true)
}
