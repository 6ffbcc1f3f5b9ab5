package civic

import (
	"context"
	"fmt"

	"github.com/eljojo/civic/types"
)

// Vote is a reaction to a message.
type Vote struct {
	Author     types.FeedID    `json:"author"`
	Target     types.MessageID `json:"target"`
	Value      int             `json:"value"`
	Expression string          `json:"expression"`
	Timestamp  int64           `json:"timestamp"`
}

// Votes returns every vote record for msgID, newest first.
//
// Votes are not deduplicated: an author who liked, unliked and liked again
// shows up three times. Counting is len() of this.
func Votes(ctx context.Context, log EventLog, msgID types.MessageID) ([]Vote, error) {
	records, err := Collect(ctx, log.Query(ctx, Query{Types: []string{TypeVote}, VoteTarget: msgID}), 0)
	if err != nil {
		return nil, fmt.Errorf("votes for %s: %w", msgID, err)
	}

	votes := make([]Vote, 0, len(records))
	for _, r := range records {
		content, ok := r.Vote()
		if !ok {
			continue
		}
		votes = append(votes, Vote{
			Author:     r.Author,
			Target:     content.Vote.Link,
			Value:      content.Vote.Value,
			Expression: content.Vote.Expression,
			Timestamp:  r.Timestamp,
		})
	}
	return votes, nil
}
