package civic

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidFeedID    = errors.New("invalid feed id")
	ErrInvalidMessageID = errors.New("invalid message id")
	ErrNoRoomConfigured = errors.New("no room configured")
)

// RoomDirectory is what the queries need from the room. *room.Directory is
// the real one.
type RoomDirectory interface {
	Snapshot() *room.State
	URL() string
	Alias(ctx context.Context, alias string) (*room.AliasInfo, error)
	CreateInvite(ctx context.Context) (string, error)
}

// ResolversConfig wires the query surface to its collaborators.
type ResolversConfig struct {
	Log         EventLog
	Graph       IdentityGraph
	Abouts      AboutStore
	Room        RoomDirectory // nil when no room is configured
	Language    string        // room.DefaultLanguage when empty
	MaxParallel int
}

// Resolvers is the public query surface. Every method is privacy filtered:
// identities that didn't opt in to web hosting never leak through it.
type Resolvers struct {
	log      EventLog
	room     RoomDirectory
	language string

	profiles    *ProfileResolver
	graph       *GraphWalker
	threads     *ThreadAssembler
	maxParallel int
}

// NewResolvers builds the query surface.
func NewResolvers(cfg ResolversConfig) *Resolvers {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = utilities.DefaultMaxParallel
	}
	if cfg.Language == "" {
		cfg.Language = room.DefaultLanguage
	}
	profiles := NewProfileResolver(cfg.Log, cfg.Abouts, cfg.MaxParallel)
	return &Resolvers{
		log:         cfg.Log,
		room:        cfg.Room,
		language:    cfg.Language,
		profiles:    profiles,
		graph:       NewGraphWalker(cfg.Graph, profiles),
		threads:     NewThreadAssembler(cfg.Log, NewRedactionPolicy(profiles, cfg.MaxParallel)),
		maxParallel: cfg.MaxParallel,
	}
}

// === Profiles ===

func (q *Resolvers) GetProfile(ctx context.Context, id types.FeedID) (*Profile, error) {
	if !id.IsValid() {
		return nil, ErrInvalidFeedID
	}
	return q.profiles.Resolve(ctx, id)
}

func (q *Resolvers) GetProfiles(ctx context.Context, limit int) ([]Profile, error) {
	return q.profiles.All(ctx, limit)
}

// GetProfileByAlias resolves an alias registered in our room. roomID, when
// set, must be our room: aliases in other rooms are unknown to us.
func (q *Resolvers) GetProfileByAlias(ctx context.Context, alias, roomID string) (*Profile, error) {
	if q.room == nil || alias == "" {
		return nil, nil
	}
	if roomID != "" && roomID != q.room.Snapshot().RoomID.String() {
		return nil, nil
	}

	info, err := q.room.Alias(ctx, alias)
	if err != nil {
		return nil, fmt.Errorf("alias %q: %w", alias, err)
	}
	if info == nil {
		return nil, nil
	}
	return q.profiles.Resolve(ctx, types.FeedID(info.UserID))
}

// ProfileAliases lists the aliases id registered in our room.
func (q *Resolvers) ProfileAliases(id types.FeedID) []string {
	if q.room == nil {
		return []string{}
	}
	member, ok := q.room.Snapshot().Member(id)
	if !ok || member.Aliases == nil {
		return []string{}
	}
	return member.Aliases
}

// ProfileSSBURI builds the link a client opens to reach id through our
// room. It includes the first alias when the room vouches for it.
func (q *Resolvers) ProfileSSBURI(ctx context.Context, id types.FeedID) (string, error) {
	if !id.IsValid() {
		return "", ErrInvalidFeedID
	}
	if q.room == nil {
		return "", nil
	}

	state := q.room.Snapshot()
	if !state.IsMember(id) {
		return "", nil
	}

	var info *room.AliasInfo
	if aliases := q.ProfileAliases(id); len(aliases) > 0 {
		got, err := q.room.Alias(ctx, aliases[0])
		if err != nil {
			logrus.WithError(err).Warnf("🏷️ alias %q unavailable, linking without it", aliases[0])
		} else if got != nil && got.UserID == id.String() {
			info = got
		}
	}
	return ConsumeAliasURI(state.RoomID, id, state.Address, info), nil
}

// ConsumeAliasURI builds an ssb:experimental consume-alias link.
func ConsumeAliasURI(roomID, userID types.FeedID, addr types.Address, alias *room.AliasInfo) string {
	params := url.Values{}
	params.Set("action", "consume-alias")
	params.Set("roomId", roomID.String())
	params.Set("userId", userID.String())
	params.Set("multiserverAddress", addr.String())
	if alias != nil {
		params.Set("alias", alias.Alias)
		params.Set("signature", alias.Signature)
	}
	u := url.URL{Scheme: "ssb", Opaque: "experimental", RawQuery: params.Encode()}
	return u.String()
}

// === Graph ===

func (q *Resolvers) Followers(ctx context.Context, id types.FeedID) ([]Profile, error) {
	if !id.IsValid() {
		return nil, ErrInvalidFeedID
	}
	return q.graph.Followers(ctx, id)
}

func (q *Resolvers) Following(ctx context.Context, id types.FeedID) ([]Profile, error) {
	if !id.IsValid() {
		return nil, ErrInvalidFeedID
	}
	return q.graph.Following(ctx, id)
}

// FollowersCount counts every follower, including ones that are hidden
// from Followers.
func (q *Resolvers) FollowersCount(ctx context.Context, id types.FeedID) (int, error) {
	if !id.IsValid() {
		return 0, ErrInvalidFeedID
	}
	ids, err := q.graph.FollowerIDs(ctx, id)
	return len(ids), err
}

func (q *Resolvers) FollowingCount(ctx context.Context, id types.FeedID) (int, error) {
	if !id.IsValid() {
		return 0, ErrInvalidFeedID
	}
	ids, err := q.graph.FollowingIDs(ctx, id)
	return len(ids), err
}

// === Threads ===

func (q *Resolvers) GetThread(ctx context.Context, id types.MessageID, maxThreadSize int) (*Thread, error) {
	if !id.IsValid() {
		return nil, ErrInvalidMessageID
	}
	return q.threads.ThreadByID(ctx, id, maxThreadSize)
}

// GetThreads lists threads feedID took part in. Without a feedID it lists
// threads with a message from a member of our room.
func (q *Resolvers) GetThreads(ctx context.Context, feedID types.FeedID, opts ThreadOpts) ([]ThreadSummary, error) {
	if opts.Cursor != "" && !opts.Cursor.IsValid() {
		return nil, ErrInvalidMessageID
	}
	if feedID != "" {
		return q.ProfileThreads(ctx, feedID, opts)
	}
	if q.room == nil {
		return []ThreadSummary{}, nil
	}
	return q.threads.ThreadsByMembers(ctx, q.room.Snapshot().MemberIDs(), opts)
}

func (q *Resolvers) ProfileThreads(ctx context.Context, id types.FeedID, opts ThreadOpts) ([]ThreadSummary, error) {
	if !id.IsValid() {
		return nil, ErrInvalidFeedID
	}
	return q.threads.ThreadsByAuthor(ctx, id, opts)
}

// === Votes ===

// VoteView is a vote with its author resolved. Author is nil when the
// author hasn't opted in.
type VoteView struct {
	Author     *Profile `json:"author"`
	Value      int      `json:"value"`
	Expression string   `json:"expression"`
	Timestamp  int64    `json:"timestamp"`
}

func (q *Resolvers) Votes(ctx context.Context, id types.MessageID) ([]VoteView, error) {
	if !id.IsValid() {
		return nil, ErrInvalidMessageID
	}
	votes, err := Votes(ctx, q.log, id)
	if err != nil {
		return nil, err
	}

	report := utilities.MapConcurrent(ctx, votes, q.maxParallel, func(ctx context.Context, v Vote) (*Profile, error) {
		return q.profiles.Resolve(ctx, v.Author)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, failure := range report.Failed {
		logrus.WithError(failure.Err).Warnf("👍 vote by %s shown without author", votes[failure.Index].Author)
	}

	views := make([]VoteView, len(votes))
	for i, v := range votes {
		views[i] = VoteView{
			Author:     report.Results[i],
			Value:      v.Value,
			Expression: v.Expression,
			Timestamp:  v.Timestamp,
		}
	}
	return views, nil
}

func (q *Resolvers) VotesCount(ctx context.Context, id types.MessageID) (int, error) {
	if !id.IsValid() {
		return 0, ErrInvalidMessageID
	}
	votes, err := Votes(ctx, q.log, id)
	return len(votes), err
}

// === Room ===

// RoomView is the public description of our room.
type RoomView struct {
	ID           types.FeedID `json:"id"`
	Multiaddress string       `json:"multiaddress"`
	URL          string       `json:"url"`
	Name         string       `json:"name"`
	Members      []Profile    `json:"members"`
	Notices      room.Notices `json:"notices"`
	Description  *string      `json:"description"`
}

// GetMyRoom describes our room in language, or nil without a room.
func (q *Resolvers) GetMyRoom(ctx context.Context, language string) (*RoomView, error) {
	if q.room == nil {
		return nil, nil
	}
	if language == "" {
		language = q.language
	}

	state := q.room.Snapshot()
	members, err := q.profiles.ResolveMany(ctx, state.MemberIDs())
	if err != nil {
		return nil, err
	}

	view := &RoomView{
		ID:           state.RoomID,
		Multiaddress: state.Address.String(),
		URL:          q.room.URL(),
		Name:         state.Name,
		Members:      members,
		Notices:      state.Notices,
	}
	if desc, ok := state.Notices.Description(language); ok {
		view.Description = &desc
	}
	return view, nil
}

// GetInviteCode asks the room for a fresh invite link.
func (q *Resolvers) GetInviteCode(ctx context.Context) (string, error) {
	if q.room == nil {
		return "", ErrNoRoomConfigured
	}
	invite, err := q.room.CreateInvite(ctx)
	if err != nil {
		return "", fmt.Errorf("create invite: %w", err)
	}
	return invite, nil
}
