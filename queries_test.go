package civic

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is a room that never leaves the test process.
type fakeDirectory struct {
	state     *room.State
	aliases   map[string]*room.AliasInfo
	aliasErr  error
	invite    string
	inviteErr error
}

func newFakeDirectory(t *testing.T, members map[types.FeedID][]string) *fakeDirectory {
	t.Helper()
	addr, err := types.NewAddress("room.example", 8008, feed(99).String())
	require.NoError(t, err)

	state := room.NewState(addr)
	state.Name = "civic room"
	for id, aliases := range members {
		state.Members[id] = room.Member{ID: id, Aliases: aliases}
	}
	state.Notices = room.Notices{
		"about": {{
			Name: room.NoticeDescription,
			Notices: []room.Notice{
				{Title: "About", Content: "A room for neighbours", Language: "en-GB"},
				{Title: "Acerca", Content: "Una sala para vecinos", Language: "es-ES"},
			},
		}},
	}
	return &fakeDirectory{state: state, aliases: map[string]*room.AliasInfo{}}
}

func (d *fakeDirectory) Snapshot() *room.State { return d.state }
func (d *fakeDirectory) URL() string           { return "https://room.example" }

func (d *fakeDirectory) Alias(_ context.Context, alias string) (*room.AliasInfo, error) {
	if d.aliasErr != nil {
		return nil, d.aliasErr
	}
	return d.aliases[alias], nil
}

func (d *fakeDirectory) CreateInvite(context.Context) (string, error) {
	return d.invite, d.inviteErr
}

func (d *fakeDirectory) registerAlias(alias string, id types.FeedID) {
	d.aliases[alias] = &room.AliasInfo{
		Alias:     alias,
		RoomID:    d.state.RoomID.String(),
		UserID:    id.String(),
		Signature: "sig-" + alias,
	}
}

// TestProfileByAlias verifies aliases resolve through our room only, and
// still respect the opt-in.
func TestProfileByAlias(t *testing.T) {
	w := newTestWorld(t)
	alice, bob := feed(1), feed(2)
	w.about(alice, 1000, "alice", true)
	w.about(bob, 1000, "bob", false)

	dir := newFakeDirectory(t, map[types.FeedID][]string{alice: {"alice"}, bob: {"bob"}})
	dir.registerAlias("alice", alice)
	dir.registerAlias("bob", bob)
	q := w.resolvers(dir)
	ctx := context.Background()

	p, err := q.GetProfileByAlias(ctx, "alice", "")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, alice, p.ID)

	p, err = q.GetProfileByAlias(ctx, "alice", dir.state.RoomID.String())
	require.NoError(t, err)
	assert.NotNil(t, p)

	p, err = q.GetProfileByAlias(ctx, "alice", feed(50).String())
	require.NoError(t, err)
	assert.Nil(t, p, "alias in someone else's room")

	p, err = q.GetProfileByAlias(ctx, "bob", "")
	require.NoError(t, err)
	assert.Nil(t, p, "bob opted out")

	p, err = q.GetProfileByAlias(ctx, "nobody", "")
	require.NoError(t, err)
	assert.Nil(t, p)

	dir.aliasErr = errors.New("room web down")
	_, err = q.GetProfileByAlias(ctx, "alice", "")
	assert.Error(t, err)

	p, err = w.resolvers(nil).GetProfileByAlias(ctx, "alice", "")
	require.NoError(t, err)
	assert.Nil(t, p, "no room, no aliases")
}

func TestProfileAliases(t *testing.T) {
	w := newTestWorld(t)
	dir := newFakeDirectory(t, map[types.FeedID][]string{feed(1): {"alice", "al"}, feed(2): nil})
	q := w.resolvers(dir)

	assert.Equal(t, []string{"alice", "al"}, q.ProfileAliases(feed(1)))
	assert.Equal(t, []string{}, q.ProfileAliases(feed(2)))
	assert.Equal(t, []string{}, q.ProfileAliases(feed(3)))
	assert.Equal(t, []string{}, w.resolvers(nil).ProfileAliases(feed(1)))
}

// TestProfileSSBURI verifies the consume-alias link carries the alias only
// when the room vouches that it belongs to the member.
func TestProfileSSBURI(t *testing.T) {
	w := newTestWorld(t)
	alice, bob, outsider := feed(1), feed(2), feed(3)
	dir := newFakeDirectory(t, map[types.FeedID][]string{alice: {"alice"}, bob: {"bobby"}})
	dir.registerAlias("alice", alice)
	dir.registerAlias("bobby", alice) // claimed by someone else
	q := w.resolvers(dir)
	ctx := context.Background()

	uri, err := q.ProfileSSBURI(ctx, alice)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "ssb:experimental?"), uri)

	params, err := url.ParseQuery(strings.TrimPrefix(uri, "ssb:experimental?"))
	require.NoError(t, err)
	assert.Equal(t, "consume-alias", params.Get("action"))
	assert.Equal(t, dir.state.RoomID.String(), params.Get("roomId"))
	assert.Equal(t, alice.String(), params.Get("userId"))
	assert.Equal(t, dir.state.Address.String(), params.Get("multiserverAddress"))
	assert.Equal(t, "alice", params.Get("alias"))
	assert.Equal(t, "sig-alice", params.Get("signature"))

	uri, err = q.ProfileSSBURI(ctx, bob)
	require.NoError(t, err)
	params, err = url.ParseQuery(strings.TrimPrefix(uri, "ssb:experimental?"))
	require.NoError(t, err)
	assert.Equal(t, bob.String(), params.Get("userId"))
	assert.Empty(t, params.Get("alias"))

	uri, err = q.ProfileSSBURI(ctx, outsider)
	require.NoError(t, err)
	assert.Empty(t, uri)

	_, err = q.ProfileSSBURI(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidFeedID)
}

// TestMyRoom verifies the room view only lists opted-in members and picks
// the description in the requested language.
func TestMyRoom(t *testing.T) {
	w := newTestWorld(t)
	alice, bob := feed(1), feed(2)
	w.about(alice, 1000, "alice", true)
	w.about(bob, 1000, "bob", false)

	dir := newFakeDirectory(t, map[types.FeedID][]string{alice: nil, bob: nil})
	q := w.resolvers(dir)
	ctx := context.Background()

	view, err := q.GetMyRoom(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "civic room", view.Name)
	assert.Equal(t, dir.state.RoomID, view.ID)
	assert.Equal(t, "https://room.example", view.URL)
	assert.Equal(t, dir.state.Address.String(), view.Multiaddress)
	require.Len(t, view.Members, 1)
	assert.Equal(t, alice, view.Members[0].ID)
	require.NotNil(t, view.Description)
	assert.Equal(t, "A room for neighbours", *view.Description)

	view, err = q.GetMyRoom(ctx, "es-ES")
	require.NoError(t, err)
	assert.Equal(t, "Una sala para vecinos", *view.Description)

	view, err = q.GetMyRoom(ctx, "mi-NZ")
	require.NoError(t, err)
	assert.Nil(t, view.Description)

	view, err = w.resolvers(nil).GetMyRoom(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestInviteCode(t *testing.T) {
	w := newTestWorld(t)
	dir := newFakeDirectory(t, nil)
	dir.invite = "https://room.example/join?token=abc"
	ctx := context.Background()

	invite, err := w.resolvers(dir).GetInviteCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, dir.invite, invite)

	dir.inviteErr = room.ErrRateLimited
	_, err = w.resolvers(dir).GetInviteCode(ctx)
	assert.ErrorIs(t, err, room.ErrRateLimited)

	_, err = w.resolvers(nil).GetInviteCode(ctx)
	assert.ErrorIs(t, err, ErrNoRoomConfigured)
}

// TestThreadsWithoutFeedListMembersThreads verifies the front page lists
// threads by room members and nothing without a room.
func TestThreadsWithoutFeedListMembersThreads(t *testing.T) {
	w := newTestWorld(t)
	member, outsider := feed(1), feed(2)
	w.about(member, 100, "member", true)
	w.about(outsider, 100, "outsider", true)
	mine := w.post(member, 1000, "hello room")
	w.post(outsider, 2000, "hello world")

	ctx := context.Background()
	dir := newFakeDirectory(t, map[types.FeedID][]string{member: nil})

	threads, err := w.resolvers(dir).GetThreads(ctx, "", ThreadOpts{})
	require.NoError(t, err)
	require.Len(t, threads, 1)
	assert.Equal(t, mine, threads[0].ID)

	threads, err = w.resolvers(nil).GetThreads(ctx, "", ThreadOpts{})
	require.NoError(t, err)
	assert.NotNil(t, threads)
	assert.Empty(t, threads)

	_, err = w.resolvers(dir).GetThreads(ctx, "", ThreadOpts{Cursor: "%broken"})
	assert.ErrorIs(t, err, ErrInvalidMessageID)
}

// TestVotes verifies votes are listed newest first without deduplication,
// with opted-out authors hidden but still counted.
func TestVotes(t *testing.T) {
	w := newTestWorld(t)
	a, b, c := feed(1), feed(2), feed(3)
	w.about(a, 100, "A", true)
	w.about(b, 100, "B", true)
	w.about(c, 100, "C", false)

	target := w.post(a, 1000, "vote on me")
	other := w.post(a, 1100, "not this one")
	w.vote(b, 2000, target, 1)
	w.vote(b, 3000, target, 0)
	w.vote(b, 4000, target, 1)
	w.vote(c, 5000, target, 1)
	w.vote(b, 6000, other, 1)

	q := w.resolvers(nil)
	ctx := context.Background()

	raw, err := Votes(ctx, w.ledger, target)
	require.NoError(t, err)
	require.Len(t, raw, 4)
	assert.Equal(t, int64(5000), raw[0].Timestamp)
	assert.Equal(t, int64(2000), raw[3].Timestamp)

	views, err := q.Votes(ctx, target)
	require.NoError(t, err)
	require.Len(t, views, 4)
	assert.Nil(t, views[0].Author, "C opted out")
	require.NotNil(t, views[1].Author)
	assert.Equal(t, "B", views[1].Author.Name)
	assert.Equal(t, 0, views[2].Value)
	assert.Equal(t, "Like", views[3].Expression)

	count, err := q.VotesCount(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	_, err = q.Votes(ctx, "nope")
	assert.ErrorIs(t, err, ErrInvalidMessageID)
}
