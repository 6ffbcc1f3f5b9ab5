package civic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer serves w's resolvers through the real router.
func testServer(t *testing.T, w *testWorld, dir RoomDirectory, owner types.FeedID) (*httptest.Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	srv := NewServer(ServerConfig{
		Queries:  w.resolvers(dir),
		Ledger:   w.ledger,
		Owner:    owner,
		Status:   NewStatusReporter(owner.String(), w.ledger, w.projections.Abouts(), nil),
		Metrics:  NewMetrics(reg, w.ledger),
		Gatherer: reg,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, reg
}

func get(t *testing.T, ts *httptest.Server, path string, params url.Values) (int, []byte) {
	t.Helper()
	target := ts.URL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	resp, err := http.Get(target)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func post(t *testing.T, ts *httptest.Server, path string, payload any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
	}
	resp, err := http.Post(ts.URL+path, "application/json", &buf)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

// TestHTTPProfileEndpoints verifies absence is a 200 with null and bad ids
// are a 400.
func TestHTTPProfileEndpoints(t *testing.T) {
	w := newTestWorld(t)
	alice, bob := feed(1), feed(2)
	w.about(alice, 1000, "alice", true)
	w.about(bob, 1000, "bob", false)
	w.follow(bob, alice, 2000, true)
	ts, _ := testServer(t, w, nil, "")

	status, body := get(t, ts, "/api/profile", url.Values{"id": {alice.String()}})
	require.Equal(t, http.StatusOK, status)
	var p Profile
	require.NoError(t, json.Unmarshal(body, &p))
	assert.Equal(t, "alice", p.Name)

	status, body = get(t, ts, "/api/profile", url.Values{"id": {bob.String()}})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "null", string(body))

	status, body = get(t, ts, "/api/profile", url.Values{"id": {"not-an-id"}})
	assert.Equal(t, http.StatusBadRequest, status)
	var apiErr apiError
	require.NoError(t, json.Unmarshal(body, &apiErr))
	assert.Contains(t, apiErr.Error, "invalid feed id")

	status, body = get(t, ts, "/api/profile/followers", url.Values{"id": {alice.String()}})
	require.Equal(t, http.StatusOK, status)
	var graph profileGraph
	require.NoError(t, json.Unmarshal(body, &graph))
	assert.Equal(t, 1, graph.Count)
	assert.Empty(t, graph.Profiles, "bob counts but isn't shown")

	status, _ = get(t, ts, "/api/profiles", url.Values{"limit": {"many"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, ts, "/api/profile/alias", url.Values{"alias": {"alice"}})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "null", string(body), "no room configured")
}

func TestHTTPThreadsAndVotes(t *testing.T) {
	w := newTestWorld(t)
	a := feed(1)
	w.about(a, 100, "A", true)
	root := w.post(a, 1000, "root")
	w.reply(a, 2000, root, "reply")
	w.vote(a, 3000, root, 1)
	ts, _ := testServer(t, w, nil, "")

	status, body := get(t, ts, "/api/thread", url.Values{"id": {root.String()}})
	require.Equal(t, http.StatusOK, status)
	var thread Thread
	require.NoError(t, json.Unmarshal(body, &thread))
	assert.Equal(t, "root", *thread.Root.Text)
	assert.Len(t, thread.Replies, 1)

	// the root message carries an explicit null root
	var wire struct {
		Root map[string]any `json:"root"`
	}
	require.NoError(t, json.Unmarshal(body, &wire))
	rootField, present := wire.Root["root"]
	assert.True(t, present)
	assert.Nil(t, rootField)

	status, body = get(t, ts, "/api/thread", url.Values{"id": {unknownMessage("x").String()}})
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "null", string(body))

	status, _ = get(t, ts, "/api/thread", url.Values{"id": {root.String()}, "maxThreadSize": {"-1"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, ts, "/api/threads", url.Values{"feedId": {a.String()}})
	require.Equal(t, http.StatusOK, status)
	var threads []ThreadSummary
	require.NoError(t, json.Unmarshal(body, &threads))
	require.Len(t, threads, 1)
	assert.Len(t, threads[0].Messages, 2)

	status, _ = get(t, ts, "/api/threads", url.Values{"cursor": {"%bad"}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = get(t, ts, "/api/votes", url.Values{"id": {root.String()}})
	require.Equal(t, http.StatusOK, status)
	var votes votesResponse
	require.NoError(t, json.Unmarshal(body, &votes))
	assert.Equal(t, 1, votes.Count)
	require.NotNil(t, votes.Votes[0].Author)
	assert.Equal(t, "A", votes.Votes[0].Author.Name)
}

// TestHTTPRoomEndpoints verifies room failures map to distinct status codes.
func TestHTTPRoomEndpoints(t *testing.T) {
	w := newTestWorld(t)
	alice := feed(1)
	w.about(alice, 100, "alice", true)
	dir := newFakeDirectory(t, map[types.FeedID][]string{alice: {"alice"}})
	dir.invite = "https://room.example/join?token=abc"
	ts, _ := testServer(t, w, dir, "")

	status, body := get(t, ts, "/api/room", nil)
	require.Equal(t, http.StatusOK, status)
	var view RoomView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, "civic room", view.Name)
	assert.Len(t, view.Members, 1)

	status, body = post(t, ts, "/api/room/invite", nil)
	require.Equal(t, http.StatusOK, status)
	var invite inviteResponse
	require.NoError(t, json.Unmarshal(body, &invite))
	require.NotNil(t, invite.URL)
	assert.Equal(t, dir.invite, *invite.URL)

	dir.inviteErr = room.ErrRateLimited
	status, _ = post(t, ts, "/api/room/invite", nil)
	assert.Equal(t, http.StatusTooManyRequests, status)

	dir.aliasErr = errors.New("room web unreachable")
	status, _ = get(t, ts, "/api/profile/alias", url.Values{"alias": {"alice"}})
	assert.Equal(t, http.StatusBadGateway, status)

	noRoom, _ := testServer(t, newTestWorld(t), nil, "")
	status, body = get(t, noRoom, "/api/room", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "null", string(body))
	status, _ = post(t, noRoom, "/api/room/invite", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHTTPStatusAndMetrics(t *testing.T) {
	w := newTestWorld(t)
	w.about(feed(1), 100, "A", true)
	w.post(feed(1), 200, "hi")
	ts, _ := testServer(t, w, nil, feed(9))

	status, body := get(t, ts, "/api/status", nil)
	require.Equal(t, http.StatusOK, status)
	var st Status
	require.NoError(t, json.Unmarshal(body, &st))
	assert.Equal(t, feed(9).String(), st.Me)
	assert.Equal(t, 2, st.Records)
	assert.Equal(t, 1, st.ByType[TypePost])
	assert.Equal(t, 1, st.Identities)
	assert.Nil(t, st.Room)

	status, body = get(t, ts, "/metrics", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `civic_http_requests_total{code="200",route="/api/status"} 1`)
	assert.Contains(t, string(body), "civic_ledger_records 2")

	w.post(feed(1), 300, "appended after start")
	_, body = get(t, ts, "/metrics", nil)
	assert.Contains(t, string(body), `civic_ledger_appended_total{type="post"} 1`)
}

// TestHTTPRecordsImport verifies only the owner can import, and that
// replays of already known records are counted as duplicates.
func TestHTTPRecordsImport(t *testing.T) {
	owner := testKeyring(7)
	w := newTestWorld(t)
	ts, _ := testServer(t, w, nil, owner.ID())

	known := w.add(feed(1), 1000, map[string]any{"type": TypePost, "text": "already here"})
	fresh := Record{Author: feed(2), Sequence: 1, Timestamp: 2000, Content: map[string]any{"type": TypePost, "text": "restored"}}
	fresh.ComputeKey()

	req := RecordImportRequest{Records: []Record{known, fresh}}
	req.Sign(owner)

	status, body := post(t, ts, "/api/records/import", req)
	require.Equal(t, http.StatusOK, status, string(body))
	var resp RecordImportResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 1, resp.Imported)
	assert.Equal(t, 1, resp.Duplicates)

	got, err := w.ledger.Get(context.Background(), fresh.Key)
	require.NoError(t, err)
	assert.NotNil(t, got)

	forged := RecordImportRequest{Records: []Record{fresh}}
	forged.Sign(testKeyring(8))
	status, _ = post(t, ts, "/api/records/import", forged)
	assert.Equal(t, http.StatusForbidden, status)

	stale := RecordImportRequest{Records: []Record{fresh}}
	stale.Sign(owner)
	stale.Timestamp = time.Now().Add(-time.Hour).Unix()
	stale.Signature = owner.SignRecord(stale.SigningData())
	status, _ = post(t, ts, "/api/records/import", stale)
	assert.Equal(t, http.StatusForbidden, status)

	disabled, _ := testServer(t, newTestWorld(t), nil, "")
	status, _ = post(t, disabled, "/api/records/import", req)
	assert.Equal(t, http.StatusNotFound, status)
}

// TestHTTPRecordsImportRejectsAlteredContent verifies the owner's signature
// over record keys also pins their content: records edited after their key
// was computed are rejected, whether the key is new or already known.
func TestHTTPRecordsImportRejectsAlteredContent(t *testing.T) {
	owner := testKeyring(7)
	w := newTestWorld(t)
	ts, _ := testServer(t, w, nil, owner.ID())

	known := w.add(feed(1), 1000, map[string]any{"type": TypePost, "text": "original"})
	shadow := known
	shadow.Content = map[string]any{"type": TypePost, "text": "rewritten"}

	altered := Record{Author: feed(2), Sequence: 1, Timestamp: 2000, Content: map[string]any{"type": TypePost, "text": "signed"}}
	altered.ComputeKey()
	altered.Content = map[string]any{"type": TypePost, "text": "swapped"}

	req := RecordImportRequest{Records: []Record{shadow, altered}}
	req.Sign(owner)

	status, body := post(t, ts, "/api/records/import", req)
	require.Equal(t, http.StatusOK, status, string(body))
	var resp RecordImportResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, 0, resp.Imported)
	assert.Equal(t, 0, resp.Duplicates)
	assert.Equal(t, 2, resp.Rejected)

	got, err := w.ledger.Get(context.Background(), known.Key)
	require.NoError(t, err)
	content, ok := got.Post()
	require.True(t, ok)
	assert.Equal(t, "original", content.Text)

	got, err = w.ledger.Get(context.Background(), altered.Key)
	require.NoError(t, err)
	assert.Nil(t, got)
}
