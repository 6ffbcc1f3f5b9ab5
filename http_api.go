package civic

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/eljojo/civic/services/room"
	"github.com/eljojo/civic/types"
	"github.com/sirupsen/logrus"
)

// Absence is a 200 with a null body. Bad input is a 400. Anything else that
// went wrong is upstream of us and becomes a 502.

func (s *Server) httpProfileHandler(w http.ResponseWriter, r *http.Request) {
	profile, err := s.cfg.Queries.GetProfile(r.Context(), types.FeedID(r.URL.Query().Get("id")))
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, profile)
}

func (s *Server) httpProfilesHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}
	profiles, err := s.cfg.Queries.GetProfiles(r.Context(), limit)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, profiles)
}

func (s *Server) httpProfileByAliasHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	profile, err := s.cfg.Queries.GetProfileByAlias(r.Context(), q.Get("alias"), q.Get("roomId"))
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, profile)
}

// profileGraph is a list of profiles next to the unfiltered count.
type profileGraph struct {
	Count    int       `json:"count"`
	Profiles []Profile `json:"profiles"`
}

func (s *Server) httpFollowersHandler(w http.ResponseWriter, r *http.Request) {
	id := types.FeedID(r.URL.Query().Get("id"))
	count, err := s.cfg.Queries.FollowersCount(r.Context(), id)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	profiles, err := s.cfg.Queries.Followers(r.Context(), id)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, profileGraph{Count: count, Profiles: profiles})
}

func (s *Server) httpFollowingHandler(w http.ResponseWriter, r *http.Request) {
	id := types.FeedID(r.URL.Query().Get("id"))
	count, err := s.cfg.Queries.FollowingCount(r.Context(), id)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	profiles, err := s.cfg.Queries.Following(r.Context(), id)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, profileGraph{Count: count, Profiles: profiles})
}

func (s *Server) httpThreadHandler(w http.ResponseWriter, r *http.Request) {
	maxSize, ok := intParam(w, r, "maxThreadSize", 0)
	if !ok {
		return
	}
	thread, err := s.cfg.Queries.GetThread(r.Context(), types.MessageID(r.URL.Query().Get("id")), maxSize)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, thread)
}

func (s *Server) httpThreadsHandler(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(w, r, "limit", DefaultThreadsLimit)
	if !ok {
		return
	}
	maxSize, ok := intParam(w, r, "maxThreadSize", 0)
	if !ok {
		return
	}

	q := r.URL.Query()
	opts := ThreadOpts{
		Limit:         limit,
		MaxThreadSize: maxSize,
		Cursor:        types.MessageID(q.Get("cursor")),
	}
	threads, err := s.cfg.Queries.GetThreads(r.Context(), types.FeedID(q.Get("feedId")), opts)
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, threads)
}

type votesResponse struct {
	Count int        `json:"count"`
	Votes []VoteView `json:"votes"`
}

func (s *Server) httpVotesHandler(w http.ResponseWriter, r *http.Request) {
	votes, err := s.cfg.Queries.Votes(r.Context(), types.MessageID(r.URL.Query().Get("id")))
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, votesResponse{Count: len(votes), Votes: votes})
}

func (s *Server) httpRoomHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.cfg.Queries.GetMyRoom(r.Context(), r.URL.Query().Get("language"))
	if err != nil {
		sendAPIError(w, err)
		return
	}
	writeJSON(w, view)
}

type inviteResponse struct {
	URL *string `json:"url"`
}

func (s *Server) httpInviteHandler(w http.ResponseWriter, r *http.Request) {
	invite, err := s.cfg.Queries.GetInviteCode(r.Context())
	if err != nil {
		sendAPIError(w, err)
		return
	}
	resp := inviteResponse{}
	if invite != "" {
		resp.URL = &invite
	}
	writeJSON(w, resp)
}

func (s *Server) httpStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Status == nil {
		writeJSON(w, nil)
		return
	}
	writeJSON(w, s.cfg.Status.Status())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("Failed to encode response")
	}
}

type apiError struct {
	Error string `json:"error"`
}

// sendAPIError maps a query error to a status code.
func sendAPIError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, ErrInvalidFeedID), errors.Is(err, ErrInvalidMessageID):
		status = http.StatusBadRequest
	case errors.Is(err, ErrNoRoomConfigured):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrRateLimited):
		status = http.StatusTooManyRequests
	default:
		logrus.WithError(err).Warn("🌐 upstream failure")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiError{Error: err.Error()})
}

// intParam reads an optional integer query parameter. It writes a 400 and
// returns false when the value isn't a non-negative integer.
func intParam(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Error: "invalid " + key})
		return 0, false
	}
	return n, true
}
