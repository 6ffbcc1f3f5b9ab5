package room

import (
	"sort"
	"time"

	"github.com/eljojo/civic/types"
)

// DefaultLanguage is used to pick notices when the caller doesn't ask for one.
const DefaultLanguage = "en-GB"

// NoticeDescription is the notice group holding the room's description.
const NoticeDescription = "NoticeDescription"

// Phase is where the refresh cycle currently is.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseFetching
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseFetching:
		return "fetching"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "idle"
	}
}

// Member is a room member and the aliases it registered.
type Member struct {
	ID      types.FeedID `json:"id"`
	Aliases []string     `json:"aliases"`
}

// Notice is one translation of a room notice.
type Notice struct {
	ID       int64  `json:"id,omitempty"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// NoticeGroup is a named notice (e.g. NoticeDescription) in every language.
type NoticeGroup struct {
	Name    string   `json:"name"`
	Notices []Notice `json:"notices"`
}

// Notices is the room's notice list as served by its web surface.
type Notices map[string][]NoticeGroup

// Description returns the content of the description notice in language.
func (n Notices) Description(language string) (string, bool) {
	if language == "" {
		language = DefaultLanguage
	}
	for _, groups := range n {
		for _, group := range groups {
			if group.Name != NoticeDescription {
				continue
			}
			for _, notice := range group.Notices {
				if notice.Language == language {
					return notice.Content, true
				}
			}
		}
	}
	return "", false
}

// State is an immutable snapshot of what we know about the room.
// Readers get a whole snapshot or the previous one, never a mix.
type State struct {
	RoomID      types.FeedID
	Address     types.Address
	Name        string
	Notices     Notices
	Members     map[types.FeedID]Member
	RefreshedAt time.Time // last cycle that reached the room
	LastError   string
}

// NewState is the empty state the cache starts with.
func NewState(addr types.Address) *State {
	return &State{
		RoomID:  addr.FeedID(),
		Address: addr,
		Notices: Notices{},
		Members: map[types.FeedID]Member{},
	}
}

// MemberIDs returns member ids, sorted.
func (s *State) MemberIDs() []types.FeedID {
	ids := make([]types.FeedID, 0, len(s.Members))
	for id := range s.Members {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Member returns a member by id.
func (s *State) Member(id types.FeedID) (Member, bool) {
	m, ok := s.Members[id]
	return m, ok
}

// IsMember reports whether id is in the room.
func (s *State) IsMember(id types.FeedID) bool {
	_, ok := s.Members[id]
	return ok
}
