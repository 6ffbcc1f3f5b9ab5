package room

import (
	"errors"
	"time"

	"github.com/eljojo/civic/types"
)

// FetchedMember is a member as seen during one refresh.
type FetchedMember struct {
	ID       types.FeedID
	Aliases  []string
	AliasErr error // aliases couldn't be listed; keep the ones we knew
}

// Fetched is everything one refresh cycle brought back.
type Fetched struct {
	At time.Time

	ConnectErr error

	Name        string
	MetadataErr error

	Notices    Notices
	NoticesErr error

	// Members holds what arrived. With MembersErr set the stream broke
	// mid-way and Members is partial.
	Members    []FetchedMember
	MembersErr error
}

// Reconcile folds a refresh into the previous state and returns the next one.
//
// It never mutates prev. Anything that failed keeps its previous value:
//   - metadata failed: name kept
//   - notices failed: notices kept
//   - members complete: member map replaced
//   - members broke mid-way: previous map overlaid with what arrived
//   - connect failed: name and members kept
//
// Notices come from the web surface and don't depend on the connection.
func Reconcile(prev *State, f Fetched) *State {
	next := *prev

	if f.NoticesErr == nil && f.Notices != nil {
		next.Notices = f.Notices
	}

	var errs []error
	if f.ConnectErr != nil {
		errs = append(errs, f.ConnectErr)
	} else {
		next.RefreshedAt = f.At

		if f.MetadataErr == nil {
			next.Name = f.Name
		} else {
			errs = append(errs, f.MetadataErr)
		}

		var members map[types.FeedID]Member
		if f.MembersErr == nil {
			members = make(map[types.FeedID]Member, len(f.Members))
		} else {
			errs = append(errs, f.MembersErr)
			members = make(map[types.FeedID]Member, len(prev.Members)+len(f.Members))
			for id, m := range prev.Members {
				members[id] = m
			}
		}
		for _, fm := range f.Members {
			m := Member{ID: fm.ID, Aliases: fm.Aliases}
			if fm.AliasErr != nil {
				m.Aliases = prev.Members[fm.ID].Aliases
			}
			members[fm.ID] = m
		}
		next.Members = members
	}
	if f.NoticesErr != nil {
		errs = append(errs, f.NoticesErr)
	}

	next.LastError = ""
	if err := errors.Join(errs...); err != nil {
		next.LastError = err.Error()
	}
	return &next
}
