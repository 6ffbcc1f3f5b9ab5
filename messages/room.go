package messages

import (
	"errors"
)

// Room RPC methods.
const (
	// MethodMetadata returns RoomMetadata. Single response.
	MethodMetadata = "room.metadata"

	// MethodMembers streams MemberBatch responses until Done.
	MethodMembers = "room.members"

	// MethodListAliases returns AliasList for AliasListArgs. Single response.
	MethodListAliases = "room.listAliases"
)

// RoomMetadata describes the room.
//
// Response to: room.metadata
//
// Version History:
//
//	v1 (2026-10): Initial version
type RoomMetadata struct {
	Name       string   `json:"name"`
	Membership bool     `json:"membership,omitempty"`
	Features   []string `json:"features,omitempty"`
}

// RoomMember is one entry of the membership stream.
type RoomMember struct {
	ID string `json:"id"`
}

// MemberBatch is one chunk of the membership stream.
//
// Response to: room.members (stream)
//
// Version History:
//
//	v1 (2026-10): Initial version
type MemberBatch struct {
	Members []RoomMember `json:"members"`
}

// Validate checks every member carries an id.
func (b *MemberBatch) Validate() error {
	for _, m := range b.Members {
		if m.ID == "" {
			return errors.New("member id required")
		}
	}
	return nil
}

// AliasListArgs asks for the aliases one member registered.
//
// Method: room.listAliases
type AliasListArgs struct {
	ID string `json:"id"`
}

// Validate checks the args are well-formed.
func (a *AliasListArgs) Validate() error {
	if a.ID == "" {
		return errors.New("id required")
	}
	return nil
}

// AliasList is the response to room.listAliases.
type AliasList struct {
	Aliases []string `json:"aliases"`
}
