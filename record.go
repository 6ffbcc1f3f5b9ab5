package civic

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/eljojo/civic/types"
	"github.com/mitchellh/mapstructure"
)

// Record types the read model understands. Anything else is stored and
// ignored.
const (
	TypePost      = "post"
	TypeAbout     = "about"
	TypeContact   = "contact"
	TypeVote      = "vote"
	TypeRoomAlias = "room/alias"
)

// Record is one entry of the append-only log.
//
// Timestamp is the author-asserted creation time in milliseconds and is what
// every "newest first" ordering uses. Received is local arrival time.
type Record struct {
	Key       types.MessageID `json:"key"`
	Author    types.FeedID    `json:"author"`
	Sequence  int64           `json:"sequence"`
	Timestamp int64           `json:"timestamp"`
	Received  int64           `json:"received,omitempty"`
	Content   map[string]any  `json:"content,omitempty"`
	Signature string          `json:"signature,omitempty"`

	// Boxed holds sealed content; Content is empty until it is unboxed.
	Boxed string `json:"boxed,omitempty"`

	// Private is set when Content came out of a box we could open.
	Private bool `json:"private,omitempty"`
}

// Type returns content.type, or "" for content we can't read.
func (r Record) Type() string {
	t, _ := r.Content["type"].(string)
	return t
}

// ComputeKey derives the message key from the signed fields.
//
// IMPORTANT: the key covers author, sequence, timestamp and content. Changing
// any of them after ComputeKey makes the key stale and breaks deduplication.
func (r *Record) ComputeKey() {
	r.Key = types.MessageIDFromHash(r.hash())
}

// KeyMatches reports whether Key is the hash of the record itself. Boxed
// records are hashed as sealed, so unboxed content doesn't count.
func (r Record) KeyMatches() bool {
	sealed := r
	if sealed.Boxed != "" {
		sealed.Content = nil
	}
	sealed.ComputeKey()
	return sealed.Key == r.Key
}

// SignableData returns the bytes that get signed (everything but the signature).
func (r *Record) SignableData() []byte {
	return r.hash()
}

func (r *Record) hash() []byte {
	// encoding/json sorts map keys, so the content encoding is canonical
	content, _ := json.Marshal(r.Content)
	hasher := sha256.New()
	hasher.Write([]byte(fmt.Sprintf("%s:%d:%d:%s:", r.Author, r.Sequence, r.Timestamp, r.Boxed)))
	hasher.Write(content)
	return hasher.Sum(nil)
}

// IsValid checks the record is well-formed enough to store.
func (r *Record) IsValid() bool {
	if !r.Author.IsValid() || r.Timestamp <= 0 {
		return false
	}
	if r.Boxed == "" && r.Type() == "" {
		return false
	}
	return true
}

// PostContent is the payload of a "post" record.
type PostContent struct {
	Text    string          `json:"text"`
	Root    types.MessageID `json:"root"`
	Branch  any             `json:"branch"`
	Channel string          `json:"channel"`
}

// AboutContent is the payload of an "about" record.
type AboutContent struct {
	About            types.FeedID `json:"about"`
	Name             *string      `json:"name"`
	Image            any          `json:"image"`
	Description      *string      `json:"description"`
	PublicWebHosting *bool        `json:"publicWebHosting"`
}

// ImageRef returns the blob reference whether the image was written as a
// plain string or as {link: ...}.
func (a AboutContent) ImageRef() (types.BlobID, bool) {
	switch img := a.Image.(type) {
	case string:
		return types.BlobID(img), img != ""
	case map[string]any:
		if link, ok := img["link"].(string); ok && link != "" {
			return types.BlobID(link), true
		}
	}
	return "", false
}

// ContactContent is the payload of a "contact" record.
type ContactContent struct {
	Contact   types.FeedID `json:"contact"`
	Following *bool        `json:"following"`
	Blocking  *bool        `json:"blocking"`
}

// VoteContent is the payload of a "vote" record.
type VoteContent struct {
	Vote struct {
		Link       types.MessageID `json:"link"`
		Value      int             `json:"value"`
		Expression string          `json:"expression"`
	} `json:"vote"`
}

// RoomAliasContent is the payload of a "room/alias" record.
type RoomAliasContent struct {
	Action   string       `json:"action"`
	Alias    string       `json:"alias"`
	AliasURL string       `json:"aliasURL"`
	Room     types.FeedID `json:"room"`
}

// Post decodes the content of a post record.
func (r Record) Post() (*PostContent, bool) {
	var c PostContent
	return &c, r.decode(TypePost, &c)
}

// About decodes the content of an about record.
func (r Record) About() (*AboutContent, bool) {
	var c AboutContent
	return &c, r.decode(TypeAbout, &c)
}

// Contact decodes the content of a contact record.
func (r Record) Contact() (*ContactContent, bool) {
	var c ContactContent
	return &c, r.decode(TypeContact, &c) && c.Contact != ""
}

// Vote decodes the content of a vote record.
func (r Record) Vote() (*VoteContent, bool) {
	var c VoteContent
	return &c, r.decode(TypeVote, &c) && c.Vote.Link != ""
}

// RoomAlias decodes the content of a room/alias record.
func (r Record) RoomAlias() (*RoomAliasContent, bool) {
	var c RoomAliasContent
	return &c, r.decode(TypeRoomAlias, &c) && c.Alias != ""
}

func (r Record) decode(kind string, out any) bool {
	if r.Type() != kind {
		return false
	}
	return decodeContent(r.Content, out) == nil
}

// decodeContent maps loosely typed JSON content onto a payload struct.
// Feeds are written by many clients, so "true" and 1 are accepted for bools.
func decodeContent(input any, output any) error {
	config := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           output,
		TagName:          "json",
		WeaklyTypedInput: true,
	}

	decoder, err := mapstructure.NewDecoder(config)
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}
