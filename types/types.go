package types

import (
	"encoding/base64"
	"strings"
)

// FeedID is a type-safe wrapper for identities (ed25519 public key references)
// e.g. "@hxGxqPrplLjRG2vtjQL87abX4QKqeLgCwQpS730nNwE=.ed25519"
type FeedID string

// MessageID is a type-safe wrapper for message keys
// e.g. "%8i1jVL0vyuUq6C4UHKqH1YTDgbsa4dpxUNhnBEbu3sk=.sha256"
type MessageID string

// BlobID is a type-safe wrapper for blob references
type BlobID string

const (
	feedSigil    = "@"
	messageSigil = "%"
	blobSigil    = "&"

	feedSuffix = ".ed25519"
	hashSuffix = ".sha256"
)

// String converts FeedID to string
func (f FeedID) String() string {
	return string(f)
}

// String converts MessageID to string
func (m MessageID) String() string {
	return string(m)
}

// String converts BlobID to string
func (b BlobID) String() string {
	return string(b)
}

// IsValid reports whether the id is a well formed ed25519 feed reference.
func (f FeedID) IsValid() bool {
	return isRef(string(f), feedSigil, feedSuffix, 32)
}

// PublicKey returns the raw key bytes, or nil for malformed ids.
func (f FeedID) PublicKey() []byte {
	if !f.IsValid() {
		return nil
	}
	raw, _ := base64.StdEncoding.DecodeString(f.Base64())
	return raw
}

// Base64 returns the base64 body of the reference without sigil and suffix.
func (f FeedID) Base64() string {
	return strings.TrimSuffix(strings.TrimPrefix(string(f), feedSigil), feedSuffix)
}

// IsValid reports whether the id is a well formed sha256 message reference.
func (m MessageID) IsValid() bool {
	return isRef(string(m), messageSigil, hashSuffix, 32)
}

// IsValid reports whether the id is a well formed sha256 blob reference.
// Blob references may carry a query string (e.g. "?unbox=...").
func (b BlobID) IsValid() bool {
	pure, _, _ := strings.Cut(string(b), "?")
	return isRef(pure, blobSigil, hashSuffix, 32)
}

// FeedIDFromKey builds the feed reference for an ed25519 public key.
func FeedIDFromKey(pub []byte) FeedID {
	return FeedID(feedSigil + base64.StdEncoding.EncodeToString(pub) + feedSuffix)
}

// MessageIDFromHash builds the message reference for a sha256 digest.
func MessageIDFromHash(sum []byte) MessageID {
	return MessageID(messageSigil + base64.StdEncoding.EncodeToString(sum) + hashSuffix)
}

func isRef(s, sigil, suffix string, size int) bool {
	if !strings.HasPrefix(s, sigil) || !strings.HasSuffix(s, suffix) {
		return false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(s, sigil), suffix)
	raw, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return false
	}
	return len(raw) == size
}
