// Package keyring holds the server's cryptographic identity.
//
// The server authors records of its own (e.g. private follows of room
// members), so it needs a feed identity:
//   - Signing (our identity signs the records we publish)
//   - Self-boxing (content only we can read back)
//   - Persistence (the secret survives restarts, like ssb-keys)
//
// Verification of other authors' records is left to the event log.
package keyring

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/eljojo/civic/types"
	"github.com/eljojo/civic/utilities"
)

const signatureSuffix = ".sig.ed25519"

// ErrBadSecret is returned when the secret file can't be parsed.
var ErrBadSecret = errors.New("invalid secret file")

// Keyring manages the server's identity.
type Keyring struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	id         types.FeedID
	box        *utilities.Encryptor
}

// secretFile is the on-disk layout, compatible with ssb-keys secrets.
type secretFile struct {
	Curve   string `json:"curve"`
	Public  string `json:"public"`
	Private string `json:"private"`
	ID      string `json:"id"`
}

// New creates a new Keyring from an Ed25519 private key.
func New(privateKey ed25519.PrivateKey) *Keyring {
	publicKey := privateKey.Public().(ed25519.PublicKey)

	return &Keyring{
		privateKey: privateKey,
		publicKey:  publicKey,
		id:         types.FeedIDFromKey(publicKey),
		box:        utilities.NewEncryptor(privateKey.Seed()),
	}
}

// Generate creates a Keyring with a fresh random identity.
func Generate() (*Keyring, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return New(priv), nil
}

// LoadOrCreate reads the secret at path, or generates and writes one.
func LoadOrCreate(path string) (*Keyring, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		kr, err := Generate()
		if err != nil {
			return nil, err
		}
		if err := kr.Save(path); err != nil {
			return nil, err
		}
		return kr, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read secret: %w", err)
	}

	var sf secretFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSecret, err)
	}
	if sf.Curve != "ed25519" {
		return nil, fmt.Errorf("%w: unsupported curve %q", ErrBadSecret, sf.Curve)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(sf.Private, ".ed25519"))
	if err != nil || len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: bad private key", ErrBadSecret)
	}
	kr := New(ed25519.PrivateKey(raw))
	if sf.ID != "" && types.FeedID(sf.ID) != kr.id {
		return nil, fmt.Errorf("%w: id does not match key", ErrBadSecret)
	}
	return kr, nil
}

// Save writes the secret to path with owner-only permissions.
func (k *Keyring) Save(path string) error {
	sf := secretFile{
		Curve:   "ed25519",
		Public:  k.id.Base64() + ".ed25519",
		Private: base64.StdEncoding.EncodeToString(k.privateKey) + ".ed25519",
		ID:      k.id.String(),
	}
	data, err := json.MarshalIndent(sf, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// === Our Identity ===

// ID returns our feed ID.
func (k *Keyring) ID() types.FeedID {
	return k.id
}

// PublicKey returns our public key.
func (k *Keyring) PublicKey() ed25519.PublicKey {
	return k.publicKey
}

// Sign signs data with our private key.
func (k *Keyring) Sign(data []byte) []byte {
	return ed25519.Sign(k.privateKey, data)
}

// SignRecord signs data and returns the "<base64>.sig.ed25519" form used on records.
func (k *Keyring) SignRecord(data []byte) string {
	return base64.StdEncoding.EncodeToString(k.Sign(data)) + signatureSuffix
}

// Box seals content so only this identity can read it back.
func (k *Keyring) Box(plaintext []byte) (string, error) {
	return k.box.Box(plaintext)
}

// Unbox opens content previously sealed with Box.
func (k *Keyring) Unbox(boxed string) ([]byte, error) {
	return k.box.Unbox(boxed)
}

// === Verification ===

// Verify checks a record signature against the key embedded in a feed ID.
func Verify(id types.FeedID, data []byte, signature string) bool {
	pub := id.PublicKey()
	if pub == nil || !strings.HasSuffix(signature, signatureSuffix) {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(signature, signatureSuffix))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}
