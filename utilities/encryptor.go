package utilities

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// boxSuffix marks record content that is sealed for its author only.
const boxSuffix = ".box"

// ErrNotBoxed is returned when a string does not look like sealed content.
var ErrNotBoxed = errors.New("content is not boxed")

// Encryptor provides self-encryption using XChaCha20-Poly1305.
//
// Self-encryption means encrypting data that only the owner can decrypt.
// The encryption key is derived deterministically from a seed, so the same
// seed always produces the same encryption key.
//
// This is used for private contact records (e.g. following room members
// without announcing it): the record is public, its content is not.
type Encryptor struct {
	symmetricKey []byte // 32-byte key for XChaCha20-Poly1305
}

// NewEncryptor creates an encryptor from a 32-byte seed (the ed25519 seed).
func NewEncryptor(seed []byte) *Encryptor {
	if len(seed) != 32 {
		panic("encryptor seed must be 32 bytes")
	}

	hkdfReader := hkdf.New(sha256.New, seed, []byte("civic:box:v1"), []byte("symmetric"))

	symmetricKey := make([]byte, 32)
	if _, err := io.ReadFull(hkdfReader, symmetricKey); err != nil {
		// This should never happen with HKDF
		panic("hkdf failed: " + err.Error())
	}

	return &Encryptor{
		symmetricKey: symmetricKey,
	}
}

// Seal encrypts plaintext using XChaCha20-Poly1305 with a random nonce.
// The 24 byte nonce is returned separately from the tagged ciphertext.
func (e *Encryptor) Seal(plaintext []byte) (nonce, ciphertext []byte, err error) {
	aead, err := chacha20poly1305.NewX(e.symmetricKey)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)

	return nonce, ciphertext, nil
}

// Open decrypts ciphertext using XChaCha20-Poly1305.
func (e *Encryptor) Open(nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(e.symmetricKey)
	if err != nil {
		return nil, err
	}

	if len(nonce) != aead.NonceSize() {
		return nil, errors.New("invalid nonce size (expected 24 bytes)")
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.New("decryption failed: invalid ciphertext or wrong key")
	}

	return plaintext, nil
}

// Box seals plaintext into the "<base64 nonce||ciphertext>.box" string form
// stored in record content.
func (e *Encryptor) Box(plaintext []byte) (string, error) {
	nonce, ciphertext, err := e.Seal(plaintext)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(append(nonce, ciphertext...)) + boxSuffix, nil
}

// Unbox reverses Box. It fails for content sealed by someone else.
func (e *Encryptor) Unbox(boxed string) ([]byte, error) {
	if !strings.HasSuffix(boxed, boxSuffix) {
		return nil, ErrNotBoxed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(boxed, boxSuffix))
	if err != nil {
		return nil, err
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("boxed content too short")
	}
	return e.Open(raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:])
}
