package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultRoomPort is the port rooms listen on for muxrpc connections.
const DefaultRoomPort = 8008

// ErrInvalidAddress is returned when a host/port/key triple can't form a
// multiserver address.
var ErrInvalidAddress = errors.New("invalid multiserver address")

// Address is the parsed form of a "net:host:port~shs:key" multiserver address.
type Address struct {
	Host string
	Port int
	Key  string // base64 ed25519 public key, no sigil or suffix
}

// NewAddress validates the parts and returns an Address.
// key may be given either as a bare base64 key or as a full feed id.
func NewAddress(host string, port int, key string) (Address, error) {
	if port == 0 {
		port = DefaultRoomPort
	}
	key = strings.TrimSuffix(strings.TrimPrefix(key, feedSigil), feedSuffix)

	addr := Address{Host: host, Port: port, Key: key}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}

// Validate checks that the address could be dialed.
func (a Address) Validate() error {
	if a.Host == "" || strings.ContainsAny(a.Host, ":~ ") && net.ParseIP(a.Host) == nil {
		return fmt.Errorf("%w: bad host %q", ErrInvalidAddress, a.Host)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("%w: bad port %d", ErrInvalidAddress, a.Port)
	}
	if !a.FeedID().IsValid() {
		return fmt.Errorf("%w: bad key %q", ErrInvalidAddress, a.Key)
	}
	return nil
}

// FeedID returns the identity of the peer behind the address.
func (a Address) FeedID() FeedID {
	return FeedID(feedSigil + a.Key + feedSuffix)
}

// String renders the address in multiserver form.
func (a Address) String() string {
	return fmt.Sprintf("net:%s:%d~shs:%s", a.Host, a.Port, a.Key)
}

// ParseAddress parses a "net:host:port~shs:key" string.
func ParseAddress(s string) (Address, error) {
	transport, auth, ok := strings.Cut(s, "~")
	if !ok || !strings.HasPrefix(transport, "net:") || !strings.HasPrefix(auth, "shs:") {
		return Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}

	hostPort := strings.TrimPrefix(transport, "net:")
	idx := strings.LastIndex(hostPort, ":")
	if idx < 0 {
		return Address{}, fmt.Errorf("%w: missing port in %q", ErrInvalidAddress, s)
	}
	port, err := strconv.Atoi(hostPort[idx+1:])
	if err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}

	addr := Address{Host: hostPort[:idx], Port: port, Key: strings.TrimPrefix(auth, "shs:")}
	if err := addr.Validate(); err != nil {
		return Address{}, err
	}
	return addr, nil
}
