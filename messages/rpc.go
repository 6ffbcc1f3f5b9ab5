package messages

import (
	"encoding/json"
	"errors"
	"fmt"
)

// RPCRequest asks the room to run a method.
//
// Flow: civic → room
// Response: one or more RPCResponse with the same ID, the last one Done
//
// Version History:
//
//	v1 (2026-10): Initial version
type RPCRequest struct {
	// ID correlates responses with this request
	ID string `json:"id"`

	// Method is one of the Method* constants
	Method string `json:"method"`

	// Args are method specific, may be empty
	Args json.RawMessage `json:"args,omitempty"`

	// ReplyTo is the topic responses must be published on
	ReplyTo string `json:"reply_to"`
}

// Validate checks if the request is well-formed.
func (r *RPCRequest) Validate() error {
	if r.ID == "" {
		return errors.New("id required")
	}
	if r.Method == "" {
		return errors.New("method required")
	}
	if r.ReplyTo == "" {
		return errors.New("reply_to required")
	}
	return nil
}

// RPCResponse carries one result (or one stream chunk) for a request.
//
// Flow: room → civic
//
// Version History:
//
//	v1 (2026-10): Initial version
type RPCResponse struct {
	// ID echoes RPCRequest.ID
	ID string `json:"id"`

	// Data is the method's payload, absent on errors and on a bare Done
	Data json.RawMessage `json:"data,omitempty"`

	// Error ends the request with a failure
	Error string `json:"error,omitempty"`

	// Done marks the last response for the request
	Done bool `json:"done"`
}

// Validate checks if the response is well-formed.
func (r *RPCResponse) Validate() error {
	if r.ID == "" {
		return errors.New("id required")
	}
	return nil
}

// Err returns the remote error, if any.
func (r *RPCResponse) Err() error {
	if r.Error == "" {
		return nil
	}
	return &RemoteError{Message: r.Error}
}

// Decode unmarshals Data into v.
func (r *RPCResponse) Decode(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode %s: %w", r.ID, err)
	}
	return nil
}

// RemoteError is an error reported by the room itself.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "room: " + e.Message
}
