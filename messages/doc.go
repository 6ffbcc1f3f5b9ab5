// Package messages contains the room RPC payload types.
//
// This is the single source of truth for the payloads exchanged with a
// remote room. Requests and responses travel as JSON envelopes; the
// transport (MQTT today) only moves bytes.
//
// # Structure
//
//   - rpc.go: request/response envelopes shared by every method
//   - room.go: method names and their payloads (metadata, members, aliases)
//
// # Adding New Methods
//
// When adding a new RPC method:
//
//  1. Add the method constant and payload structs with godoc comments:
//     - What the call does
//     - Response: single or stream
//
//  2. Add a Validate() method for payload validation
//
//  3. Document version history in comments
package messages
