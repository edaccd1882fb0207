// Package goCounter is a client for an authenticated counter service.
//
// A [Client] owns one user session and the state derived from it: the bearer
// credential, the displayed counter value with its loading and error status,
// and the change-password form. Every mutation goes through a narrow method
// set (HandleLogin, Logout, Fetch, Increment, Reset, SubmitPasswordChange) and
// every read goes through an immutable [State] snapshot, so multiple surfaces
// can drive and observe the same client without shared variables.
//
// # Architecture boundaries
//
// goCounter is the public surface. HTTP classification lives in [api], durable
// token storage in [credential], token decoding in [jwt]. The Client is the
// only place those pieces meet.
//
// # Consistency contract
//
// Counter mutations are optimistic: Increment and Reset change the displayed
// value immediately and fire the request on its own goroutine. A successful
// response overwrites the guess with the server's value; a failed one records
// an error and triggers a reconciling fetch. Each continuation carries the
// session generation it was dispatched under and is discarded if the session
// has since been replaced or torn down, so a late response can never revive a
// logged-out session.
//
// # What this package must NOT do
//
//   - Retry requests or refresh credentials. A 401 ends the session.
//   - Decide authorization locally. Reset is always sent; the server decides.
//   - Block callers on the network, except the explicitly synchronous
//     HandleLogin/Restore persistence and SubmitPasswordChange.
package goCounter
